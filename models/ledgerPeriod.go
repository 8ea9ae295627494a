package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/sevacare/facility_backend/utils"
)

// Period is a ledger billing cycle: one calendar month.
type Period struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

func NewPeriod(month, year int) (Period, error) {
	p := Period{Month: month, Year: year}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

// PeriodOf maps t onto the calendar month it falls in, as seen from loc.
func PeriodOf(t time.Time, loc *time.Location) Period {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return Period{Month: int(local.Month()), Year: local.Year()}
}

func (p Period) Validate() error {
	if p.Month < 1 || p.Month > 12 {
		return utils.NewValidationError("month must be between 1 and 12, got %d", p.Month)
	}
	if p.Year < 1900 || p.Year > 9999 {
		return utils.NewValidationError("year %d is out of range", p.Year)
	}
	return nil
}

func (p Period) Next() Period {
	if p.Month == 12 {
		return Period{Month: 1, Year: p.Year + 1}
	}
	return Period{Month: p.Month + 1, Year: p.Year}
}

func (p Period) Previous() Period {
	if p.Month == 1 {
		return Period{Month: 12, Year: p.Year - 1}
	}
	return Period{Month: p.Month - 1, Year: p.Year}
}

// Bounds returns [start, end) of the period in loc.
func (p Period) Bounds(loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	start := time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0)
}

// Before reports whether p is strictly earlier than o.
func (p Period) Before(o Period) bool {
	if p.Year != o.Year {
		return p.Year < o.Year
	}
	return p.Month < o.Month
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// PeriodsThrough lists from..to inclusive, in order.
func PeriodsThrough(from, to Period) ([]Period, error) {
	if err := from.Validate(); err != nil {
		return nil, err
	}
	if err := to.Validate(); err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, utils.NewValidationError("period %s is before %s", to, from)
	}
	var out []Period
	for p := from; !to.Before(p); p = p.Next() {
		out = append(out, p)
	}
	return out, nil
}

// ParsePeriod reads the "YYYY-MM" form produced by String.
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return Period{}, utils.NewValidationError("malformed period %q, expected YYYY-MM", s)
	}
	return NewPeriod(int(t.Month()), t.Year())
}
