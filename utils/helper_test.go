package utils

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseDateString(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+30*60)

	d, err := ParseDateString("2025-01-15", loc)
	if err != nil {
		t.Fatalf("date only: %v", err)
	}
	if !d.Equal(time.Date(2025, 1, 15, 0, 0, 0, 0, loc)) {
		t.Fatalf("date only = %v", d)
	}

	r, err := ParseDateString("2025-01-15T10:30:00Z", loc)
	if err != nil {
		t.Fatalf("rfc3339: %v", err)
	}
	if !r.Equal(time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)) {
		t.Fatalf("rfc3339 = %v", r)
	}

	for _, s := range []string{"", "   ", "15/01/2025", "2025-02-30"} {
		if _, err := ParseDateString(s, loc); ErrorKindOf(err) != ErrorKindValidation {
			t.Fatalf("ParseDateString(%q): expected VALIDATION, got %v", s, err)
		}
	}
}

func TestMaxDecimal(t *testing.T) {
	a := decimal.RequireFromString("-3")
	if got := MaxDecimal(decimal.Zero, a); !got.Equal(decimal.Zero) {
		t.Fatalf("MaxDecimal = %s", got)
	}
	b := decimal.RequireFromString("12.5")
	if got := MaxDecimal(b, decimal.Zero); !got.Equal(b) {
		t.Fatalf("MaxDecimal = %s", got)
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := SplitAndTrim(" https://a.example , ,https://b.example ")
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Fatalf("SplitAndTrim = %#v", got)
	}
	if SplitAndTrim("  ") != nil {
		t.Fatalf("blank input should give nil")
	}
}
