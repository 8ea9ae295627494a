package models

import (
	"context"
	"strings"
	"time"

	"github.com/sevacare/facility_backend/config"
	"github.com/sevacare/facility_backend/utils"
	"github.com/shopspring/decimal"
)

type PaymentMode string

const (
	PaymentModeCash   PaymentMode = "Cash"
	PaymentModeBank   PaymentMode = "Bank"
	PaymentModeUPI    PaymentMode = "UPI"
	PaymentModeCheque PaymentMode = "Cheque"
)

const DefaultPaymentType = "fees"

func (m PaymentMode) IsValid() bool {
	switch m {
	case PaymentModeCash, PaymentModeBank, PaymentModeUPI, PaymentModeCheque:
		return true
	}
	return false
}

// ParsePaymentMode is case-insensitive ("upi", "CASH").
func ParsePaymentMode(s string) (PaymentMode, error) {
	for _, m := range []PaymentMode{PaymentModeCash, PaymentModeBank, PaymentModeUPI, PaymentModeCheque} {
		if strings.EqualFold(strings.TrimSpace(s), string(m)) {
			return m, nil
		}
	}
	return "", utils.NewValidationError("unknown payment mode %q", s)
}

// PaymentEvent is one immutable record of money received.
// LedgerMonth/LedgerYear freeze the period it rolled up into when recorded.
type PaymentEvent struct {
	ID            int             `gorm:"primary_key" json:"id"`
	PatientId     int             `gorm:"not null;index:idx_payment_patient_date,priority:1" json:"patient_id"`
	PaymentDate   time.Time       `gorm:"not null;index:idx_payment_patient_date,priority:2" json:"payment_date"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	PaymentMode   PaymentMode     `gorm:"type:enum('Cash','Bank','UPI','Cheque');not null" json:"payment_mode"`
	Type          string          `gorm:"size:100;not null;default:'fees'" json:"type"`
	Notes         string          `gorm:"type:text" json:"notes"`
	LedgerMonth   int             `gorm:"not null" json:"ledger_month"`
	LedgerYear    int             `gorm:"not null" json:"ledger_year"`
	CorrelationId string          `gorm:"size:64;index" json:"correlation_id"`
	RequestSource string          `gorm:"size:32" json:"request_source"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewPaymentEvent struct {
	PatientId   int             `json:"patient_id" validate:"required,gt=0"`
	Amount      decimal.Decimal `json:"amount"`
	PaymentDate time.Time       `json:"payment_date" validate:"required"`
	PaymentMode PaymentMode     `json:"payment_mode" validate:"required,oneof=Cash Bank UPI Cheque"`
	Type        string          `json:"type" validate:"max=100"`
	Notes       string          `json:"notes"`
}

// validate runs before any transaction opens.
func (input *NewPaymentEvent) validate() error {
	if input == nil {
		return utils.NewValidationError("payment input is required")
	}
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if !input.Amount.IsPositive() {
		return utils.NewValidationError("amount must be greater than zero")
	}
	if !input.Amount.Equal(input.Amount.Truncate(4)) {
		return utils.NewValidationError("amount supports at most 4 decimal places")
	}
	return nil
}

// GetPaymentHistory returns the payments dated inside the period, newest first.
func GetPaymentHistory(ctx context.Context, patientId int, month int, year int) ([]*PaymentEvent, error) {
	if patientId <= 0 {
		return nil, utils.NewValidationError("patient_id is required")
	}
	period, err := NewPeriod(month, year)
	if err != nil {
		return nil, err
	}
	start, end := period.Bounds(config.LedgerLocation())

	db := config.GetDB()
	var results []*PaymentEvent
	err = db.WithContext(ctx).
		Where("patient_id = ? AND payment_date >= ? AND payment_date < ?", patientId, start.UTC(), end.UTC()).
		Order("payment_date DESC, id DESC").
		Find(&results).Error
	if err != nil {
		return nil, utils.NewStorageError(err, "failed to load payment history")
	}
	return results, nil
}
