package models

import (
	"errors"
	"time"

	"github.com/sevacare/facility_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CarryForward registers how much unpaid balance a source period has pushed
// into the following period. Re-closing a period replaces Amount and applies
// only the difference to the target, so repeated closes never double-count.
// Unique key: (patient_id, source_month, source_year).
type CarryForward struct {
	ID          int             `gorm:"primary_key" json:"id"`
	PatientId   int             `gorm:"not null;index:uniq_carry_source,unique,priority:1" json:"patient_id"`
	SourceMonth int             `gorm:"not null;index:uniq_carry_source,unique,priority:2" json:"source_month"`
	SourceYear  int             `gorm:"not null;index:uniq_carry_source,unique,priority:3" json:"source_year"`
	TargetMonth int             `gorm:"not null" json:"target_month"`
	TargetYear  int             `gorm:"not null" json:"target_year"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"amount"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func lockCarryForward(tx *gorm.DB, patientId int, source Period) (*CarryForward, error) {
	var cf CarryForward
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("patient_id = ? AND source_month = ? AND source_year = ?", patientId, source.Month, source.Year).
		Take(&cf).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cf, nil
}

// propagateCarryForward moves the source period's balance into the next period.
// It reports whether a positive carry-forward is registered for the source afterwards.
func propagateCarryForward(tx *gorm.DB, basis *PatientBilling, source Period, balance decimal.Decimal) (bool, error) {
	target := source.Next()

	cf, err := lockCarryForward(tx, basis.PatientId, source)
	if err != nil {
		return false, err
	}
	applied := decimal.Zero
	if cf != nil {
		applied = cf.Amount
	}

	delta := balance.Sub(applied)
	if delta.IsZero() {
		return balance.IsPositive(), nil
	}

	rec, _, err := lockOrCreateLedgerRecord(tx, basis.PatientId, target, basis.FeeBasis())
	if err != nil {
		return false, err
	}
	rec.CarryForwardIn = utils.MaxDecimal(decimal.Zero, rec.CarryForwardIn.Add(delta))
	if err := rec.save(tx); err != nil {
		return false, err
	}

	if cf == nil {
		cf = &CarryForward{
			PatientId:   basis.PatientId,
			SourceMonth: source.Month,
			SourceYear:  source.Year,
			TargetMonth: target.Month,
			TargetYear:  target.Year,
			Amount:      balance,
		}
		if err := tx.Create(cf).Error; err != nil {
			return false, err
		}
	} else {
		if err := tx.Model(cf).Updates(map[string]interface{}{
			"amount":     balance,
			"updated_at": time.Now().UTC(),
		}).Error; err != nil {
			return false, err
		}
	}
	return balance.IsPositive(), nil
}
