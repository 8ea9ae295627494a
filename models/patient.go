package models

import (
	"context"
	"time"

	"github.com/sevacare/facility_backend/config"
	"github.com/sevacare/facility_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Patient holds the billing columns of the patient profile.
// Profiles are owned by the patient module; the ledger only reads them.
// The fee columns are nullable there and NULL reads as zero.
type Patient struct {
	ID          int                 `gorm:"primary_key" json:"id"`
	Name        string              `gorm:"size:255;not null" json:"name"`
	PeriodicFee decimal.NullDecimal `gorm:"type:decimal(20,4);default:0" json:"periodic_fee"`
	AdvancePaid decimal.NullDecimal `gorm:"type:decimal(20,4);default:0" json:"advance_paid"`
	IsActive    *bool               `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

// PatientCharge is an itemized ancillary add-on billed every period.
type PatientCharge struct {
	ID          int             `gorm:"primary_key" json:"id"`
	PatientId   int             `gorm:"index;not null" json:"patient_id"`
	Description string          `gorm:"size:255" json:"description"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// PatientBilling is a patient's static fee basis.
type PatientBilling struct {
	PatientId        int             `json:"patient_id"`
	PatientName      string          `json:"patient_name"`
	PeriodicFee      decimal.Decimal `json:"periodic_fee"`
	AncillaryCharges decimal.Decimal `json:"ancillary_charges"`
	AdvancePaid      decimal.Decimal `json:"advance_paid"`
}

// FeeBasis is what one period costs: periodic fee plus ancillary charges.
func (b PatientBilling) FeeBasis() decimal.Decimal {
	return b.PeriodicFee.Add(b.AncillaryCharges)
}

func (b PatientBilling) validate() error {
	if b.PeriodicFee.IsNegative() {
		return utils.NewValidationError("patient %d has a negative periodic fee", b.PatientId)
	}
	return nil
}

// GetBillingBasis reads the fee basis of one patient using tx (or the global DB when tx is nil).
func GetBillingBasis(ctx context.Context, tx *gorm.DB, patientId int) (*PatientBilling, error) {
	if tx == nil {
		tx = config.GetDB()
	}
	sql := `
SELECT
	p.id AS patient_id,
	p.name AS patient_name,
	COALESCE(p.periodic_fee, 0) AS periodic_fee,
	COALESCE((SELECT SUM(c.amount) FROM patient_charges AS c WHERE c.patient_id = p.id), 0) AS ancillary_charges,
	COALESCE(p.advance_paid, 0) AS advance_paid
FROM
	patients AS p
WHERE
	p.id = ?`

	var bases []*PatientBilling
	if err := tx.WithContext(ctx).Raw(sql, patientId).Scan(&bases).Error; err != nil {
		return nil, utils.NewStorageError(err, "failed to load patient")
	}
	if len(bases) == 0 {
		return nil, utils.NewNotFoundError("patient %d not found", patientId)
	}
	basis := bases[0]
	if err := basis.validate(); err != nil {
		return nil, err
	}
	return basis, nil
}

// billingBasesForClose loads the basis of every patient a close must visit:
// active patients plus anyone that already has a record for the period.
// The result is ordered by patient id.
func billingBasesForClose(ctx context.Context, tx *gorm.DB, period Period) ([]*PatientBilling, error) {
	sql := `
SELECT
	p.id AS patient_id,
	p.name AS patient_name,
	COALESCE(p.periodic_fee, 0) AS periodic_fee,
	COALESCE(c.total, 0) AS ancillary_charges,
	COALESCE(p.advance_paid, 0) AS advance_paid
FROM
	patients AS p
	LEFT JOIN (
		SELECT patient_id, SUM(amount) AS total
		FROM patient_charges
		GROUP BY patient_id
	) AS c ON c.patient_id = p.id
WHERE
	p.is_active = TRUE
	OR EXISTS (
		SELECT 1 FROM ledger_records AS lr
		WHERE lr.patient_id = p.id AND lr.month = ? AND lr.year = ?
	)
ORDER BY
	p.id`

	var bases []*PatientBilling
	if err := tx.WithContext(ctx).Raw(sql, period.Month, period.Year).Scan(&bases).Error; err != nil {
		return nil, utils.NewStorageError(err, "failed to load billing bases")
	}
	for _, b := range bases {
		if err := b.validate(); err != nil {
			return nil, err
		}
	}
	return bases, nil
}
