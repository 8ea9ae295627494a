package models

import (
	"context"
	"errors"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/sevacare/facility_backend/config"
	"github.com/sevacare/facility_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerRecord is the per-patient, per-period aggregate of fees, payments and balance.
// Unique key: (patient_id, month, year).
type LedgerRecord struct {
	ID             int             `gorm:"primary_key" json:"id"`
	PatientId      int             `gorm:"not null;index:uniq_ledger_period,unique,priority:1" json:"patient_id"`
	Month          int             `gorm:"not null;index:uniq_ledger_period,unique,priority:2;index:idx_ledger_period,priority:2" json:"month"`
	Year           int             `gorm:"not null;index:uniq_ledger_period,unique,priority:3;index:idx_ledger_period,priority:1" json:"year"`
	TotalFees      decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"total_fees"`
	TotalPaid      decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"total_paid"`
	CarryForwardIn decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"carry_forward_in"`
	Balance        decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"balance"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// ComputeBalance is the only balance formula: max(0, fees + carry-forward - paid).
// Overpayment is clamped; no credit is carried.
func ComputeBalance(totalFees, carryForwardIn, totalPaid decimal.Decimal) decimal.Decimal {
	return utils.MaxDecimal(decimal.Zero, totalFees.Add(carryForwardIn).Sub(totalPaid))
}

func (r *LedgerRecord) Period() Period {
	return Period{Month: r.Month, Year: r.Year}
}

func (r *LedgerRecord) recompute() {
	r.Balance = ComputeBalance(r.TotalFees, r.CarryForwardIn, r.TotalPaid)
}

// save writes the three amounts and the balance derived from them in one statement.
func (r *LedgerRecord) save(tx *gorm.DB) error {
	r.recompute()
	return tx.Model(r).
		Select("total_fees", "total_paid", "carry_forward_in", "balance", "updated_at").
		Updates(map[string]interface{}{
			"total_fees":       r.TotalFees,
			"total_paid":       r.TotalPaid,
			"carry_forward_in": r.CarryForwardIn,
			"balance":          r.Balance,
			"updated_at":       time.Now().UTC(),
		}).Error
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// classifyLockError reports deadlocks (1213) and lock wait timeouts (1205) as
// conflicts; the caller may retry. Other errors are returned unchanged.
func classifyLockError(err error) error {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) && (mysqlErr.Number == 1213 || mysqlErr.Number == 1205) {
		return utils.NewConflictError(err, "concurrent ledger update, retry the request")
	}
	return err
}

// lockLedgerRecord takes a row lock on the record for (patient, period).
// Returns nil, nil when no record exists.
func lockLedgerRecord(tx *gorm.DB, patientId int, period Period) (*LedgerRecord, error) {
	var rec LedgerRecord
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("patient_id = ? AND month = ? AND year = ?", patientId, period.Month, period.Year).
		Take(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// lockOrCreateLedgerRecord returns the locked record for (patient, period),
// creating it with totalFees = feeBasis when absent. The insert uses
// ON DUPLICATE KEY UPDATE so a concurrent creator waits on the winner's
// exclusive lock and then re-locks the winner's row. A plain duplicate-key
// failure is treated the same way.
func lockOrCreateLedgerRecord(tx *gorm.DB, patientId int, period Period, feeBasis decimal.Decimal) (*LedgerRecord, bool, error) {
	rec, err := lockLedgerRecord(tx, patientId, period)
	if err != nil {
		return nil, false, err
	}
	if rec != nil {
		return rec, false, nil
	}

	fresh := &LedgerRecord{
		PatientId:      patientId,
		Month:          period.Month,
		Year:           period.Year,
		TotalFees:      feeBasis,
		TotalPaid:      decimal.Zero,
		CarryForwardIn: decimal.Zero,
	}
	fresh.recompute()
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(fresh)
	if res.Error != nil && !isDuplicateKeyErr(res.Error) {
		return nil, false, res.Error
	}
	created := res.Error == nil && res.RowsAffected == 1

	rec, err = lockLedgerRecord(tx, patientId, period)
	if err != nil {
		return nil, false, err
	}
	if rec == nil {
		return nil, false, errors.New("ledger record missing after insert")
	}
	return rec, created, nil
}

// PatientLedgerView is the read-only join of a ledger record and the patient's billing basis.
type PatientLedgerView struct {
	Record LedgerRecord   `json:"record"`
	Basis  PatientBilling `json:"basis"`
	// Exists is false when Record is a zero-valued placeholder.
	Exists bool `json:"exists"`
}

func GetPatientLedger(ctx context.Context, patientId int, month int, year int) (*PatientLedgerView, error) {
	if patientId <= 0 {
		return nil, utils.NewValidationError("patient_id is required")
	}
	period, err := NewPeriod(month, year)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	basis, err := GetBillingBasis(ctx, db, patientId)
	if err != nil {
		return nil, err
	}

	view := &PatientLedgerView{Basis: *basis}
	var rec LedgerRecord
	err = db.WithContext(ctx).
		Where("patient_id = ? AND month = ? AND year = ?", patientId, period.Month, period.Year).
		Take(&rec).Error
	switch {
	case err == nil:
		view.Record = rec
		view.Exists = true
	case errors.Is(err, gorm.ErrRecordNotFound):
		view.Record = LedgerRecord{
			PatientId:      patientId,
			Month:          period.Month,
			Year:           period.Year,
			TotalFees:      decimal.Zero,
			TotalPaid:      decimal.Zero,
			CarryForwardIn: decimal.Zero,
			Balance:        decimal.Zero,
		}
	default:
		return nil, utils.NewStorageError(err, "failed to load ledger record")
	}
	return view, nil
}

// PeriodLedgerRow is one line of the period listing.
type PeriodLedgerRow struct {
	PatientId      int             `json:"patient_id"`
	PatientName    string          `json:"patient_name"`
	TotalFees      decimal.Decimal `json:"total_fees"`
	CarryForwardIn decimal.Decimal `json:"carry_forward_in"`
	TotalPaid      decimal.Decimal `json:"total_paid"`
	Balance        decimal.Decimal `json:"balance"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ListPeriodLedger returns every ledger record of a period, ordered by patient.
func ListPeriodLedger(ctx context.Context, month int, year int) ([]*PeriodLedgerRow, error) {
	period, err := NewPeriod(month, year)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	var rows []*PeriodLedgerRow
	if err := db.WithContext(ctx).Table("ledger_records AS lr").
		Joins("JOIN patients AS p ON p.id = lr.patient_id").
		Select("lr.patient_id, p.name AS patient_name, lr.total_fees, lr.carry_forward_in, lr.total_paid, lr.balance, lr.updated_at").
		Where("lr.month = ? AND lr.year = ?", period.Month, period.Year).
		Order("lr.patient_id").
		Scan(&rows).Error; err != nil {
		return nil, utils.NewStorageError(err, "failed to list period ledger")
	}
	return rows, nil
}
