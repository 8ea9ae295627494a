package models

import (
	"context"
	"errors"

	"github.com/sevacare/facility_backend/config"
	"github.com/sevacare/facility_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type LedgerPurgeResult struct {
	PatientId     int   `json:"patient_id"`
	PaymentEvents int64 `json:"payment_events"`
	CarryForwards int64 `json:"carry_forwards"`
	LedgerRecords int64 `json:"ledger_records"`
}

// PurgePatientLedger removes every payment event, carry-forward and ledger
// record of one patient, e.g. a profile created by mistake. The ledger guard
// refuses these deletes unless ctx carries the repair flag
// (utils.SetAllowLedgerRepairInContext).
func PurgePatientLedger(ctx context.Context, patientId int) (*LedgerPurgeResult, error) {
	if patientId <= 0 {
		return nil, utils.NewValidationError("patient_id is required")
	}

	result := &LedgerPurgeResult{PatientId: patientId}
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("patient_id = ?", patientId).Delete(&PaymentEvent{})
		if res.Error != nil {
			return res.Error
		}
		result.PaymentEvents = res.RowsAffected

		res = tx.Where("patient_id = ?", patientId).Delete(&CarryForward{})
		if res.Error != nil {
			return res.Error
		}
		result.CarryForwards = res.RowsAffected

		res = tx.Where("patient_id = ?", patientId).Delete(&LedgerRecord{})
		if res.Error != nil {
			return res.Error
		}
		result.LedgerRecords = res.RowsAffected
		return nil
	})
	if err != nil {
		if errors.Is(err, config.ErrLedgerRowUndeletable) {
			return nil, utils.NewValidationError("purging patient %d requires ledger repair mode", patientId)
		}
		return nil, utils.NewStorageError(classifyLockError(err), "failed to purge patient ledger")
	}

	config.GetLogger().WithFields(logrus.Fields{
		"field":          "PurgePatientLedger",
		"patient_id":     patientId,
		"payment_events": result.PaymentEvents,
		"carry_forwards": result.CarryForwards,
		"ledger_records": result.LedgerRecords,
		"request_source": utils.RequestSourceOrDefault(ctx),
	}).Warn("patient ledger purged")
	return result, nil
}
