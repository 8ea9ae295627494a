package models

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sevacare/facility_backend/config"
	"github.com/sevacare/facility_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// seconds to wait on the period advisory lock before reporting a conflict
const periodCloseLockWaitSeconds = 5

type CloseMonthResult struct {
	Month                    int `json:"month"`
	Year                     int `json:"year"`
	RecordsProcessed         int `json:"records_processed"`
	CarryForwardPropagations int `json:"carry_forward_propagations"`
}

func periodCloseLockName(period Period) string {
	return fmt.Sprintf("ledger-close:%s", period)
}

// acquirePeriodCloseLock serializes closes of one period across instances with a MySQL advisory lock.
// GET_LOCK is connection-scoped, so conn must be the connection that runs the close transaction.
func acquirePeriodCloseLock(conn *gorm.DB, period Period) error {
	var ok sql.NullInt64
	if err := conn.Raw("SELECT GET_LOCK(?, ?)", periodCloseLockName(period), periodCloseLockWaitSeconds).Scan(&ok).Error; err != nil {
		return err
	}
	if !ok.Valid || ok.Int64 != 1 {
		return utils.NewConflictError(nil, "close of %s is already in progress", period)
	}
	return nil
}

func releasePeriodCloseLock(conn *gorm.DB, period Period) {
	var released sql.NullInt64
	// must run even after ctx is cancelled; the connection goes back to the pool
	if err := conn.WithContext(context.Background()).Raw("SELECT RELEASE_LOCK(?)", periodCloseLockName(period)).Scan(&released).Error; err != nil {
		config.LogError(config.GetLogger(), "models/closeMonth.go", "releasePeriodCloseLock", "release advisory lock", period.String(), err)
	}
}

// CloseMonth finalizes fees for every billable patient of the period and
// propagates each unpaid balance into the next period. The whole batch is one
// transaction: any failure, including cancellation of ctx, leaves nothing behind.
// Closing the same period again only applies the difference to the next period.
func CloseMonth(ctx context.Context, month int, year int) (*CloseMonthResult, error) {
	ctx, span := tracer.Start(ctx, "models.CloseMonth")
	defer span.End()

	period, err := NewPeriod(month, year)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("period", period.String()))

	result := &CloseMonthResult{Month: period.Month, Year: period.Year}
	db := config.GetDB()
	err = db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		if err := acquirePeriodCloseLock(conn, period); err != nil {
			return err
		}
		defer releasePeriodCloseLock(conn, period)

		return conn.Transaction(func(tx *gorm.DB) error {
			bases, err := billingBasesForClose(ctx, tx, period)
			if err != nil {
				return err
			}
			for _, basis := range bases {
				if err := ctx.Err(); err != nil {
					return err
				}
				rec, _, err := lockOrCreateLedgerRecord(tx, basis.PatientId, period, basis.FeeBasis())
				if err != nil {
					return err
				}
				rec.TotalFees = basis.FeeBasis()
				if err := rec.save(tx); err != nil {
					return err
				}
				result.RecordsProcessed++

				carried, err := propagateCarryForward(tx, basis, period, rec.Balance)
				if err != nil {
					return err
				}
				if carried {
					result.CarryForwardPropagations++
				}
			}
			return enqueueLedgerEvent(ctx, tx, LedgerEventMonthClosed, 0, period, result)
		})
	})
	if err != nil {
		span.RecordError(err)
		return nil, utils.NewStorageError(classifyLockError(err), fmt.Sprintf("failed to close %s", period))
	}

	config.GetLogger().WithFields(logrus.Fields{
		"field":                      "CloseMonth",
		"period":                     period.String(),
		"records_processed":          result.RecordsProcessed,
		"carry_forward_propagations": result.CarryForwardPropagations,
		"trace_id":                   trace.SpanFromContext(ctx).SpanContext().TraceID().String(),
	}).Info("month closed")
	return result, nil
}
