package models

import (
	"context"

	"github.com/sevacare/facility_backend/config"
	"github.com/sevacare/facility_backend/utils"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("facility-ledger")

// PaymentRecordedEvent is the outbox payload of a recorded payment.
type PaymentRecordedEvent struct {
	PaymentEventId int             `json:"payment_event_id"`
	PatientId      int             `json:"patient_id"`
	Amount         decimal.Decimal `json:"amount"`
	PaymentMode    PaymentMode     `json:"payment_mode"`
	TotalPaid      decimal.Decimal `json:"total_paid"`
	Balance        decimal.Decimal `json:"balance"`
}

// RecordPayment appends a payment event and applies it to the ledger record of
// the period its payment date falls in, all in one transaction.
func RecordPayment(ctx context.Context, input *NewPaymentEvent) (*PaymentEvent, error) {
	ctx, span := tracer.Start(ctx, "models.RecordPayment")
	defer span.End()

	if err := input.validate(); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("patient_id", input.PatientId))

	paymentType := input.Type
	if paymentType == "" {
		paymentType = DefaultPaymentType
	}
	period := PeriodOf(input.PaymentDate, config.LedgerLocation())

	var event *PaymentEvent
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		basis, err := GetBillingBasis(ctx, tx, input.PatientId)
		if err != nil {
			return err
		}

		event = &PaymentEvent{
			PatientId:     input.PatientId,
			PaymentDate:   input.PaymentDate.UTC(),
			Amount:        input.Amount,
			PaymentMode:   input.PaymentMode,
			Type:          paymentType,
			Notes:         input.Notes,
			LedgerMonth:   period.Month,
			LedgerYear:    period.Year,
			CorrelationId: correlationIdFromContextOrNew(ctx),
			RequestSource: utils.RequestSourceOrDefault(ctx),
		}
		if err := tx.Create(event).Error; err != nil {
			return err
		}

		rec, created, err := lockOrCreateLedgerRecord(tx, input.PatientId, period, basis.FeeBasis())
		if err != nil {
			return err
		}
		if created {
			rec.TotalPaid = input.Amount
		} else {
			rec.TotalPaid = rec.TotalPaid.Add(input.Amount)
		}
		if err := rec.save(tx); err != nil {
			return err
		}

		return enqueueLedgerEvent(ctx, tx, LedgerEventPaymentRecorded, input.PatientId, period, PaymentRecordedEvent{
			PaymentEventId: event.ID,
			PatientId:      input.PatientId,
			Amount:         input.Amount,
			PaymentMode:    input.PaymentMode,
			TotalPaid:      rec.TotalPaid,
			Balance:        rec.Balance,
		})
	})
	if err != nil {
		span.RecordError(err)
		return nil, utils.NewStorageError(classifyLockError(err), "failed to record payment")
	}
	return event, nil
}
