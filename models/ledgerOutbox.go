package models

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sevacare/facility_backend/config"
	"github.com/sevacare/facility_backend/utils"
	"gorm.io/gorm"
)

type LedgerEventType string

const (
	LedgerEventPaymentRecorded LedgerEventType = "PAYMENT_RECORDED"
	LedgerEventMonthClosed     LedgerEventType = "MONTH_CLOSED"
)

// Outbox publish statuses for LedgerOutboxRecord.PublishStatus.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

// LedgerOutboxRecord is written in the same transaction as the ledger mutation
// and published to Pub/Sub after commit by the outbox dispatcher. Records that
// share an OrderingKey are published strictly in id order.
type LedgerOutboxRecord struct {
	ID               int             `gorm:"primary_key;index:idx_ledger_outbox_dispatch,priority:3;index:idx_ledger_outbox_order,priority:2" json:"id"`
	EventType        LedgerEventType `gorm:"size:32;not null;index" json:"event_type"`
	PatientId        int             `gorm:"index" json:"patient_id"`
	Month            int             `gorm:"not null" json:"month"`
	Year             int             `gorm:"not null" json:"year"`
	Payload          []byte          `gorm:"type:blob" json:"payload"`
	PublishStatus    string          `gorm:"size:20;index;not null;default:'PENDING';index:idx_ledger_outbox_dispatch,priority:1" json:"publish_status"`
	PublishAttempts  int             `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time      `gorm:"index;index:idx_ledger_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time      `gorm:"index" json:"locked_at"`
	LockedBy         *string         `gorm:"size:100" json:"locked_by"`
	LastPublishError *string         `gorm:"type:text" json:"last_publish_error"`
	PublishedAt      *time.Time      `gorm:"index" json:"published_at"`
	PubSubMessageId  *string         `gorm:"size:255" json:"pubsub_message_id"`
	OrderingKey      string          `gorm:"size:64;not null;default:'';index:idx_ledger_outbox_order,priority:1" json:"ordering_key"`
	CorrelationId    string          `gorm:"size:64;index" json:"correlation_id"`
	RequestSource    string          `gorm:"size:32" json:"request_source"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func ConvertToLedgerEventMessage(record LedgerOutboxRecord) config.LedgerEventMessage {
	return config.LedgerEventMessage{
		ID:            record.ID,
		EventType:     string(record.EventType),
		PatientId:     record.PatientId,
		Month:         record.Month,
		Year:          record.Year,
		OccurredAt:    record.CreatedAt,
		Payload:       json.RawMessage(record.Payload),
		CorrelationId: record.CorrelationId,
		RequestSource: record.RequestSource,
		OrderingKey:   record.OrderingKey,
	}
}

// LedgerEventOrderingKey keeps a patient's payments in order, and closes of one
// period in order. Events with different keys may be delivered in any order.
func LedgerEventOrderingKey(record LedgerOutboxRecord) string {
	switch record.EventType {
	case LedgerEventPaymentRecorded:
		return fmt.Sprintf("patient:%d", record.PatientId)
	case LedgerEventMonthClosed:
		return fmt.Sprintf("period:%04d-%02d", record.Year, record.Month)
	}
	return ""
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if cid, ok := utils.GetCorrelationIdFromContext(ctx); ok && cid != "" {
		return cid
	}
	return uuid.NewString()
}

// enqueueLedgerEvent writes the outbox record inside the caller's transaction.
// It is a no-op unless LEDGER_EVENTS_ENABLED is set.
func enqueueLedgerEvent(ctx context.Context, tx *gorm.DB, eventType LedgerEventType, patientId int, period Period, payload any) error {
	if !config.LedgerEventsEnabled() {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	record := LedgerOutboxRecord{
		EventType:     eventType,
		PatientId:     patientId,
		Month:         period.Month,
		Year:          period.Year,
		Payload:       data,
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: correlationIdFromContextOrNew(ctx),
		RequestSource: utils.RequestSourceOrDefault(ctx),
	}
	record.OrderingKey = LedgerEventOrderingKey(record)
	return tx.Create(&record).Error
}
