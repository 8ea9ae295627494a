package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sevacare/facility_backend/config"
	"github.com/sevacare/facility_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	maxPublishBackoff = 10 * time.Minute
	outboxTable       = "ledger_outbox_records"
)

// PublishFunc sends one ledger event and returns the broker message id.
type PublishFunc func(ctx context.Context, msg config.LedgerEventMessage) (string, error)

// LedgerOutboxDispatcher publishes PAYMENT_RECORDED and MONTH_CLOSED events
// written by the ledger operations. Only the oldest unsent event of each
// ordering key (one patient, or one closed period) is eligible, so a failing
// event holds back later events of the same key and no others.
type LedgerOutboxDispatcher struct {
	DB           *gorm.DB
	Logger       *logrus.Logger
	Publish      PublishFunc
	DispatcherID string

	BatchSize      int
	PollInterval   time.Duration
	LockTimeout    time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
}

func NewLedgerOutboxDispatcher(db *gorm.DB, logger *logrus.Logger) *LedgerOutboxDispatcher {
	return &LedgerOutboxDispatcher{
		DB:             db,
		Logger:         logger,
		Publish:        config.PublishLedgerEvent,
		DispatcherID:   uuid.NewString(),
		BatchSize:      50,
		PollInterval:   500 * time.Millisecond,
		LockTimeout:    30 * time.Second,
		MaxAttempts:    20,
		InitialBackoff: 5 * time.Second,
	}
}

// publishBackoff doubles initial per prior attempt, capped at maxPublishBackoff.
func publishBackoff(initial time.Duration, attempt int) time.Duration {
	backoff := initial
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff > maxPublishBackoff {
			return maxPublishBackoff
		}
	}
	return backoff
}

// outboxSettlement is the state a record moves to after a delivery attempt.
type outboxSettlement struct {
	Status        string
	LastError     *string
	NextAttemptAt *time.Time
	PublishedAt   *time.Time
	MessageId     *string
}

func (s outboxSettlement) columns() map[string]interface{} {
	return map[string]interface{}{
		"publish_status":     s.Status,
		"last_publish_error": s.LastError,
		"next_attempt_at":    s.NextAttemptAt,
		"published_at":       s.PublishedAt,
		"pub_sub_message_id": s.MessageId,
		"locked_at":          nil,
		"locked_by":          nil,
	}
}

// settle decides the next state of rec. attempts counts the attempt just made.
func (d *LedgerOutboxDispatcher) settle(attempts int, messageId string, pubErr error, now time.Time) outboxSettlement {
	if pubErr == nil {
		return outboxSettlement{Status: models.OutboxPublishStatusSent, PublishedAt: &now, MessageId: &messageId}
	}
	msg := pubErr.Error()
	if d.MaxAttempts > 0 && attempts >= d.MaxAttempts {
		return outboxSettlement{Status: models.OutboxPublishStatusDead, LastError: &msg}
	}
	next := now.Add(publishBackoff(d.InitialBackoff, attempts))
	return outboxSettlement{Status: models.OutboxPublishStatusFailed, LastError: &msg, NextAttemptAt: &next}
}

// ledgerEventFields names the subject of an event in dispatcher logs.
func ledgerEventFields(rec models.LedgerOutboxRecord) logrus.Fields {
	fields := logrus.Fields{
		"field":          "LedgerOutboxDispatcher",
		"record_id":      rec.ID,
		"event_type":     rec.EventType,
		"attempt":        rec.PublishAttempts,
		"correlation_id": rec.CorrelationId,
	}
	switch rec.EventType {
	case models.LedgerEventPaymentRecorded:
		fields["patient_id"] = rec.PatientId
	case models.LedgerEventMonthClosed:
		fields["period"] = fmt.Sprintf("%04d-%02d", rec.Year, rec.Month)
	}
	return fields
}

func (d *LedgerOutboxDispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.DispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.PollInterval):
		}
	}
}

// DispatchOnce claims the due head events and publishes them. It returns the number published.
func (d *LedgerOutboxDispatcher) DispatchOnce(ctx context.Context) int {
	if d.DB == nil || d.Publish == nil {
		return 0
	}
	claimed, err := d.claimDueEvents(ctx)
	if err != nil {
		if d.Logger != nil {
			config.LogError(d.Logger, "workflow/ledgerOutboxDispatcher.go", "DispatchOnce", "claim batch", nil, err)
		}
		return 0
	}

	sent := 0
	for _, rec := range claimed {
		if d.MaxAttempts > 0 && rec.PublishAttempts > d.MaxAttempts {
			// a dispatcher died mid-publish too many times
			d.apply(ctx, rec, d.settle(rec.PublishAttempts, "", fmt.Errorf("max publish attempts exceeded (%d)", d.MaxAttempts), time.Now().UTC()))
			continue
		}
		msgId, pubErr := d.Publish(ctx, models.ConvertToLedgerEventMessage(rec))
		d.apply(ctx, rec, d.settle(rec.PublishAttempts, msgId, pubErr, time.Now().UTC()))
		if pubErr == nil {
			sent++
		}
	}
	return sent
}

// claimDueEvents locks due PENDING/FAILED heads plus PROCESSING rows whose claimer
// went away, and marks them PROCESSING with one more attempt.
func (d *LedgerOutboxDispatcher) claimDueEvents(ctx context.Context) ([]models.LedgerOutboxRecord, error) {
	now := time.Now().UTC()
	staleBefore := now.Add(-d.LockTimeout)
	unsent := []string{models.OutboxPublishStatusPending, models.OutboxPublishStatusProcessing, models.OutboxPublishStatusFailed}

	var claimed []models.LedgerOutboxRecord
	err := d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Table(outboxTable).
			Where(`
				(
					(publish_status IN ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?))
					OR
					(publish_status = ? AND locked_at IS NOT NULL AND locked_at <= ?)
				)
				AND NOT EXISTS (
					SELECT 1 FROM `+outboxTable+` AS older
					WHERE older.ordering_key = `+outboxTable+`.ordering_key
						AND older.id < `+outboxTable+`.id
						AND older.publish_status IN ?
				)
			`,
				[]string{models.OutboxPublishStatusPending, models.OutboxPublishStatusFailed}, now,
				models.OutboxPublishStatusProcessing, staleBefore,
				unsent).
			Order("id ASC").
			Limit(d.BatchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Table: clause.Table{Name: outboxTable}, Options: "SKIP LOCKED"})
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		if len(claimed) == 0 {
			return nil
		}

		ids := make([]int, len(claimed))
		for i := range claimed {
			ids[i] = claimed[i].ID
			claimed[i].PublishStatus = models.OutboxPublishStatusProcessing
			claimed[i].PublishAttempts++
		}
		return tx.Model(&models.LedgerOutboxRecord{}).Where("id IN ?", ids).Updates(map[string]interface{}{
			"publish_status":   models.OutboxPublishStatusProcessing,
			"locked_at":        &now,
			"locked_by":        &d.DispatcherID,
			"publish_attempts": gorm.Expr("publish_attempts + 1"),
			"next_attempt_at":  nil,
		}).Error
	})
	return claimed, err
}

// apply writes s only while this dispatcher still holds the claim.
func (d *LedgerOutboxDispatcher) apply(ctx context.Context, rec models.LedgerOutboxRecord, s outboxSettlement) {
	err := d.DB.WithContext(ctx).Model(&models.LedgerOutboxRecord{}).
		Where("id = ? AND locked_by = ?", rec.ID, d.DispatcherID).
		Updates(s.columns()).Error
	if d.Logger == nil {
		return
	}
	if err != nil {
		config.LogError(d.Logger, "workflow/ledgerOutboxDispatcher.go", "apply", "settle "+s.Status, rec.ID, err)
		return
	}
	entry := d.Logger.WithFields(ledgerEventFields(rec))
	switch s.Status {
	case models.OutboxPublishStatusDead:
		entry.Error("ledger event moved to DEAD: " + *s.LastError)
	case models.OutboxPublishStatusFailed:
		entry.WithField("next_attempt_at", s.NextAttemptAt.Format(time.RFC3339Nano)).Warn("ledger event publish failed: " + *s.LastError)
	default:
		entry.Debug("ledger event published")
	}
}
