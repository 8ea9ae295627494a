package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sevacare/facility_backend/models"
)

func TestPublishBackoff(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 5 * time.Second},
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{7, 320 * time.Second},
		{8, maxPublishBackoff},
		{50, maxPublishBackoff},
	}
	for _, tc := range cases {
		if got := publishBackoff(5*time.Second, tc.attempt); got != tc.want {
			t.Fatalf("publishBackoff(attempt=%d) = %s, want %s", tc.attempt, got, tc.want)
		}
	}
}

func TestDispatchOnce_WithoutDatabaseIsNoop(t *testing.T) {
	d := NewLedgerOutboxDispatcher(nil, nil)
	if d.DispatcherID == "" {
		t.Fatalf("dispatcher id should be assigned")
	}
	if n := d.DispatchOnce(context.Background()); n != 0 {
		t.Fatalf("DispatchOnce without db published %d", n)
	}
}

func TestCloseMonthRedisKey(t *testing.T) {
	if got := closeMonthRedisKey(1, 2025); got != "lock:ledger-close:2025-01" {
		t.Fatalf("key = %q", got)
	}
}

func TestSettle(t *testing.T) {
	d := NewLedgerOutboxDispatcher(nil, nil)
	d.MaxAttempts = 3
	now := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	sent := d.settle(1, "msg-1", nil, now)
	if sent.Status != models.OutboxPublishStatusSent || *sent.MessageId != "msg-1" || !sent.PublishedAt.Equal(now) {
		t.Fatalf("sent settlement = %+v", sent)
	}
	if sent.LastError != nil || sent.NextAttemptAt != nil {
		t.Fatalf("sent settlement should clear error and schedule")
	}

	failed := d.settle(2, "", errors.New("unavailable"), now)
	if failed.Status != models.OutboxPublishStatusFailed || *failed.LastError != "unavailable" {
		t.Fatalf("failed settlement = %+v", failed)
	}
	if !failed.NextAttemptAt.Equal(now.Add(10 * time.Second)) {
		t.Fatalf("next attempt = %s", failed.NextAttemptAt)
	}

	dead := d.settle(3, "", errors.New("unavailable"), now)
	if dead.Status != models.OutboxPublishStatusDead || dead.NextAttemptAt != nil {
		t.Fatalf("dead settlement = %+v", dead)
	}

	cols := dead.columns()
	if cols["locked_by"] != nil || cols["locked_at"] != nil {
		t.Fatalf("settlement must release the claim: %v", cols)
	}
}

func TestLedgerEventFields(t *testing.T) {
	payment := ledgerEventFields(models.LedgerOutboxRecord{ID: 1, EventType: models.LedgerEventPaymentRecorded, PatientId: 42, Month: 1, Year: 2025})
	if payment["patient_id"] != 42 {
		t.Fatalf("payment fields = %v", payment)
	}
	if _, ok := payment["period"]; ok {
		t.Fatalf("payment fields should not carry a period")
	}
	closed := ledgerEventFields(models.LedgerOutboxRecord{ID: 2, EventType: models.LedgerEventMonthClosed, Month: 3, Year: 2025})
	if closed["period"] != "2025-03" {
		t.Fatalf("close fields = %v", closed)
	}
}
