package models

import "testing"

func TestLedgerEventOrderingKey(t *testing.T) {
	cases := []struct {
		record LedgerOutboxRecord
		want   string
	}{
		{LedgerOutboxRecord{EventType: LedgerEventPaymentRecorded, PatientId: 7, Month: 1, Year: 2025}, "patient:7"},
		{LedgerOutboxRecord{EventType: LedgerEventMonthClosed, Month: 3, Year: 2025}, "period:2025-03"},
		{LedgerOutboxRecord{EventType: LedgerEventType("OTHER")}, ""},
	}
	for _, tc := range cases {
		if got := LedgerEventOrderingKey(tc.record); got != tc.want {
			t.Fatalf("LedgerEventOrderingKey(%s) = %q, want %q", tc.record.EventType, got, tc.want)
		}
	}
}

func TestConvertToLedgerEventMessage(t *testing.T) {
	rec := LedgerOutboxRecord{
		ID:            9,
		EventType:     LedgerEventPaymentRecorded,
		PatientId:     7,
		Month:         1,
		Year:          2025,
		Payload:       []byte(`{"amount":"10"}`),
		OrderingKey:   "patient:7",
		CorrelationId: "cid-1",
		RequestSource: "http",
	}
	msg := ConvertToLedgerEventMessage(rec)
	if msg.ID != 9 || msg.EventType != "PAYMENT_RECORDED" || msg.OrderingKey != "patient:7" {
		t.Fatalf("message = %+v", msg)
	}
	if msg.RequestSource != "http" || msg.CorrelationId != "cid-1" || string(msg.Payload) != `{"amount":"10"}` {
		t.Fatalf("message = %+v", msg)
	}
}
