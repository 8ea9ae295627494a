package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sevacare/facility_backend/models"
	"github.com/sevacare/facility_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

type fakeLedgerService struct {
	lastPayment *models.NewPaymentEvent
	lastClose   models.Period
	paymentErr  error
	closeErr    error
	ledgerErr   error
	rows        []*models.PeriodLedgerRow
}

func (f *fakeLedgerService) RecordPayment(ctx context.Context, input *models.NewPaymentEvent) (*models.PaymentEvent, error) {
	f.lastPayment = input
	if f.paymentErr != nil {
		return nil, f.paymentErr
	}
	return &models.PaymentEvent{ID: 41, PatientId: input.PatientId, Amount: input.Amount}, nil
}

func (f *fakeLedgerService) CloseMonth(ctx context.Context, month int, year int) (*models.CloseMonthResult, error) {
	f.lastClose = models.Period{Month: month, Year: year}
	if f.closeErr != nil {
		return nil, f.closeErr
	}
	if _, ok := ctx.Deadline(); !ok {
		return nil, utils.NewStorageError(context.DeadlineExceeded, "close ran without a deadline")
	}
	return &models.CloseMonthResult{Month: month, Year: year, RecordsProcessed: 3, CarryForwardPropagations: 2}, nil
}

func (f *fakeLedgerService) GetPatientLedger(ctx context.Context, patientId int, month int, year int) (*models.PatientLedgerView, error) {
	if f.ledgerErr != nil {
		return nil, f.ledgerErr
	}
	return &models.PatientLedgerView{
		Record: models.LedgerRecord{PatientId: patientId, Month: month, Year: year, TotalFees: decimal.RequireFromString("5000"), Balance: decimal.RequireFromString("5000")},
		Exists: true,
	}, nil
}

func (f *fakeLedgerService) GetPaymentHistory(ctx context.Context, patientId int, month int, year int) ([]*models.PaymentEvent, error) {
	return nil, nil
}

func (f *fakeLedgerService) ListPeriodLedger(ctx context.Context, month int, year int) ([]*models.PeriodLedgerRow, error) {
	return f.rows, nil
}

func newTestRouter(svc ledgerService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(bytes.NewBuffer(nil))
	return newRouter(logger, svc, func() bool { return true })
}

func doRequest(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type errorBody struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return body
}

func TestRecordPaymentHandler_Created(t *testing.T) {
	svc := &fakeLedgerService{}
	r := newTestRouter(svc)

	w := doRequest(r, http.MethodPost, "/ledger/payments", map[string]any{
		"patient_id":   5,
		"amount":       2000,
		"payment_date": "2025-01-15",
		"payment_mode": "upi",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	var body struct {
		PaymentEventId int `json:"payment_event_id"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.PaymentEventId != 41 {
		t.Fatalf("payment_event_id = %d", body.PaymentEventId)
	}
	if svc.lastPayment.PaymentMode != models.PaymentModeUPI {
		t.Fatalf("mode = %q", svc.lastPayment.PaymentMode)
	}
	if !svc.lastPayment.Amount.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("amount = %s", svc.lastPayment.Amount)
	}
	if !svc.lastPayment.PaymentDate.Equal(time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("date = %v", svc.lastPayment.PaymentDate)
	}
	if w.Header().Get("x-correlation-id") == "" {
		t.Fatalf("correlation id header missing")
	}
}

func TestRecordPaymentHandler_ErrorMapping(t *testing.T) {
	cases := []struct {
		name     string
		body     map[string]any
		svcErr   error
		wantCode int
		wantKind string
	}{
		{
			name:     "unknown mode",
			body:     map[string]any{"patient_id": 5, "amount": 10, "payment_date": "2025-01-15", "payment_mode": "card"},
			wantCode: http.StatusBadRequest,
			wantKind: "VALIDATION",
		},
		{
			name:     "malformed date",
			body:     map[string]any{"patient_id": 5, "amount": 10, "payment_date": "15/01/2025", "payment_mode": "Cash"},
			wantCode: http.StatusBadRequest,
			wantKind: "VALIDATION",
		},
		{
			name:     "unknown patient",
			body:     map[string]any{"patient_id": 999, "amount": 10, "payment_date": "2025-01-15", "payment_mode": "Cash"},
			svcErr:   utils.NewNotFoundError("patient %d not found", 999),
			wantCode: http.StatusNotFound,
			wantKind: "NOT_FOUND",
		},
		{
			name:     "storage failure",
			body:     map[string]any{"patient_id": 5, "amount": 10, "payment_date": "2025-01-15", "payment_mode": "Cash"},
			svcErr:   utils.NewStorageError(context.Canceled, "failed to record payment"),
			wantCode: http.StatusInternalServerError,
			wantKind: "STORAGE",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRouter(&fakeLedgerService{paymentErr: tc.svcErr})
			w := doRequest(r, http.MethodPost, "/ledger/payments", tc.body)
			if w.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d (body=%s)", w.Code, tc.wantCode, w.Body.String())
			}
			if got := decodeError(t, w).Error.Kind; got != tc.wantKind {
				t.Fatalf("kind = %q, want %q", got, tc.wantKind)
			}
		})
	}
}

func TestCloseMonthHandler(t *testing.T) {
	svc := &fakeLedgerService{}
	r := newTestRouter(svc)

	w := doRequest(r, http.MethodPost, "/ledger/close-month", map[string]any{"month": 1, "year": 2025})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	var body map[string]int
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body["records_processed"] != 3 || body["carry_forward_propagations"] != 2 {
		t.Fatalf("body = %v", body)
	}
	if svc.lastClose != (models.Period{Month: 1, Year: 2025}) {
		t.Fatalf("closed %s", svc.lastClose)
	}

	r = newTestRouter(&fakeLedgerService{closeErr: utils.NewConflictError(nil, "close of 2025-01 is already in progress")})
	w = doRequest(r, http.MethodPost, "/ledger/close-month", map[string]any{"month": 1, "year": 2025})
	if w.Code != http.StatusConflict {
		t.Fatalf("conflict status = %d", w.Code)
	}
	if got := decodeError(t, w).Error.Message; got != "close of 2025-01 is already in progress" {
		t.Fatalf("message = %q", got)
	}
}

func TestPatientLedgerHandler(t *testing.T) {
	r := newTestRouter(&fakeLedgerService{})

	w := doRequest(r, http.MethodGet, "/ledger/5?month=1&year=2025", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	var view models.PatientLedgerView
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Record.PatientId != 5 || !view.Record.TotalFees.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("view = %+v", view.Record)
	}

	for _, path := range []string{"/ledger/5?month=x&year=2025", "/ledger/5?year=2025", "/ledger/abc?month=1&year=2025", "/ledger/0?month=1&year=2025"} {
		w := doRequest(r, http.MethodGet, path, nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d", path, w.Code)
		}
	}
}

func TestPaymentHistoryHandler_EmptyIsArray(t *testing.T) {
	r := newTestRouter(&fakeLedgerService{})
	w := doRequest(r, http.MethodGet, "/ledger/5/payments?month=1&year=2025", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := bytes.TrimSpace(w.Body.Bytes()); string(got) != "[]" {
		t.Fatalf("body = %s", got)
	}
}

func TestLedgerExportHandler(t *testing.T) {
	r := newTestRouter(&fakeLedgerService{rows: []*models.PeriodLedgerRow{
		{PatientId: 5, PatientName: "Asha Rao", TotalFees: decimal.NewFromInt(5000), Balance: decimal.NewFromInt(3000)},
	}})
	w := doRequest(r, http.MethodGet, "/ledger/export?month=1&year=2025", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Content-Disposition"); got != "attachment; filename=ledger-2025-01.xlsx" {
		t.Fatalf("Content-Disposition = %q", got)
	}
	book, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer book.Close()
	name, err := book.GetCellValue("Ledger", "B2")
	if err != nil || name != "Asha Rao" {
		t.Fatalf("B2 = %q, %v", name, err)
	}
}

func TestHealthzAndNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	r := newRouter(logger, &fakeLedgerService{}, func() bool { return false })

	if w := doRequest(r, http.MethodGet, "/healthz", nil); w.Code != http.StatusNoContent {
		t.Fatalf("healthz = %d", w.Code)
	}
	if w := doRequest(r, http.MethodGet, "/ledger/5?month=1&year=2025", nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("not ready = %d", w.Code)
	}

	r = newTestRouter(&fakeLedgerService{})
	w := doRequest(r, http.MethodGet, "/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("no route = %d", w.Code)
	}
	if decodeError(t, w).Error.Kind != "NOT_FOUND" {
		t.Fatalf("no route body = %s", w.Body.String())
	}
}
