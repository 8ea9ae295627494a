package main

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sevacare/facility_backend/config"
	"github.com/sevacare/facility_backend/models"
	"github.com/sevacare/facility_backend/models/reports"
	"github.com/sevacare/facility_backend/utils"
	"github.com/sevacare/facility_backend/workflow"
	"github.com/shopspring/decimal"
)

type ledgerService interface {
	RecordPayment(ctx context.Context, input *models.NewPaymentEvent) (*models.PaymentEvent, error)
	CloseMonth(ctx context.Context, month int, year int) (*models.CloseMonthResult, error)
	GetPatientLedger(ctx context.Context, patientId int, month int, year int) (*models.PatientLedgerView, error)
	GetPaymentHistory(ctx context.Context, patientId int, month int, year int) ([]*models.PaymentEvent, error)
	ListPeriodLedger(ctx context.Context, month int, year int) ([]*models.PeriodLedgerRow, error)
}

// modelLedgerService is the database-backed ledgerService.
type modelLedgerService struct{}

func (modelLedgerService) RecordPayment(ctx context.Context, input *models.NewPaymentEvent) (*models.PaymentEvent, error) {
	return models.RecordPayment(ctx, input)
}

func (modelLedgerService) CloseMonth(ctx context.Context, month int, year int) (*models.CloseMonthResult, error) {
	return workflow.CloseMonth(ctx, month, year)
}

func (modelLedgerService) GetPatientLedger(ctx context.Context, patientId int, month int, year int) (*models.PatientLedgerView, error) {
	return models.GetPatientLedger(ctx, patientId, month, year)
}

func (modelLedgerService) GetPaymentHistory(ctx context.Context, patientId int, month int, year int) ([]*models.PaymentEvent, error) {
	return models.GetPaymentHistory(ctx, patientId, month, year)
}

func (modelLedgerService) ListPeriodLedger(ctx context.Context, month int, year int) ([]*models.PeriodLedgerRow, error) {
	return models.ListPeriodLedger(ctx, month, year)
}

type recordPaymentRequest struct {
	PatientId   int             `json:"patient_id"`
	Amount      decimal.Decimal `json:"amount"`
	PaymentDate string          `json:"payment_date"`
	PaymentMode string          `json:"payment_mode"`
	Type        string          `json:"type"`
	Notes       string          `json:"notes"`
}

type closeMonthRequest struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

func errorStatus(kind utils.ErrorKind) int {
	switch kind {
	case utils.ErrorKindValidation:
		return http.StatusBadRequest
	case utils.ErrorKindNotFound:
		return http.StatusNotFound
	case utils.ErrorKindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// abortWithLedgerError writes {"error": {"kind", "message"}}. Storage errors
// are attached to the gin context so the error logger records the cause.
func abortWithLedgerError(c *gin.Context, err error) {
	kind := utils.ErrorKindOf(err)
	status := errorStatus(kind)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{
			"kind":    kind,
			"message": utils.ErrorMessageOf(err),
		},
	})
}

func periodFromQuery(c *gin.Context) (int, int, error) {
	month, err := strconv.Atoi(strings.TrimSpace(c.Query("month")))
	if err != nil {
		return 0, 0, utils.NewValidationError("month query parameter must be an integer")
	}
	year, err := strconv.Atoi(strings.TrimSpace(c.Query("year")))
	if err != nil {
		return 0, 0, utils.NewValidationError("year query parameter must be an integer")
	}
	return month, year, nil
}

func patientIdFromPath(c *gin.Context) (int, error) {
	id, err := strconv.Atoi(c.Param("patientId"))
	if err != nil || id <= 0 {
		return 0, utils.NewValidationError("patientId must be a positive integer")
	}
	return id, nil
}

func recordPaymentHandler(svc ledgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req recordPaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithLedgerError(c, utils.NewValidationError("invalid request body"))
			return
		}
		paymentDate, err := utils.ParseDateString(req.PaymentDate, config.LedgerLocation())
		if err != nil {
			abortWithLedgerError(c, err)
			return
		}
		mode, err := models.ParsePaymentMode(req.PaymentMode)
		if err != nil {
			abortWithLedgerError(c, err)
			return
		}

		event, err := svc.RecordPayment(c.Request.Context(), &models.NewPaymentEvent{
			PatientId:   req.PatientId,
			Amount:      req.Amount,
			PaymentDate: paymentDate,
			PaymentMode: mode,
			Type:        req.Type,
			Notes:       req.Notes,
		})
		if err != nil {
			abortWithLedgerError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"payment_event_id": event.ID})
	}
}

func closeMonthHandler(svc ledgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req closeMonthRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithLedgerError(c, utils.NewValidationError("invalid request body"))
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), config.CloseMonthTimeout())
		defer cancel()

		result, err := svc.CloseMonth(ctx, req.Month, req.Year)
		if err != nil {
			abortWithLedgerError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"records_processed":          result.RecordsProcessed,
			"carry_forward_propagations": result.CarryForwardPropagations,
		})
	}
}

func patientLedgerHandler(svc ledgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		patientId, err := patientIdFromPath(c)
		if err != nil {
			abortWithLedgerError(c, err)
			return
		}
		month, year, err := periodFromQuery(c)
		if err != nil {
			abortWithLedgerError(c, err)
			return
		}
		view, err := svc.GetPatientLedger(c.Request.Context(), patientId, month, year)
		if err != nil {
			abortWithLedgerError(c, err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

func paymentHistoryHandler(svc ledgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		patientId, err := patientIdFromPath(c)
		if err != nil {
			abortWithLedgerError(c, err)
			return
		}
		month, year, err := periodFromQuery(c)
		if err != nil {
			abortWithLedgerError(c, err)
			return
		}
		events, err := svc.GetPaymentHistory(c.Request.Context(), patientId, month, year)
		if err != nil {
			abortWithLedgerError(c, err)
			return
		}
		if events == nil {
			events = []*models.PaymentEvent{}
		}
		c.JSON(http.StatusOK, events)
	}
}

func ledgerExportHandler(svc ledgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		month, year, err := periodFromQuery(c)
		if err != nil {
			abortWithLedgerError(c, err)
			return
		}
		rows, err := svc.ListPeriodLedger(c.Request.Context(), month, year)
		if err != nil {
			abortWithLedgerError(c, err)
			return
		}
		f, err := reports.BuildLedgerWorkbook(rows)
		if err != nil {
			abortWithLedgerError(c, utils.NewStorageError(err, "failed to build export"))
			return
		}
		defer f.Close()

		buf, err := f.WriteToBuffer()
		if err != nil {
			abortWithLedgerError(c, utils.NewStorageError(err, "failed to write export"))
			return
		}
		c.Header("Content-Disposition", "attachment; filename="+reports.LedgerExportFilename(month, year))
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
	}
}

func registerLedgerRoutes(r gin.IRouter, svc ledgerService) {
	ledger := r.Group("/ledger")
	ledger.POST("/payments", recordPaymentHandler(svc))
	ledger.POST("/close-month", closeMonthHandler(svc))
	ledger.GET("/export", ledgerExportHandler(svc))
	ledger.GET("/:patientId", patientLedgerHandler(svc))
	ledger.GET("/:patientId/payments", paymentHistoryHandler(svc))
}

func customNotFoundHandler(c *gin.Context) {
	abortWithLedgerError(c, utils.NewNotFoundError("route not found"))
}

