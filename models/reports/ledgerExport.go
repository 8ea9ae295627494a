package reports

import (
	"context"
	"fmt"
	"io"

	"github.com/sevacare/facility_backend/models"
	"github.com/xuri/excelize/v2"
)

const ledgerSheetName = "Ledger"

var ledgerExportHeadings = []string{
	"PatientId", "PatientName", "TotalFees", "CarryForwardIn", "TotalPaid", "Balance", "UpdatedAt",
}

type ExcelExporter interface {
	GetCellValues() []interface{}
}

type ledgerExportRow struct {
	*models.PeriodLedgerRow
}

func (r ledgerExportRow) GetCellValues() []interface{} {
	return []interface{}{
		r.PatientId,
		r.PatientName,
		r.TotalFees.InexactFloat64(),
		r.CarryForwardIn.InexactFloat64(),
		r.TotalPaid.InexactFloat64(),
		r.Balance.InexactFloat64(),
		r.UpdatedAt.UTC().Format("2006-01-02 15:04:05"),
	}
}

// LedgerExportFilename is the attachment name for a period, e.g. ledger-2024-03.xlsx.
func LedgerExportFilename(month int, year int) string {
	return fmt.Sprintf("ledger-%04d-%02d.xlsx", year, month)
}

// BuildLedgerWorkbook lays out one sheet with a heading row followed by one row per record.
func BuildLedgerWorkbook(rows []*models.PeriodLedgerRow) (*excelize.File, error) {
	data := make([]ExcelExporter, 0, len(rows))
	for _, row := range rows {
		data = append(data, ledgerExportRow{row})
	}
	return buildWorkbook(ledgerSheetName, data, ledgerExportHeadings...)
}

func buildWorkbook(sheetName string, data []ExcelExporter, headings ...string) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, err
	}

	for i, h := range headings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return nil, err
		}
	}

	rowNo := 2
	for _, d := range data {
		for i, value := range d.GetCellValues() {
			cell, err := excelize.CoordinatesToCellName(i+1, rowNo)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return nil, err
			}
		}
		rowNo++
	}
	return f, nil
}

// WriteLedgerExport loads the period listing and streams it to w as xlsx.
func WriteLedgerExport(ctx context.Context, w io.Writer, month int, year int) error {
	rows, err := models.ListPeriodLedger(ctx, month, year)
	if err != nil {
		return err
	}
	f, err := BuildLedgerWorkbook(rows)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}
