// Package interfaces renders bills into downloadable documents.
package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	archive "metering-cloud/internal/archive/domain"
)

// BuildBillPDF renders a minimal PDF for a monthly bill.
func BuildBillPDF(bill *archive.Bill) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Electricity Bill")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Meter: %s", bill.MeterID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Period: %s", bill.Period.Format("2006-01")))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(60, 6, "Field", "1", 0, "C", false, 0, "")
	pdf.CellFormat(70, 6, "Value", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)

	rows := [][2]string{
		{"Start Reading (kWh)", bill.StartReading.String()},
		{"End Reading (kWh)", bill.EndReading.String()},
		{"Consumption (kWh)", bill.Consumption.String()},
		{"First Reading At", bill.StartTime.Format(time.RFC3339)},
		{"Last Reading At", bill.EndTime.Format(time.RFC3339)},
	}
	for _, row := range rows {
		pdf.CellFormat(60, 6, row[0], "1", 0, "L", false, 0, "")
		pdf.CellFormat(70, 6, row[1], "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildBillsXLSX renders a month's bills into one workbook.
func BuildBillsXLSX(month time.Time, bills []archive.Bill) ([]byte, error) {
	f := excelize.NewFile()
	sheet := "bills"
	f.SetSheetName("Sheet1", sheet)

	_ = f.SetCellValue(sheet, "A1", "Period")
	_ = f.SetCellValue(sheet, "B1", month.Format("2006-01"))

	headers := []string{"Meter", "Start Reading (kWh)", "End Reading (kWh)", "Consumption (kWh)", "First Reading At", "Last Reading At"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 3)
		_ = f.SetCellValue(sheet, cell, header)
	}

	for i, bill := range bills {
		row := i + 4
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), bill.MeterID)
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row), bill.StartReading.String())
		_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", row), bill.EndReading.String())
		_ = f.SetCellValue(sheet, fmt.Sprintf("D%d", row), bill.Consumption.String())
		_ = f.SetCellValue(sheet, fmt.Sprintf("E%d", row), bill.StartTime.Format(time.RFC3339))
		_ = f.SetCellValue(sheet, fmt.Sprintf("F%d", row), bill.EndTime.Format(time.RFC3339))
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
