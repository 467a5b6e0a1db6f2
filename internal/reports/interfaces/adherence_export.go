package interfaces

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	reportapp "carecoord/internal/reports/application"
)

// BuildAdherenceCSV renders the adherence report as CSV.
func BuildAdherenceCSV(report *reportapp.AdherenceReport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	header := []string{"patient_id", "patient_name", "condition", "taken", "missed", "rate"}
	if err := writer.Write(header); err != nil {
		return nil, err
	}
	for _, row := range report.Patients {
		record := []string{
			row.PatientID,
			row.PatientName,
			row.Condition,
			strconv.Itoa(row.Taken),
			strconv.Itoa(row.Missed),
			strconv.FormatFloat(row.Rate, 'f', 3, 64),
		}
		if err := writer.Write(record); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildAdherenceXLSX renders the adherence report as XLSX with a summary
// sheet and a per-patient sheet.
func BuildAdherenceXLSX(report *reportapp.AdherenceReport) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	patientsSheet := "patients"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(patientsSheet)

	_ = f.SetCellValue(summarySheet, "A1", "Adherence Report")
	_ = f.SetCellValue(summarySheet, "A3", "Clinic")
	_ = f.SetCellValue(summarySheet, "B3", report.TenantID)
	_ = f.SetCellValue(summarySheet, "A4", "Window Start")
	_ = f.SetCellValue(summarySheet, "B4", report.WindowStart.Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A5", "Window End")
	_ = f.SetCellValue(summarySheet, "B5", report.WindowEnd.Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A6", "Patients")
	_ = f.SetCellValue(summarySheet, "B6", len(report.Patients))

	_ = f.SetCellValue(patientsSheet, "A1", "Patient ID")
	_ = f.SetCellValue(patientsSheet, "B1", "Name")
	_ = f.SetCellValue(patientsSheet, "C1", "Condition")
	_ = f.SetCellValue(patientsSheet, "D1", "Taken")
	_ = f.SetCellValue(patientsSheet, "E1", "Missed")
	_ = f.SetCellValue(patientsSheet, "F1", "Rate")
	for i, row := range report.Patients {
		line := i + 2
		_ = f.SetCellValue(patientsSheet, fmt.Sprintf("A%d", line), row.PatientID)
		_ = f.SetCellValue(patientsSheet, fmt.Sprintf("B%d", line), row.PatientName)
		_ = f.SetCellValue(patientsSheet, fmt.Sprintf("C%d", line), row.Condition)
		_ = f.SetCellValue(patientsSheet, fmt.Sprintf("D%d", line), row.Taken)
		_ = f.SetCellValue(patientsSheet, fmt.Sprintf("E%d", line), row.Missed)
		_ = f.SetCellValue(patientsSheet, fmt.Sprintf("F%d", line), row.Rate)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
