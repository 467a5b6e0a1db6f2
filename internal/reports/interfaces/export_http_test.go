package interfaces

import (
	"bytes"
	"context"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	reportapp "carecoord/internal/reports/application"
)

type stubProvider struct {
	report *reportapp.AdherenceReport
	window time.Duration
}

func (p *stubProvider) Adherence(ctx context.Context, window time.Duration) (*reportapp.AdherenceReport, error) {
	p.window = window
	return p.report, nil
}

func sampleReport() *reportapp.AdherenceReport {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	return &reportapp.AdherenceReport{
		TenantID:    "clinic-1",
		WindowStart: now.Add(-7 * 24 * time.Hour),
		WindowEnd:   now,
		Patients: []reportapp.PatientAdherence{
			{PatientID: "patient-1", PatientName: "Robert Johnson", Condition: "Hypertension", Taken: 5, Missed: 2, Rate: 5.0 / 7.0},
			{PatientID: "patient-2", PatientName: "Mary Smith", Condition: "Diabetes", Taken: 7, Missed: 0, Rate: 1},
		},
	}
}

func TestExportCSV(t *testing.T) {
	provider := &stubProvider{report: sampleReport()}
	handler, err := NewExportHandler(provider, nil)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/exports/adherence.csv", nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status %d", recorder.Code)
	}
	if got := recorder.Header().Get("Content-Type"); got != "text/csv" {
		t.Fatalf("content type %q", got)
	}

	records, err := csv.NewReader(bytes.NewReader(recorder.Body.Bytes())).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(records))
	}
	if records[1][0] != "patient-1" || records[1][3] != "5" || records[1][4] != "2" {
		t.Fatalf("unexpected row %v", records[1])
	}
	if records[2][5] != "1.000" {
		t.Fatalf("unexpected rate cell %q", records[2][5])
	}
}

func TestExportXLSX(t *testing.T) {
	provider := &stubProvider{report: sampleReport()}
	handler, err := NewExportHandler(provider, nil)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/exports/adherence.xlsx", nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status %d", recorder.Code)
	}

	f, err := excelize.OpenReader(bytes.NewReader(recorder.Body.Bytes()))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	name, err := f.GetCellValue("patients", "B2")
	if err != nil {
		t.Fatalf("read cell: %v", err)
	}
	if name != "Robert Johnson" {
		t.Fatalf("unexpected cell value %q", name)
	}
	clinic, err := f.GetCellValue("summary", "B3")
	if err != nil {
		t.Fatalf("read cell: %v", err)
	}
	if clinic != "clinic-1" {
		t.Fatalf("unexpected clinic %q", clinic)
	}
}

func TestExportWindowParam(t *testing.T) {
	provider := &stubProvider{report: sampleReport()}
	handler, err := NewExportHandler(provider, nil)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/exports/adherence.csv?window=48h", nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status %d", recorder.Code)
	}
	if provider.window != 48*time.Hour {
		t.Fatalf("window %s", provider.window)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/exports/adherence.csv?window=bogus", nil)
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status %d for bad window", recorder.Code)
	}
}
