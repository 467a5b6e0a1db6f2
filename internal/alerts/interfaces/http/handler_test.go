package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	alertapp "carecoord/internal/alerts/application"
	alerts "carecoord/internal/alerts/domain"
	alertsmemory "carecoord/internal/alerts/infrastructure/memory"
)

func newTestService(t *testing.T) *alertapp.Service {
	t.Helper()
	service, err := alertapp.NewService(alertsmemory.NewAlertRepository(), "clinic-1")
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service
}

func TestListFiltersByPatientQueryParam(t *testing.T) {
	service := newTestService(t)
	handler, err := NewHandler(service, nil)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	ctx := context.Background()
	if _, _, err := service.Emit(ctx, "patient-1", alerts.TypeMedication, alerts.PriorityHigh, "t", "m"); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if _, _, err := service.Emit(ctx, "patient-2", alerts.TypeMedication, alerts.PriorityHigh, "t", "m"); err != nil {
		t.Fatalf("emit: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts?patient_id=patient-2", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", rec.Code)
	}
	var list []alerts.Alert
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 || list[0].PatientID != "patient-2" {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestListRejectsInvalidStatus(t *testing.T) {
	handler, err := NewHandler(newTestService(t), nil)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts?status=bogus", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rec.Code)
	}
}

func TestAcknowledgeUnknownAlert(t *testing.T) {
	handler, err := NewHandler(newTestService(t), nil)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/alerts/missing/acknowledge", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", rec.Code)
	}
}
