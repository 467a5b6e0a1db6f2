package application

import (
	"context"
	"testing"
	"time"

	adherence "carecoord/internal/adherence/domain"
	adherencememory "carecoord/internal/adherence/infrastructure/memory"
	patients "carecoord/internal/patients/domain"
)

type stubPatientRepo struct {
	list []patients.Patient
}

func (r *stubPatientRepo) Get(ctx context.Context, id string) (*patients.Patient, error) {
	for i := range r.list {
		if r.list[i].ID == id {
			return &r.list[i], nil
		}
	}
	return nil, nil
}

func (r *stubPatientRepo) ListByTenant(ctx context.Context, tenantID string) ([]patients.Patient, error) {
	var result []patients.Patient
	for _, patient := range r.list {
		if patient.TenantID == tenantID {
			result = append(result, patient)
		}
	}
	return result, nil
}

func (r *stubPatientRepo) Save(ctx context.Context, patient *patients.Patient) error {
	r.list = append(r.list, *patient)
	return nil
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

func TestAdherenceReportRatesAndWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	log := adherencememory.NewEventRepository()
	roster := &stubPatientRepo{list: []patients.Patient{
		{ID: "patient-1", TenantID: "clinic-1", Name: "Robert Johnson", Condition: "Hypertension"},
		{ID: "patient-2", TenantID: "clinic-1", Name: "Mary Smith", Condition: "Diabetes"},
		{ID: "patient-9", TenantID: "clinic-2", Name: "Other Clinic"},
	}}

	record := func(id, patientID string, taken bool, at time.Time) {
		t.Helper()
		err := log.Append(context.Background(), adherence.Event{
			ID:           id,
			TenantID:     "clinic-1",
			PatientID:    patientID,
			OccurrenceID: id + "-occ",
			Taken:        taken,
			Timestamp:    at,
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	record("adh-1", "patient-1", true, now.Add(-2*time.Hour))
	record("adh-2", "patient-1", true, now.Add(-26*time.Hour))
	record("adh-3", "patient-1", false, now.Add(-3*time.Hour))
	// Outside the 7 day window, must not count.
	record("adh-4", "patient-1", false, now.Add(-8*24*time.Hour))

	service, err := NewReportService(log, roster, "clinic-1", WithClock(fixedClock{now: now}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	report, err := service.Adherence(context.Background(), 7*24*time.Hour)
	if err != nil {
		t.Fatalf("adherence: %v", err)
	}
	if report.TenantID != "clinic-1" {
		t.Fatalf("tenant %q", report.TenantID)
	}
	if len(report.Patients) != 2 {
		t.Fatalf("expected 2 patients, got %d", len(report.Patients))
	}

	first := report.Patients[0]
	if first.PatientID != "patient-1" {
		t.Fatalf("expected patient-1 first, got %s", first.PatientID)
	}
	if first.Taken != 2 || first.Missed != 1 {
		t.Fatalf("patient-1 counts taken=%d missed=%d", first.Taken, first.Missed)
	}
	if got := first.Rate; got < 0.66 || got > 0.67 {
		t.Fatalf("patient-1 rate %f", got)
	}

	second := report.Patients[1]
	if second.PatientID != "patient-2" {
		t.Fatalf("expected patient-2 second, got %s", second.PatientID)
	}
	if second.Taken != 0 || second.Missed != 0 || second.Rate != 0 {
		t.Fatalf("patient-2 should be empty, got %+v", second)
	}
}
