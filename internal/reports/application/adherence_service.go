package application

import (
	"context"
	"errors"
	"sort"
	"time"

	adherence "carecoord/internal/adherence/domain"
	"carecoord/internal/auth"
	patients "carecoord/internal/patients/domain"
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// PatientAdherence is one patient's adherence summary over a window.
type PatientAdherence struct {
	PatientID   string  `json:"patient_id"`
	PatientName string  `json:"patient_name"`
	Condition   string  `json:"condition"`
	Taken       int     `json:"taken"`
	Missed      int     `json:"missed"`
	Rate        float64 `json:"rate"`
}

// AdherenceReport is a tenant-wide adherence summary.
type AdherenceReport struct {
	TenantID    string             `json:"tenant_id"`
	WindowStart time.Time          `json:"window_start"`
	WindowEnd   time.Time          `json:"window_end"`
	Patients    []PatientAdherence `json:"patients"`
}

// ReportService computes adherence summaries from the event log.
type ReportService struct {
	log      adherence.Repository
	patients patients.Repository
	clock    Clock
	tenantID string
}

// ServiceOption customizes the report service.
type ServiceOption func(*ReportService)

// WithClock assigns a clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *ReportService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewReportService constructs a report service.
func NewReportService(log adherence.Repository, patientRepo patients.Repository, tenantID string, opts ...ServiceOption) (*ReportService, error) {
	if log == nil {
		return nil, errors.New("reports: nil adherence log")
	}
	if patientRepo == nil {
		return nil, errors.New("reports: nil patient repository")
	}
	if tenantID == "" {
		return nil, errors.New("reports: empty tenant id")
	}
	service := &ReportService{
		log:      log,
		patients: patientRepo,
		clock:    systemClock{},
		tenantID: tenantID,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Adherence summarizes dose outcomes per patient over the trailing window.
// Patients with no events in the window report a rate of zero.
func (s *ReportService) Adherence(ctx context.Context, window time.Duration) (*AdherenceReport, error) {
	if s == nil {
		return nil, errors.New("reports: nil service")
	}
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}
	tenantID := auth.TenantIDFromContext(ctx)
	if tenantID == "" {
		tenantID = s.tenantID
	}

	now := s.clock.Now().UTC()
	since := now.Add(-window)

	roster, err := s.patients.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	report := &AdherenceReport{
		TenantID:    tenantID,
		WindowStart: since,
		WindowEnd:   now,
		Patients:    make([]PatientAdherence, 0, len(roster)),
	}
	for _, patient := range roster {
		events, err := s.log.ListByPatientSince(ctx, tenantID, patient.ID, since)
		if err != nil {
			return nil, err
		}
		summary := PatientAdherence{
			PatientID:   patient.ID,
			PatientName: patient.Name,
			Condition:   patient.Condition,
		}
		for _, event := range events {
			if event.Taken {
				summary.Taken++
			} else {
				summary.Missed++
			}
		}
		if total := summary.Taken + summary.Missed; total > 0 {
			summary.Rate = float64(summary.Taken) / float64(total)
		}
		report.Patients = append(report.Patients, summary)
	}
	sort.Slice(report.Patients, func(i, j int) bool {
		return report.Patients[i].PatientID < report.Patients[j].PatientID
	})
	return report, nil
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
