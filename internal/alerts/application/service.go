package application

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"time"

	alerts "carecoord/internal/alerts/domain"
	"carecoord/internal/auth"
	"carecoord/internal/observability/metrics"
)

// AlertNotifier publishes alert lifecycle events.
type AlertNotifier interface {
	Notify(ctx context.Context, event AlertEvent)
}

// AlertEvent represents a lifecycle update.
type AlertEvent struct {
	Type  string       `json:"type"`
	Alert alerts.Alert `json:"alert"`
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// Service handles alert emission and resolution.
type Service struct {
	alerts   alerts.Repository
	notifier AlertNotifier
	clock    Clock
	tenantID string
}

// ServiceOption customizes the alert service.
type ServiceOption func(*Service)

// WithNotifier assigns a notifier.
func WithNotifier(notifier AlertNotifier) ServiceOption {
	return func(s *Service) {
		s.notifier = notifier
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewService constructs an alert service.
func NewService(repo alerts.Repository, tenantID string, opts ...ServiceOption) (*Service, error) {
	if repo == nil {
		return nil, errors.New("alerts: nil repository")
	}
	if tenantID == "" {
		return nil, errors.New("alerts: empty tenant id")
	}
	service := &Service{
		alerts:   repo,
		tenantID: tenantID,
		clock:    systemClock{},
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Emit raises an alert unless an active alert of the same type already exists
// for the patient. It returns the stored alert and whether it was created.
func (s *Service) Emit(ctx context.Context, patientID, alertType, priority, title, message string) (*alerts.Alert, bool, error) {
	if s == nil {
		return nil, false, errors.New("alerts: nil service")
	}
	if patientID == "" || alertType == "" {
		return nil, false, errors.New("alerts: patient id and type required")
	}

	existing, err := s.alerts.FindActiveByPatientAndType(ctx, s.tenantID, patientID, alertType)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		metrics.IncAlertEvent("suppressed")
		return existing, false, nil
	}

	now := s.clock.Now().UTC()
	alert := &alerts.Alert{
		ID:        buildAlertID(s.tenantID, patientID, alertType, now),
		TenantID:  s.tenantID,
		PatientID: patientID,
		Type:      alertType,
		Priority:  priority,
		Title:     title,
		Message:   message,
		Status:    alerts.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.alerts.Create(ctx, alert); err != nil {
		return nil, false, err
	}
	metrics.IncAlertEvent("raised")
	s.notify(ctx, "raised", *alert)
	return alert, true, nil
}

// Acknowledge resolves an active alert as acknowledged.
func (s *Service) Acknowledge(ctx context.Context, id string) (*alerts.Alert, error) {
	return s.resolve(ctx, id, alerts.StatusAcknowledged)
}

// Dismiss resolves an active alert as dismissed.
func (s *Service) Dismiss(ctx context.Context, id string) (*alerts.Alert, error) {
	return s.resolve(ctx, id, alerts.StatusDismissed)
}

// List returns the clinic's alerts, optionally narrowed to one patient
// and/or one status.
func (s *Service) List(ctx context.Context, patientID, status string, limit int) ([]alerts.Alert, error) {
	if s == nil {
		return nil, errors.New("alerts: nil service")
	}
	tenantID := auth.TenantIDFromContext(ctx)
	if tenantID == "" {
		tenantID = s.tenantID
	}
	return s.alerts.ListByTenant(ctx, tenantID, patientID, status, limit)
}

func (s *Service) resolve(ctx context.Context, id, status string) (*alerts.Alert, error) {
	if s == nil {
		return nil, errors.New("alerts: nil service")
	}
	if id == "" {
		return nil, errors.New("alerts: alert id required")
	}
	alert, err := s.alerts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, alerts.ErrNotFound
	}
	tenantID := auth.TenantIDFromContext(ctx)
	if tenantID == "" {
		tenantID = s.tenantID
	}
	if tenantID != "" && alert.TenantID != tenantID {
		return nil, auth.ErrTenantMismatch
	}
	if !alert.Active() {
		return nil, alerts.ErrAlreadyResolved
	}

	resolvedAt := s.clock.Now().UTC()
	if err := s.alerts.MarkResolved(ctx, alert.ID, status, resolvedAt); err != nil {
		return nil, err
	}
	alert.Status = status
	alert.ResolvedAt = resolvedAt
	alert.UpdatedAt = resolvedAt
	metrics.IncAlertEvent(status)
	s.notify(ctx, status, *alert)
	return alert, nil
}

func (s *Service) notify(ctx context.Context, eventType string, alert alerts.Alert) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, AlertEvent{Type: eventType, Alert: alert})
}

func buildAlertID(tenantID, patientID, alertType string, now time.Time) string {
	sum := sha1.Sum([]byte(tenantID + "|" + patientID + "|" + alertType + "|" + now.Format(time.RFC3339Nano)))
	return "alert-" + hex.EncodeToString(sum[:8])
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
