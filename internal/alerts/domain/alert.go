package alerts

import (
	"context"
	"time"
)

const (
	StatusActive       = "active"
	StatusAcknowledged = "acknowledged"
	StatusDismissed    = "dismissed"
)

const (
	TypeMedication = "medication"
)

const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Alert represents an escalation raised for a patient.
type Alert struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	PatientID  string    `json:"patient_id"`
	Type       string    `json:"type"`
	Priority   string    `json:"priority"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	Status     string    `json:"status"`
	ResolvedAt time.Time `json:"resolved_at,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Active reports whether the alert still demands attention.
func (a Alert) Active() bool {
	return a.Status == StatusActive
}

// Repository persists alerts.
type Repository interface {
	Create(ctx context.Context, alert *Alert) error
	GetByID(ctx context.Context, id string) (*Alert, error)
	FindActiveByPatientAndType(ctx context.Context, tenantID, patientID, alertType string) (*Alert, error)
	ListByTenant(ctx context.Context, tenantID, patientID, status string, limit int) ([]Alert, error)
	MarkResolved(ctx context.Context, id, status string, resolvedAt time.Time) error
}
