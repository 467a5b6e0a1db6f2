package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	alerts "carecoord/internal/alerts/domain"
)

// AlertRepository is an in-memory alert store for demo/testing.
type AlertRepository struct {
	mu   sync.RWMutex
	data map[string]*alerts.Alert
}

// NewAlertRepository constructs a repository.
func NewAlertRepository() *AlertRepository {
	return &AlertRepository{data: make(map[string]*alerts.Alert)}
}

// Create stores an alert.
func (r *AlertRepository) Create(ctx context.Context, alert *alerts.Alert) error {
	_ = ctx
	if alert == nil {
		return errors.New("memory alert repo: nil alert")
	}
	if alert.ID == "" {
		return errors.New("memory alert repo: empty id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *alert
	r.data[alert.ID] = &copied
	return nil
}

// GetByID loads an alert by id. Returns nil when absent.
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*alerts.Alert, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	alert := r.data[id]
	if alert == nil {
		return nil, nil
	}
	copied := *alert
	return &copied, nil
}

// FindActiveByPatientAndType returns the patient's active alert of a type.
func (r *AlertRepository) FindActiveByPatientAndType(ctx context.Context, tenantID, patientID, alertType string) (*alerts.Alert, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *alerts.Alert
	for _, alert := range r.data {
		if alert == nil || alert.Status != alerts.StatusActive {
			continue
		}
		if alert.TenantID != tenantID || alert.PatientID != patientID || alert.Type != alertType {
			continue
		}
		if latest == nil || alert.CreatedAt.After(latest.CreatedAt) {
			latest = alert
		}
	}
	if latest == nil {
		return nil, nil
	}
	copied := *latest
	return &copied, nil
}

// ListByTenant lists a clinic's alerts, newest first. Empty patientID or
// status leaves that filter off.
func (r *AlertRepository) ListByTenant(ctx context.Context, tenantID, patientID, status string, limit int) ([]alerts.Alert, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []alerts.Alert
	for _, alert := range r.data {
		if alert == nil || alert.TenantID != tenantID {
			continue
		}
		if patientID != "" && alert.PatientID != patientID {
			continue
		}
		if status != "" && alert.Status != status {
			continue
		}
		result = append(result, *alert)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// MarkResolved moves an active alert to a terminal status.
func (r *AlertRepository) MarkResolved(ctx context.Context, id, status string, resolvedAt time.Time) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	alert := r.data[id]
	if alert == nil {
		return alerts.ErrNotFound
	}
	if alert.Status != alerts.StatusActive {
		return alerts.ErrAlreadyResolved
	}
	alert.Status = status
	alert.ResolvedAt = resolvedAt
	alert.UpdatedAt = resolvedAt
	return nil
}
