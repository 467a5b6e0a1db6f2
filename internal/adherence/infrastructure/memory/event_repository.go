package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	adherence "carecoord/internal/adherence/domain"
)

// EventRepository is an in-memory adherence log for demo/testing.
type EventRepository struct {
	mu     sync.RWMutex
	events map[string]adherence.Event
}

// NewEventRepository constructs a repository.
func NewEventRepository() *EventRepository {
	return &EventRepository{events: make(map[string]adherence.Event)}
}

// Append stores an event. Duplicate ids are rejected.
func (r *EventRepository) Append(ctx context.Context, event adherence.Event) error {
	_ = ctx
	if err := event.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.events[event.ID]; exists {
		return adherence.ErrDuplicateEvent
	}
	r.events[event.ID] = event
	return nil
}

// ListByPatientSince returns the patient's events with Timestamp >= since,
// oldest first.
func (r *EventRepository) ListByPatientSince(ctx context.Context, tenantID, patientID string, since time.Time) ([]adherence.Event, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []adherence.Event
	for _, event := range r.events {
		if event.TenantID != tenantID || event.PatientID != patientID {
			continue
		}
		if event.Timestamp.Before(since) {
			continue
		}
		result = append(result, event)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Timestamp.Before(result[j].Timestamp) })
	return result, nil
}

// CountMissedSince counts missed events with Timestamp >= since.
func (r *EventRepository) CountMissedSince(ctx context.Context, tenantID, patientID string, since time.Time) (int, error) {
	events, err := r.ListByPatientSince(ctx, tenantID, patientID, since)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, event := range events {
		if !event.Taken {
			count++
		}
	}
	return count, nil
}
