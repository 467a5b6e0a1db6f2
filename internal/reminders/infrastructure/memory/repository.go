package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	reminders "carecoord/internal/reminders/domain"
)

// ScheduleRepository is an in-memory schedule store for demo/testing.
type ScheduleRepository struct {
	mu   sync.RWMutex
	data map[string]*reminders.Schedule
}

// NewScheduleRepository constructs a repository.
func NewScheduleRepository() *ScheduleRepository {
	return &ScheduleRepository{data: make(map[string]*reminders.Schedule)}
}

// Create stores a schedule.
func (r *ScheduleRepository) Create(ctx context.Context, schedule *reminders.Schedule) error {
	_ = ctx
	if schedule == nil {
		return errors.New("memory schedule repo: nil schedule")
	}
	if schedule.ID == "" {
		return errors.New("memory schedule repo: empty id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *schedule
	r.data[schedule.ID] = &copied
	return nil
}

// GetByID loads a schedule by id. Returns nil when absent.
func (r *ScheduleRepository) GetByID(ctx context.Context, id string) (*reminders.Schedule, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	schedule := r.data[id]
	if schedule == nil {
		return nil, nil
	}
	copied := *schedule
	return &copied, nil
}

// ListActiveByPatient returns the patient's active schedules.
func (r *ScheduleRepository) ListActiveByPatient(ctx context.Context, tenantID, patientID string) ([]reminders.Schedule, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []reminders.Schedule
	for _, schedule := range r.data {
		if schedule == nil || !schedule.Active {
			continue
		}
		if schedule.TenantID != tenantID || schedule.PatientID != patientID {
			continue
		}
		result = append(result, *schedule)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// SetActive flips the active flag.
func (r *ScheduleRepository) SetActive(ctx context.Context, id string, active bool, updatedAt time.Time) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	schedule := r.data[id]
	if schedule == nil {
		return reminders.ErrNotFound
	}
	schedule.Active = active
	schedule.UpdatedAt = updatedAt
	return nil
}

// OccurrenceRepository is an in-memory occurrence store for demo/testing.
type OccurrenceRepository struct {
	mu   sync.RWMutex
	data map[string]*reminders.Occurrence
}

// NewOccurrenceRepository constructs a repository.
func NewOccurrenceRepository() *OccurrenceRepository {
	return &OccurrenceRepository{data: make(map[string]*reminders.Occurrence)}
}

// Create stores an occurrence. Re-creating an existing id is a no-op so
// retried cycle spawns stay idempotent.
func (r *OccurrenceRepository) Create(ctx context.Context, occurrence *reminders.Occurrence) error {
	_ = ctx
	if occurrence == nil {
		return errors.New("memory occurrence repo: nil occurrence")
	}
	if occurrence.ID == "" {
		return errors.New("memory occurrence repo: empty id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.data[occurrence.ID]; exists {
		return nil
	}
	copied := *occurrence
	r.data[occurrence.ID] = &copied
	return nil
}

// GetByID loads an occurrence by id. Returns nil when absent.
func (r *OccurrenceRepository) GetByID(ctx context.Context, id string) (*reminders.Occurrence, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	occurrence := r.data[id]
	if occurrence == nil {
		return nil, nil
	}
	copied := *occurrence
	return &copied, nil
}

// FindPendingBySchedule returns the schedule's pending occurrence, if any.
func (r *OccurrenceRepository) FindPendingBySchedule(ctx context.Context, scheduleID string) (*reminders.Occurrence, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, occurrence := range r.data {
		if occurrence == nil {
			continue
		}
		if occurrence.ScheduleID == scheduleID && occurrence.Status == reminders.StatusPending {
			copied := *occurrence
			return &copied, nil
		}
	}
	return nil, nil
}

// ListPendingByPatient returns the patient's pending occurrences ordered by
// due time.
func (r *OccurrenceRepository) ListPendingByPatient(ctx context.Context, tenantID, patientID string) ([]reminders.Occurrence, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []reminders.Occurrence
	for _, occurrence := range r.data {
		if occurrence == nil || occurrence.Status != reminders.StatusPending {
			continue
		}
		if occurrence.TenantID != tenantID || occurrence.PatientID != patientID {
			continue
		}
		result = append(result, *occurrence)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DueAt.Before(result[j].DueAt) })
	return result, nil
}

// ListPendingDueBefore returns pending occurrences due before the cutoff.
func (r *OccurrenceRepository) ListPendingDueBefore(ctx context.Context, cutoff time.Time, limit int) ([]reminders.Occurrence, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []reminders.Occurrence
	for _, occurrence := range r.data {
		if occurrence == nil || occurrence.Status != reminders.StatusPending {
			continue
		}
		if !occurrence.DueAt.Before(cutoff) {
			continue
		}
		result = append(result, *occurrence)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DueAt.Before(result[j].DueAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// MarkResolved moves a pending occurrence to a terminal status.
func (r *OccurrenceRepository) MarkResolved(ctx context.Context, id, status string, resolvedAt time.Time) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	occurrence := r.data[id]
	if occurrence == nil {
		return reminders.ErrNotFound
	}
	if occurrence.Status != reminders.StatusPending {
		return reminders.ErrAlreadyResolved
	}
	occurrence.Status = status
	occurrence.ResolvedAt = resolvedAt
	occurrence.UpdatedAt = resolvedAt
	return nil
}

// DeletePendingBySchedule removes the schedule's pending occurrences.
func (r *OccurrenceRepository) DeletePendingBySchedule(ctx context.Context, scheduleID string) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, occurrence := range r.data {
		if occurrence == nil {
			continue
		}
		if occurrence.ScheduleID == scheduleID && occurrence.Status == reminders.StatusPending {
			delete(r.data, id)
		}
	}
	return nil
}
