package application

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	adherence "carecoord/internal/adherence/domain"
	"carecoord/internal/observability/metrics"
	"carecoord/internal/reminders/application/events"
	reminders "carecoord/internal/reminders/domain"
)

// EventPublisher publishes domain events.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// Service owns schedules and reminder occurrences. All mutation of either
// collection goes through this service; writes are serialized per patient so
// concurrent sessions for the same patient cannot break the one-pending-
// occurrence invariant.
type Service struct {
	schedules   reminders.ScheduleRepository
	occurrences reminders.OccurrenceRepository
	log         adherence.Repository
	bus         EventPublisher
	clock       Clock
	tenantID    string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// ServiceOption customizes the reminder service.
type ServiceOption func(*Service)

// WithClock assigns a clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewService constructs a reminder service.
func NewService(schedules reminders.ScheduleRepository, occurrences reminders.OccurrenceRepository, log adherence.Repository, bus EventPublisher, tenantID string, opts ...ServiceOption) (*Service, error) {
	if schedules == nil || occurrences == nil {
		return nil, errors.New("reminders: nil repository")
	}
	if log == nil {
		return nil, errors.New("reminders: nil adherence log")
	}
	if tenantID == "" {
		return nil, errors.New("reminders: empty tenant id")
	}
	service := &Service{
		schedules:   schedules,
		occurrences: occurrences,
		log:         log,
		bus:         bus,
		tenantID:    tenantID,
		clock:       systemClock{},
		locks:       make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// CreateSchedule stores a schedule and spawns its first pending occurrence.
func (s *Service) CreateSchedule(ctx context.Context, patientID, scheduleText string) (*reminders.Schedule, error) {
	if s == nil {
		return nil, errors.New("reminders: nil service")
	}
	if patientID == "" {
		return nil, errors.New("reminders: patient id required")
	}
	now := s.clock.Now()
	schedule := &reminders.Schedule{
		ID:           buildScheduleID(s.tenantID, patientID, now),
		TenantID:     s.tenantID,
		PatientID:    patientID,
		ScheduleText: scheduleText,
		Active:       true,
		CreatedAt:    now.UTC(),
		UpdatedAt:    now.UTC(),
	}
	if err := schedule.Validate(); err != nil {
		return nil, err
	}
	if err := s.schedules.Create(ctx, schedule); err != nil {
		return nil, err
	}
	if err := s.spawnOccurrence(ctx, schedule, 1, now); err != nil {
		return nil, err
	}
	metrics.IncScheduleEvent("created")
	return schedule, nil
}

// DeactivateSchedule marks a schedule inactive and removes its outstanding
// pending occurrence. No adherence event is written: the patient took no
// action, and the log records actions only.
func (s *Service) DeactivateSchedule(ctx context.Context, scheduleID string) error {
	if s == nil {
		return errors.New("reminders: nil service")
	}
	schedule, err := s.schedules.GetByID(ctx, scheduleID)
	if err != nil {
		return err
	}
	if schedule == nil {
		return reminders.ErrNotFound
	}
	if !schedule.Active {
		return nil
	}
	if err := s.schedules.SetActive(ctx, scheduleID, false, s.clock.Now().UTC()); err != nil {
		return err
	}
	if err := s.occurrences.DeletePendingBySchedule(ctx, scheduleID); err != nil {
		return err
	}
	metrics.IncScheduleEvent("deactivated")
	return nil
}

// ListReminders returns the pending occurrences for a patient's active
// schedules, the single authoritative reminder view for all consumers.
func (s *Service) ListReminders(ctx context.Context, patientID string) ([]reminders.Occurrence, error) {
	if s == nil {
		return nil, errors.New("reminders: nil service")
	}
	if patientID == "" {
		return nil, errors.New("reminders: patient id required")
	}
	return s.occurrences.ListPendingByPatient(ctx, s.tenantID, patientID)
}

// MarkTaken resolves a pending occurrence as taken.
func (s *Service) MarkTaken(ctx context.Context, occurrenceID string) (*reminders.Occurrence, error) {
	return s.resolve(ctx, occurrenceID, reminders.StatusTaken)
}

// MarkMissed resolves a pending occurrence as missed.
func (s *Service) MarkMissed(ctx context.Context, occurrenceID string) (*reminders.Occurrence, error) {
	return s.resolve(ctx, occurrenceID, reminders.StatusMissed)
}

// ReapOverdue resolves pending occurrences whose due time elapsed more than
// grace ago, recording them as missed so the adherence signal is not lost.
func (s *Service) ReapOverdue(ctx context.Context, grace time.Duration) (int, error) {
	if s == nil {
		return 0, errors.New("reminders: nil service")
	}
	if grace < 0 {
		grace = 0
	}
	cutoff := s.clock.Now().UTC().Add(-grace)
	overdue, err := s.occurrences.ListPendingDueBefore(ctx, cutoff, 100)
	if err != nil {
		return 0, err
	}
	reaped := 0
	for _, occurrence := range overdue {
		if _, err := s.resolve(ctx, occurrence.ID, reminders.StatusMissed); err != nil {
			if errors.Is(err, reminders.ErrAlreadyResolved) || errors.Is(err, reminders.ErrNotFound) {
				continue
			}
			return reaped, err
		}
		reaped++
	}
	return reaped, nil
}

func (s *Service) resolve(ctx context.Context, occurrenceID, status string) (*reminders.Occurrence, error) {
	if s == nil {
		return nil, errors.New("reminders: nil service")
	}
	if occurrenceID == "" {
		return nil, errors.New("reminders: occurrence id required")
	}

	occurrence, err := s.occurrences.GetByID(ctx, occurrenceID)
	if err != nil {
		return nil, err
	}
	if occurrence == nil {
		return nil, reminders.ErrNotFound
	}

	unlock := s.lockPatient(occurrence.PatientID)
	defer unlock()

	// Reload under the lock; a concurrent mark may have resolved it.
	occurrence, err = s.occurrences.GetByID(ctx, occurrenceID)
	if err != nil {
		return nil, err
	}
	if occurrence == nil {
		return nil, reminders.ErrNotFound
	}
	if occurrence.Terminal() {
		return nil, reminders.ErrAlreadyResolved
	}

	now := s.clock.Now().UTC()
	event := adherence.Event{
		ID:           buildAdherenceEventID(occurrence.ID),
		TenantID:     occurrence.TenantID,
		PatientID:    occurrence.PatientID,
		ScheduleID:   occurrence.ScheduleID,
		OccurrenceID: occurrence.ID,
		Taken:        status == reminders.StatusTaken,
		Timestamp:    now,
	}
	if err := s.log.Append(ctx, event); err != nil {
		if !errors.Is(err, adherence.ErrDuplicateEvent) {
			// The mark must not report success when the log write failed.
			return nil, err
		}
		// A prior attempt appended the event but crashed before resolving
		// the occurrence. Carry on so the retry can finish the resolution.
	} else {
		metrics.IncAdherenceEvent(status)
	}
	if err := s.occurrences.MarkResolved(ctx, occurrence.ID, status, now); err != nil {
		return nil, err
	}
	occurrence.Status = status
	occurrence.ResolvedAt = now
	occurrence.UpdatedAt = now
	metrics.IncReminderResolved(status)

	schedule, err := s.schedules.GetByID(ctx, occurrence.ScheduleID)
	if err != nil {
		return nil, err
	}
	if schedule != nil && schedule.Active {
		if err := s.spawnOccurrence(ctx, schedule, occurrence.Cycle+1, now); err != nil {
			return nil, err
		}
	}

	if s.bus != nil {
		if err := s.bus.Publish(ctx, events.AdherenceRecorded{
			TenantID:     event.TenantID,
			PatientID:    event.PatientID,
			ScheduleID:   event.ScheduleID,
			OccurrenceID: event.OccurrenceID,
			Taken:        event.Taken,
			OccurredAt:   event.Timestamp,
		}); err != nil {
			return nil, err
		}
	}
	return occurrence, nil
}

func (s *Service) spawnOccurrence(ctx context.Context, schedule *reminders.Schedule, cycle int, now time.Time) error {
	occurrence := &reminders.Occurrence{
		ID:         reminders.BuildOccurrenceID(schedule.ID, cycle),
		ScheduleID: schedule.ID,
		TenantID:   schedule.TenantID,
		PatientID:  schedule.PatientID,
		Cycle:      cycle,
		DueAt:      reminders.NextDue(schedule.ScheduleText, now),
		Status:     reminders.StatusPending,
		CreatedAt:  now.UTC(),
		UpdatedAt:  now.UTC(),
	}
	return s.occurrences.Create(ctx, occurrence)
}

func (s *Service) lockPatient(patientID string) func() {
	s.mu.Lock()
	lock := s.locks[patientID]
	if lock == nil {
		lock = &sync.Mutex{}
		s.locks[patientID] = lock
	}
	s.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}

func buildScheduleID(tenantID, patientID string, now time.Time) string {
	sum := sha1.Sum([]byte(tenantID + "|" + patientID + "|" + now.Format(time.RFC3339Nano)))
	return "sched-" + hex.EncodeToString(sum[:8])
}

func buildAdherenceEventID(occurrenceID string) string {
	sum := sha1.Sum([]byte(occurrenceID))
	return "adh-" + hex.EncodeToString(sum[:8])
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
