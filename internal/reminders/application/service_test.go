package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	adherencememory "carecoord/internal/adherence/infrastructure/memory"
	"carecoord/internal/reminders/application/events"
	reminders "carecoord/internal/reminders/domain"
	remindersmemory "carecoord/internal/reminders/infrastructure/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []any
}

func (p *capturingPublisher) Publish(ctx context.Context, event any) error {
	_ = ctx
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturingPublisher) Recorded() []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]any(nil), p.events...)
}

func newTestService(t *testing.T, clock *fakeClock) (*Service, *remindersmemory.OccurrenceRepository, *adherencememory.EventRepository, *capturingPublisher) {
	t.Helper()
	schedules := remindersmemory.NewScheduleRepository()
	occurrences := remindersmemory.NewOccurrenceRepository()
	log := adherencememory.NewEventRepository()
	publisher := &capturingPublisher{}
	service, err := NewService(schedules, occurrences, log, publisher, "clinic-1", WithClock(clock))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service, occurrences, log, publisher
}

func TestCreateScheduleSpawnsOnePending(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, time.March, 2, 7, 0, 0, 0, time.UTC)}
	service, _, _, _ := newTestService(t, clock)
	ctx := context.Background()

	schedule, err := service.CreateSchedule(ctx, "patient-1", "Take with breakfast every morning")
	if err != nil {
		t.Fatalf("create schedule: %v", err)
	}

	pending, err := service.ListReminders(ctx, "patient-1")
	if err != nil {
		t.Fatalf("list reminders: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending occurrence, got %d", len(pending))
	}
	if pending[0].ScheduleID != schedule.ID {
		t.Fatalf("pending occurrence belongs to %s, want %s", pending[0].ScheduleID, schedule.ID)
	}
	if pending[0].Cycle != 1 {
		t.Fatalf("expected cycle 1, got %d", pending[0].Cycle)
	}
	want := time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC)
	if !pending[0].DueAt.Equal(want) {
		t.Fatalf("due at %v, want %v", pending[0].DueAt, want)
	}
}

func TestMarkTakenAppendsLogAndSpawnsNextCycle(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, time.March, 2, 7, 0, 0, 0, time.UTC)}
	service, _, log, publisher := newTestService(t, clock)
	ctx := context.Background()

	if _, err := service.CreateSchedule(ctx, "patient-1", "morning pill"); err != nil {
		t.Fatalf("create schedule: %v", err)
	}
	pending, _ := service.ListReminders(ctx, "patient-1")
	clock.Advance(2 * time.Hour)

	resolved, err := service.MarkTaken(ctx, pending[0].ID)
	if err != nil {
		t.Fatalf("mark taken: %v", err)
	}
	if resolved.Status != reminders.StatusTaken {
		t.Fatalf("status %s, want taken", resolved.Status)
	}

	entries, err := log.ListByPatientSince(ctx, "clinic-1", "patient-1", time.Time{})
	if err != nil {
		t.Fatalf("list log: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 adherence event, got %d", len(entries))
	}
	if !entries[0].Taken {
		t.Fatalf("expected taken event")
	}
	if entries[0].OccurrenceID != pending[0].ID {
		t.Fatalf("event occurrence %s, want %s", entries[0].OccurrenceID, pending[0].ID)
	}

	next, _ := service.ListReminders(ctx, "patient-1")
	if len(next) != 1 {
		t.Fatalf("expected next pending occurrence, got %d", len(next))
	}
	if next[0].Cycle != 2 {
		t.Fatalf("expected cycle 2, got %d", next[0].Cycle)
	}

	recorded := publisher.Recorded()
	if len(recorded) != 1 {
		t.Fatalf("expected 1 published event, got %d", len(recorded))
	}
	evt, ok := recorded[0].(events.AdherenceRecorded)
	if !ok {
		t.Fatalf("unexpected event type %T", recorded[0])
	}
	if !evt.Taken || evt.PatientID != "patient-1" {
		t.Fatalf("unexpected event payload: %+v", evt)
	}
}

func TestDoubleMarkReturnsAlreadyResolved(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, time.March, 2, 7, 0, 0, 0, time.UTC)}
	service, _, log, _ := newTestService(t, clock)
	ctx := context.Background()

	if _, err := service.CreateSchedule(ctx, "patient-1", "evening dose"); err != nil {
		t.Fatalf("create schedule: %v", err)
	}
	pending, _ := service.ListReminders(ctx, "patient-1")

	if _, err := service.MarkTaken(ctx, pending[0].ID); err != nil {
		t.Fatalf("first mark: %v", err)
	}
	if _, err := service.MarkMissed(ctx, pending[0].ID); !errors.Is(err, reminders.ErrAlreadyResolved) {
		t.Fatalf("second mark: got %v, want ErrAlreadyResolved", err)
	}

	entries, _ := log.ListByPatientSince(ctx, "clinic-1", "patient-1", time.Time{})
	if len(entries) != 1 {
		t.Fatalf("expected exactly 1 adherence event, got %d", len(entries))
	}
}

func TestMarkUnknownOccurrenceReturnsNotFound(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, time.March, 2, 7, 0, 0, 0, time.UTC)}
	service, _, _, _ := newTestService(t, clock)

	if _, err := service.MarkTaken(context.Background(), "missing#1"); !errors.Is(err, reminders.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestDeactivateScheduleRemovesPendingWithoutLogEntry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, time.March, 2, 7, 0, 0, 0, time.UTC)}
	service, _, log, _ := newTestService(t, clock)
	ctx := context.Background()

	schedule, err := service.CreateSchedule(ctx, "patient-1", "morning pill")
	if err != nil {
		t.Fatalf("create schedule: %v", err)
	}
	if err := service.DeactivateSchedule(ctx, schedule.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	pending, _ := service.ListReminders(ctx, "patient-1")
	if len(pending) != 0 {
		t.Fatalf("expected no pending occurrences, got %d", len(pending))
	}
	entries, _ := log.ListByPatientSince(ctx, "clinic-1", "patient-1", time.Time{})
	if len(entries) != 0 {
		t.Fatalf("expected empty adherence log, got %d events", len(entries))
	}

	// Deactivating twice is a no-op.
	if err := service.DeactivateSchedule(ctx, schedule.ID); err != nil {
		t.Fatalf("second deactivate: %v", err)
	}
}

func TestResolvedScheduleDoesNotSpawnWhenInactive(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, time.March, 2, 7, 0, 0, 0, time.UTC)}
	service, occurrences, _, _ := newTestService(t, clock)
	ctx := context.Background()

	schedule, err := service.CreateSchedule(ctx, "patient-1", "morning pill")
	if err != nil {
		t.Fatalf("create schedule: %v", err)
	}
	pending, _ := service.ListReminders(ctx, "patient-1")

	// Deactivate between load and mark: the occurrence survives the delete
	// only in this test because we re-create it directly.
	if err := service.DeactivateSchedule(ctx, schedule.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	occ := pending[0]
	if err := occurrences.Create(ctx, &occ); err != nil {
		t.Fatalf("recreate occurrence: %v", err)
	}

	if _, err := service.MarkMissed(ctx, occ.ID); err != nil {
		t.Fatalf("mark missed: %v", err)
	}
	remaining, _ := service.ListReminders(ctx, "patient-1")
	if len(remaining) != 0 {
		t.Fatalf("inactive schedule spawned a new occurrence")
	}
}

func TestReapOverdueMarksMissedAndSpawnsNext(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, time.March, 2, 7, 0, 0, 0, time.UTC)}
	service, _, log, publisher := newTestService(t, clock)
	ctx := context.Background()

	if _, err := service.CreateSchedule(ctx, "patient-1", "morning pill"); err != nil {
		t.Fatalf("create schedule: %v", err)
	}
	// Due 08:00; move well past it.
	clock.Advance(6 * time.Hour)

	reaped, err := service.ReapOverdue(ctx, time.Hour)
	if err != nil {
		t.Fatalf("reap: %v", err)
	}
	if reaped != 1 {
		t.Fatalf("expected 1 reaped occurrence, got %d", reaped)
	}

	entries, _ := log.ListByPatientSince(ctx, "clinic-1", "patient-1", time.Time{})
	if len(entries) != 1 || entries[0].Taken {
		t.Fatalf("expected 1 missed event, got %+v", entries)
	}

	pending, _ := service.ListReminders(ctx, "patient-1")
	if len(pending) != 1 || pending[0].Cycle != 2 {
		t.Fatalf("expected cycle 2 pending after reap, got %+v", pending)
	}

	if len(publisher.Recorded()) != 1 {
		t.Fatalf("expected 1 published event after reap")
	}
}

func TestReapOverdueHonorsGrace(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, time.March, 2, 7, 0, 0, 0, time.UTC)}
	service, _, _, _ := newTestService(t, clock)
	ctx := context.Background()

	if _, err := service.CreateSchedule(ctx, "patient-1", "morning pill"); err != nil {
		t.Fatalf("create schedule: %v", err)
	}
	// 08:30: due elapsed 30m ago, inside the 1h grace.
	clock.Advance(90 * time.Minute)

	reaped, err := service.ReapOverdue(ctx, time.Hour)
	if err != nil {
		t.Fatalf("reap: %v", err)
	}
	if reaped != 0 {
		t.Fatalf("expected no reaped occurrences within grace, got %d", reaped)
	}
}

type flakyOccurrenceRepo struct {
	*remindersmemory.OccurrenceRepository
	mu       sync.Mutex
	failures int
}

func (r *flakyOccurrenceRepo) MarkResolved(ctx context.Context, id, status string, resolvedAt time.Time) error {
	r.mu.Lock()
	if r.failures > 0 {
		r.failures--
		r.mu.Unlock()
		return errors.New("storage unavailable")
	}
	r.mu.Unlock()
	return r.OccurrenceRepository.MarkResolved(ctx, id, status, resolvedAt)
}

func TestRetryAfterPartialResolveCompletes(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, time.March, 2, 7, 0, 0, 0, time.UTC)}
	schedules := remindersmemory.NewScheduleRepository()
	occurrences := &flakyOccurrenceRepo{OccurrenceRepository: remindersmemory.NewOccurrenceRepository(), failures: 1}
	log := adherencememory.NewEventRepository()
	publisher := &capturingPublisher{}
	service, err := NewService(schedules, occurrences, log, publisher, "clinic-1", WithClock(clock))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()

	if _, err := service.CreateSchedule(ctx, "patient-1", "morning pill"); err != nil {
		t.Fatalf("create schedule: %v", err)
	}
	pending, _ := service.ListReminders(ctx, "patient-1")

	// First attempt appends the adherence event, then the resolve write fails.
	if _, err := service.MarkTaken(ctx, pending[0].ID); err == nil {
		t.Fatalf("expected first mark to fail")
	}
	still, _ := service.ListReminders(ctx, "patient-1")
	if len(still) != 1 || still[0].ID != pending[0].ID {
		t.Fatalf("occurrence should still be pending, got %+v", still)
	}

	// The retry must not be rejected by the already-written event.
	resolved, err := service.MarkTaken(ctx, pending[0].ID)
	if err != nil {
		t.Fatalf("retry mark: %v", err)
	}
	if resolved.Status != reminders.StatusTaken {
		t.Fatalf("status %s, want taken", resolved.Status)
	}

	entries, _ := log.ListByPatientSince(ctx, "clinic-1", "patient-1", time.Time{})
	if len(entries) != 1 {
		t.Fatalf("expected exactly 1 adherence event, got %d", len(entries))
	}
	next, _ := service.ListReminders(ctx, "patient-1")
	if len(next) != 1 || next[0].Cycle != 2 {
		t.Fatalf("expected single cycle 2 occurrence after retry, got %+v", next)
	}
}

func TestConcurrentMarksResolveExactlyOnce(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, time.March, 2, 7, 0, 0, 0, time.UTC)}
	service, _, log, _ := newTestService(t, clock)
	ctx := context.Background()

	if _, err := service.CreateSchedule(ctx, "patient-1", "morning pill"); err != nil {
		t.Fatalf("create schedule: %v", err)
	}
	pending, _ := service.ListReminders(ctx, "patient-1")

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = service.MarkTaken(ctx, pending[0].ID)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, reminders.ErrAlreadyResolved):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly 1 successful mark, got %d", succeeded)
	}

	entries, _ := log.ListByPatientSince(ctx, "clinic-1", "patient-1", time.Time{})
	if len(entries) != 1 {
		t.Fatalf("expected 1 adherence event, got %d", len(entries))
	}
}
