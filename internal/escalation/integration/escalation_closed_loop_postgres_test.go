package integration_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	adherencerepo "carecoord/internal/adherence/infrastructure/postgres"
	alertapp "carecoord/internal/alerts/application"
	alerts "carecoord/internal/alerts/domain"
	alertrepo "carecoord/internal/alerts/infrastructure/postgres"
	escalationapp "carecoord/internal/escalation/application"
	escalationinterfaces "carecoord/internal/escalation/interfaces"
	"carecoord/internal/eventing"
	"carecoord/internal/eventing/eventbus"
	eventingrepo "carecoord/internal/eventing/infrastructure/postgres"
	remindersapp "carecoord/internal/reminders/application"
	remindersevents "carecoord/internal/reminders/application/events"
	reminderrepo "carecoord/internal/reminders/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type emitterAdapter struct {
	service *alertapp.Service
}

func (e emitterAdapter) Emit(ctx context.Context, patientID, alertType, priority, title, message string) (bool, error) {
	_, created, err := e.service.Emit(ctx, patientID, alertType, priority, title, message)
	return created, err
}

func TestEscalationClosedLoop_Postgres(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if !tableExists(db, "medication_schedules") ||
		!tableExists(db, "reminder_occurrences") ||
		!tableExists(db, "adherence_events") ||
		!tableExists(db, "alerts") ||
		!tableExists(db, "event_outbox") ||
		!tableExists(db, "processed_events") ||
		!tableExists(db, "dead_letter_events") {
		t.Skip("missing tables; run migrations")
	}

	ctx := context.Background()
	tenantID := "clinic-it-escalation"
	patientID := "patient-it-escalation"

	_, _ = db.ExecContext(ctx, "DELETE FROM adherence_events WHERE tenant_id = $1", tenantID)
	_, _ = db.ExecContext(ctx, "DELETE FROM reminder_occurrences WHERE tenant_id = $1", tenantID)
	_, _ = db.ExecContext(ctx, "DELETE FROM medication_schedules WHERE tenant_id = $1", tenantID)
	_, _ = db.ExecContext(ctx, "DELETE FROM alerts WHERE tenant_id = $1", tenantID)
	_, _ = db.ExecContext(ctx, "DELETE FROM event_outbox")
	_, _ = db.ExecContext(ctx, "DELETE FROM processed_events")
	_, _ = db.ExecContext(ctx, "DELETE FROM dead_letter_events")

	baseBus := eventbus.NewInMemoryBus()
	registry := eventing.NewRegistry()
	registry.Register(remindersevents.AdherenceRecorded{})

	outboxStore := eventingrepo.NewOutboxStore(db)
	processedStore := eventingrepo.NewProcessedStore(db)
	dlqStore := eventingrepo.NewDLQStore(db)
	dispatcher := eventing.NewDispatcher(baseBus, outboxStore, registry, dlqStore)
	publisher := eventing.NewPublisher(outboxStore, dispatcher, tenantID, baseBus)

	scheduleRepo := reminderrepo.NewScheduleRepository(db)
	occurrenceRepo := reminderrepo.NewOccurrenceRepository(db)
	adherenceLog := adherencerepo.NewEventRepository(db)
	alertRepo := alertrepo.NewAlertRepository(db)

	reminderService, err := remindersapp.NewService(scheduleRepo, occurrenceRepo, adherenceLog, publisher, tenantID)
	if err != nil {
		t.Fatalf("new reminder service: %v", err)
	}
	alertService, err := alertapp.NewService(alertRepo, tenantID)
	if err != nil {
		t.Fatalf("new alert service: %v", err)
	}

	escCfg := escalationapp.Config{
		Defaults: escalationapp.Rule{
			Threshold: 3,
			Window:    24 * time.Hour,
			Type:      alerts.TypeMedication,
			Priority:  alerts.PriorityHigh,
			Title:     "Patient Medication Non-Adherence",
			Message:   "Patient has missed {{missed}} medications in 24 hours",
		},
	}
	engine, err := escalationapp.NewEngine(adherenceLog, emitterAdapter{service: alertService}, escCfg)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	consumer, err := escalationinterfaces.NewAdherenceRecordedConsumer(engine)
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}
	eventing.Subscribe(baseBus, eventbus.EventTypeOf[remindersevents.AdherenceRecorded](), "escalation.adherence", func(ctx context.Context, event any) error {
		evt, ok := event.(remindersevents.AdherenceRecorded)
		if !ok {
			return eventbus.ErrInvalidEventType
		}
		return consumer.Consume(ctx, evt)
	}, processedStore)

	ctx = eventing.WithTenantID(ctx, tenantID)
	if _, err := reminderService.CreateSchedule(ctx, patientID, "Metformin 500mg twice daily"); err != nil {
		t.Fatalf("create schedule: %v", err)
	}

	markPending := func() {
		t.Helper()
		pending, err := reminderService.ListReminders(ctx, patientID)
		if err != nil {
			t.Fatalf("list reminders: %v", err)
		}
		if len(pending) != 1 {
			t.Fatalf("expected one pending occurrence, got %d", len(pending))
		}
		if _, err := reminderService.MarkMissed(ctx, pending[0].ID); err != nil {
			t.Fatalf("mark missed: %v", err)
		}
		_ = dispatcher.Dispatch(ctx, 10)
	}

	markPending()
	markPending()
	if active, err := alertRepo.FindActiveByPatientAndType(ctx, tenantID, patientID, alerts.TypeMedication); err != nil {
		t.Fatalf("find active: %v", err)
	} else if active != nil {
		t.Fatalf("no alert expected below threshold")
	}

	markPending()
	active, err := alertRepo.FindActiveByPatientAndType(ctx, tenantID, patientID, alerts.TypeMedication)
	if err != nil {
		t.Fatalf("find active: %v", err)
	}
	if active == nil {
		t.Fatalf("expected active alert after third miss")
	}
	if active.Priority != alerts.PriorityHigh {
		t.Fatalf("priority %s", active.Priority)
	}

	// A fourth miss must not raise a second alert while the first is active.
	markPending()
	list, err := alertService.List(ctx, "", alerts.StatusActive, 10)
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected one active alert, got %d", len(list))
	}

	if _, err := alertService.Acknowledge(ctx, active.ID); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}

	// With the loop closed, the next miss opens a fresh alert.
	markPending()
	fresh, err := alertRepo.FindActiveByPatientAndType(ctx, tenantID, patientID, alerts.TypeMedication)
	if err != nil {
		t.Fatalf("find active after ack: %v", err)
	}
	if fresh == nil {
		t.Fatalf("expected new alert after acknowledgement")
	}
	if fresh.ID == active.ID {
		t.Fatalf("expected a new alert id")
	}
}

func tableExists(db *sql.DB, table string) bool {
	var exists bool
	err := db.QueryRow(`
SELECT EXISTS (
	SELECT 1
	FROM information_schema.tables
	WHERE table_schema = 'public' AND table_name = $1
)`, table).Scan(&exists)
	if err != nil {
		return false
	}
	return exists
}
