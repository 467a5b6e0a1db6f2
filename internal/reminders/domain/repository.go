package reminders

import (
	"context"
	"time"
)

// ScheduleRepository persists medication schedules.
type ScheduleRepository interface {
	Create(ctx context.Context, schedule *Schedule) error
	GetByID(ctx context.Context, id string) (*Schedule, error)
	ListActiveByPatient(ctx context.Context, tenantID, patientID string) ([]Schedule, error)
	SetActive(ctx context.Context, id string, active bool, updatedAt time.Time) error
}

// OccurrenceRepository persists reminder occurrences.
type OccurrenceRepository interface {
	Create(ctx context.Context, occurrence *Occurrence) error
	GetByID(ctx context.Context, id string) (*Occurrence, error)
	FindPendingBySchedule(ctx context.Context, scheduleID string) (*Occurrence, error)
	ListPendingByPatient(ctx context.Context, tenantID, patientID string) ([]Occurrence, error)
	ListPendingDueBefore(ctx context.Context, cutoff time.Time, limit int) ([]Occurrence, error)
	MarkResolved(ctx context.Context, id, status string, resolvedAt time.Time) error
	DeletePendingBySchedule(ctx context.Context, scheduleID string) error
}
