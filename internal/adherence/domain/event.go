package adherence

import (
	"context"
	"errors"
	"time"
)

// Event is an immutable record of whether a dose was taken or missed. The
// log is append-only and serves as the canonical audit trail; events are
// never mutated or deleted.
type Event struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	PatientID    string    `json:"patient_id"`
	ScheduleID   string    `json:"schedule_id"`
	OccurrenceID string    `json:"occurrence_id"`
	Taken        bool      `json:"taken"`
	Timestamp    time.Time `json:"timestamp"`
}

// Validate checks event invariants before append.
func (e Event) Validate() error {
	if e.ID == "" {
		return errors.New("adherence event: empty id")
	}
	if e.TenantID == "" {
		return errors.New("adherence event: empty tenant id")
	}
	if e.PatientID == "" {
		return errors.New("adherence event: empty patient id")
	}
	if e.OccurrenceID == "" {
		return errors.New("adherence event: empty occurrence id")
	}
	if e.Timestamp.IsZero() {
		return errors.New("adherence event: zero timestamp")
	}
	return nil
}

// Repository persists the append-only adherence log.
//
// Sliding-window reads are inclusive of the lower boundary: an event with
// Timestamp exactly equal to since is returned and counted.
type Repository interface {
	Append(ctx context.Context, event Event) error
	ListByPatientSince(ctx context.Context, tenantID, patientID string, since time.Time) ([]Event, error)
	CountMissedSince(ctx context.Context, tenantID, patientID string, since time.Time) (int, error)
}
