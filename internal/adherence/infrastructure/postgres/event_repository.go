package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	adherence "carecoord/internal/adherence/domain"
)

// EventRepository is a Postgres repository for the append-only adherence log.
type EventRepository struct {
	db *sql.DB
}

// NewEventRepository constructs a repository.
func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Append inserts an event. Duplicate ids are rejected.
func (r *EventRepository) Append(ctx context.Context, event adherence.Event) error {
	if r == nil || r.db == nil {
		return errors.New("adherence repo: nil db")
	}
	if err := event.Validate(); err != nil {
		return err
	}
	result, err := r.db.ExecContext(ctx, `
INSERT INTO adherence_events (
	id, tenant_id, patient_id, schedule_id, occurrence_id, taken, ts
) VALUES (
	$1, $2, $3, $4, $5, $6, $7
)
ON CONFLICT (id) DO NOTHING`,
		event.ID,
		event.TenantID,
		event.PatientID,
		event.ScheduleID,
		event.OccurrenceID,
		event.Taken,
		event.Timestamp,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return adherence.ErrDuplicateEvent
	}
	return nil
}

// ListByPatientSince lists events with ts >= since, oldest first.
func (r *EventRepository) ListByPatientSince(ctx context.Context, tenantID, patientID string, since time.Time) ([]adherence.Event, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("adherence repo: nil db")
	}
	if tenantID == "" || patientID == "" {
		return nil, errors.New("adherence repo: invalid query")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, tenant_id, patient_id, schedule_id, occurrence_id, taken, ts
FROM adherence_events
WHERE tenant_id = $1 AND patient_id = $2 AND ts >= $3
ORDER BY ts ASC`, tenantID, patientID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []adherence.Event
	for rows.Next() {
		var event adherence.Event
		if err := rows.Scan(
			&event.ID,
			&event.TenantID,
			&event.PatientID,
			&event.ScheduleID,
			&event.OccurrenceID,
			&event.Taken,
			&event.Timestamp,
		); err != nil {
			return nil, err
		}
		event.Timestamp = event.Timestamp.UTC()
		result = append(result, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// CountMissedSince counts missed events with ts >= since.
func (r *EventRepository) CountMissedSince(ctx context.Context, tenantID, patientID string, since time.Time) (int, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("adherence repo: nil db")
	}
	if tenantID == "" || patientID == "" {
		return 0, errors.New("adherence repo: invalid query")
	}
	var count int
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM adherence_events
WHERE tenant_id = $1 AND patient_id = $2 AND taken = FALSE AND ts >= $3`,
		tenantID, patientID, since).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}
