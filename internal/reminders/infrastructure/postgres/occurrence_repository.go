package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	reminders "carecoord/internal/reminders/domain"
)

// OccurrenceRepository is a Postgres repository for reminder occurrences.
type OccurrenceRepository struct {
	db *sql.DB
}

// NewOccurrenceRepository constructs a repository.
func NewOccurrenceRepository(db *sql.DB) *OccurrenceRepository {
	return &OccurrenceRepository{db: db}
}

// Create inserts an occurrence. Duplicate ids are ignored so retried cycle
// spawns stay idempotent.
func (r *OccurrenceRepository) Create(ctx context.Context, occurrence *reminders.Occurrence) error {
	if r == nil || r.db == nil {
		return errors.New("occurrence repo: nil db")
	}
	if occurrence == nil {
		return errors.New("occurrence repo: nil occurrence")
	}
	if occurrence.ID == "" || occurrence.ScheduleID == "" || occurrence.PatientID == "" {
		return errors.New("occurrence repo: missing fields")
	}
	if occurrence.CreatedAt.IsZero() {
		occurrence.CreatedAt = time.Now().UTC()
	}
	if occurrence.UpdatedAt.IsZero() {
		occurrence.UpdatedAt = occurrence.CreatedAt
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO reminder_occurrences (
	id, schedule_id, tenant_id, patient_id, cycle, due_at, status,
	resolved_at, created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7,
	$8, $9, $10
)
ON CONFLICT (id) DO NOTHING`,
		occurrence.ID,
		occurrence.ScheduleID,
		occurrence.TenantID,
		occurrence.PatientID,
		occurrence.Cycle,
		occurrence.DueAt,
		occurrence.Status,
		nullableTime(occurrence.ResolvedAt),
		occurrence.CreatedAt,
		occurrence.UpdatedAt,
	)
	return err
}

// GetByID fetches an occurrence by id. Returns nil when absent.
func (r *OccurrenceRepository) GetByID(ctx context.Context, id string) (*reminders.Occurrence, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("occurrence repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, schedule_id, tenant_id, patient_id, cycle, due_at, status,
	resolved_at, created_at, updated_at
FROM reminder_occurrences
WHERE id = $1`, id)
	return scanOccurrence(row)
}

// FindPendingBySchedule returns the schedule's pending occurrence, if any.
func (r *OccurrenceRepository) FindPendingBySchedule(ctx context.Context, scheduleID string) (*reminders.Occurrence, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("occurrence repo: nil db")
	}
	if scheduleID == "" {
		return nil, errors.New("occurrence repo: invalid query")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, schedule_id, tenant_id, patient_id, cycle, due_at, status,
	resolved_at, created_at, updated_at
FROM reminder_occurrences
WHERE schedule_id = $1 AND status = 'pending'
ORDER BY cycle DESC
LIMIT 1`, scheduleID)
	return scanOccurrence(row)
}

// ListPendingByPatient lists the patient's pending occurrences ordered by
// due time.
func (r *OccurrenceRepository) ListPendingByPatient(ctx context.Context, tenantID, patientID string) ([]reminders.Occurrence, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("occurrence repo: nil db")
	}
	if tenantID == "" || patientID == "" {
		return nil, errors.New("occurrence repo: invalid query")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, schedule_id, tenant_id, patient_id, cycle, due_at, status,
	resolved_at, created_at, updated_at
FROM reminder_occurrences
WHERE tenant_id = $1 AND patient_id = $2 AND status = 'pending'
ORDER BY due_at ASC`, tenantID, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOccurrences(rows)
}

// ListPendingDueBefore lists pending occurrences due before the cutoff.
func (r *OccurrenceRepository) ListPendingDueBefore(ctx context.Context, cutoff time.Time, limit int) ([]reminders.Occurrence, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("occurrence repo: nil db")
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, schedule_id, tenant_id, patient_id, cycle, due_at, status,
	resolved_at, created_at, updated_at
FROM reminder_occurrences
WHERE status = 'pending' AND due_at < $1
ORDER BY due_at ASC
LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOccurrences(rows)
}

// MarkResolved moves a pending occurrence to a terminal status. The status
// guard in the WHERE clause makes double marks lose the race at the database.
func (r *OccurrenceRepository) MarkResolved(ctx context.Context, id, status string, resolvedAt time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("occurrence repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE reminder_occurrences
SET status = $1, resolved_at = $2, updated_at = $3
WHERE id = $4 AND status = 'pending'`, status, resolvedAt, resolvedAt, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		existing, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return reminders.ErrNotFound
		}
		return reminders.ErrAlreadyResolved
	}
	return nil
}

// DeletePendingBySchedule removes the schedule's pending occurrences.
func (r *OccurrenceRepository) DeletePendingBySchedule(ctx context.Context, scheduleID string) error {
	if r == nil || r.db == nil {
		return errors.New("occurrence repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
DELETE FROM reminder_occurrences
WHERE schedule_id = $1 AND status = 'pending'`, scheduleID)
	return err
}

func collectOccurrences(rows *sql.Rows) ([]reminders.Occurrence, error) {
	var result []reminders.Occurrence
	for rows.Next() {
		occurrence, err := scanOccurrence(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *occurrence)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type occurrenceScanner interface {
	Scan(dest ...any) error
}

func scanOccurrence(row occurrenceScanner) (*reminders.Occurrence, error) {
	var occurrence reminders.Occurrence
	var resolvedAt sql.NullTime
	if err := row.Scan(
		&occurrence.ID,
		&occurrence.ScheduleID,
		&occurrence.TenantID,
		&occurrence.PatientID,
		&occurrence.Cycle,
		&occurrence.DueAt,
		&occurrence.Status,
		&resolvedAt,
		&occurrence.CreatedAt,
		&occurrence.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	occurrence.DueAt = occurrence.DueAt.UTC()
	occurrence.CreatedAt = occurrence.CreatedAt.UTC()
	occurrence.UpdatedAt = occurrence.UpdatedAt.UTC()
	if resolvedAt.Valid {
		occurrence.ResolvedAt = resolvedAt.Time.UTC()
	}
	return &occurrence, nil
}

func nullableTime(value time.Time) sql.NullTime {
	if value.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value, Valid: true}
}
