package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	reminders "carecoord/internal/reminders/domain"
)

// ScheduleRepository is a Postgres repository for medication schedules.
type ScheduleRepository struct {
	db *sql.DB
}

// NewScheduleRepository constructs a repository.
func NewScheduleRepository(db *sql.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// Create inserts a schedule.
func (r *ScheduleRepository) Create(ctx context.Context, schedule *reminders.Schedule) error {
	if r == nil || r.db == nil {
		return errors.New("schedule repo: nil db")
	}
	if schedule == nil {
		return errors.New("schedule repo: nil schedule")
	}
	if schedule.ID == "" || schedule.TenantID == "" || schedule.PatientID == "" {
		return errors.New("schedule repo: missing fields")
	}
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = time.Now().UTC()
	}
	if schedule.UpdatedAt.IsZero() {
		schedule.UpdatedAt = schedule.CreatedAt
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO medication_schedules (
	id, tenant_id, patient_id, schedule_text, active, created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7
)`,
		schedule.ID,
		schedule.TenantID,
		schedule.PatientID,
		schedule.ScheduleText,
		schedule.Active,
		schedule.CreatedAt,
		schedule.UpdatedAt,
	)
	return err
}

// GetByID fetches a schedule by id. Returns nil when absent.
func (r *ScheduleRepository) GetByID(ctx context.Context, id string) (*reminders.Schedule, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("schedule repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, tenant_id, patient_id, schedule_text, active, created_at, updated_at
FROM medication_schedules
WHERE id = $1`, id)
	return scanSchedule(row)
}

// ListActiveByPatient lists a patient's active schedules.
func (r *ScheduleRepository) ListActiveByPatient(ctx context.Context, tenantID, patientID string) ([]reminders.Schedule, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("schedule repo: nil db")
	}
	if tenantID == "" || patientID == "" {
		return nil, errors.New("schedule repo: invalid query")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, tenant_id, patient_id, schedule_text, active, created_at, updated_at
FROM medication_schedules
WHERE tenant_id = $1 AND patient_id = $2 AND active = TRUE
ORDER BY created_at ASC`, tenantID, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []reminders.Schedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *schedule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// SetActive flips the active flag.
func (r *ScheduleRepository) SetActive(ctx context.Context, id string, active bool, updatedAt time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("schedule repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE medication_schedules
SET active = $1, updated_at = $2
WHERE id = $3`, active, updatedAt, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return reminders.ErrNotFound
	}
	return nil
}

type scheduleScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row scheduleScanner) (*reminders.Schedule, error) {
	var schedule reminders.Schedule
	if err := row.Scan(
		&schedule.ID,
		&schedule.TenantID,
		&schedule.PatientID,
		&schedule.ScheduleText,
		&schedule.Active,
		&schedule.CreatedAt,
		&schedule.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	schedule.CreatedAt = schedule.CreatedAt.UTC()
	schedule.UpdatedAt = schedule.UpdatedAt.UTC()
	return &schedule, nil
}
