package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	alerts "carecoord/internal/alerts/domain"
)

// AlertRepository is a Postgres repository for alerts.
type AlertRepository struct {
	db *sql.DB
}

// NewAlertRepository constructs a repository.
func NewAlertRepository(db *sql.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Create inserts a new alert.
func (r *AlertRepository) Create(ctx context.Context, alert *alerts.Alert) error {
	if r == nil || r.db == nil {
		return errors.New("alert repo: nil db")
	}
	if alert == nil {
		return errors.New("alert repo: nil alert")
	}
	if alert.ID == "" || alert.TenantID == "" || alert.PatientID == "" || alert.Type == "" {
		return errors.New("alert repo: missing fields")
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	if alert.UpdatedAt.IsZero() {
		alert.UpdatedAt = alert.CreatedAt
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO alerts (
	id, tenant_id, patient_id, type, priority, title, message, status,
	resolved_at, created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8,
	$9, $10, $11
)`,
		alert.ID,
		alert.TenantID,
		alert.PatientID,
		alert.Type,
		alert.Priority,
		alert.Title,
		alert.Message,
		alert.Status,
		nullableTime(alert.ResolvedAt),
		alert.CreatedAt,
		alert.UpdatedAt,
	)
	return err
}

// GetByID fetches an alert by id. Returns nil when absent.
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, tenant_id, patient_id, type, priority, title, message, status,
	resolved_at, created_at, updated_at
FROM alerts
WHERE id = $1`, id)
	return scanAlert(row)
}

// FindActiveByPatientAndType returns the patient's active alert of a type.
func (r *AlertRepository) FindActiveByPatientAndType(ctx context.Context, tenantID, patientID, alertType string) (*alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	if tenantID == "" || patientID == "" || alertType == "" {
		return nil, errors.New("alert repo: invalid query")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, tenant_id, patient_id, type, priority, title, message, status,
	resolved_at, created_at, updated_at
FROM alerts
WHERE tenant_id = $1 AND patient_id = $2 AND type = $3 AND status = 'active'
ORDER BY created_at DESC
LIMIT 1`, tenantID, patientID, alertType)
	return scanAlert(row)
}

// ListByTenant lists a clinic's alerts, newest first. Empty patientID or
// status leaves that filter off.
func (r *AlertRepository) ListByTenant(ctx context.Context, tenantID, patientID, status string, limit int) ([]alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	if tenantID == "" {
		return nil, errors.New("alert repo: invalid query")
	}
	if limit <= 0 {
		limit = 100
	}
	query := `
SELECT id, tenant_id, patient_id, type, priority, title, message, status,
	resolved_at, created_at, updated_at
FROM alerts
WHERE tenant_id = $1`
	args := []any{tenantID}
	if patientID != "" {
		args = append(args, patientID)
		query += fmt.Sprintf(" AND patient_id = $%d", len(args))
	}
	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []alerts.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *alert)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// MarkResolved moves an active alert to a terminal status.
func (r *AlertRepository) MarkResolved(ctx context.Context, id, status string, resolvedAt time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("alert repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE alerts
SET status = $1, resolved_at = $2, updated_at = $3
WHERE id = $4 AND status = 'active'`, status, resolvedAt, resolvedAt, id)
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
			return alerts.ErrNotFound
		}
		return alerts.ErrAlreadyResolved
	}
	return nil
}

type alertScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row alertScanner) (*alerts.Alert, error) {
	var alert alerts.Alert
	var resolvedAt sql.NullTime
	if err := row.Scan(
		&alert.ID,
		&alert.TenantID,
		&alert.PatientID,
		&alert.Type,
		&alert.Priority,
		&alert.Title,
		&alert.Message,
		&alert.Status,
		&resolvedAt,
		&alert.CreatedAt,
		&alert.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	alert.CreatedAt = alert.CreatedAt.UTC()
	alert.UpdatedAt = alert.UpdatedAt.UTC()
	if resolvedAt.Valid {
		alert.ResolvedAt = resolvedAt.Time.UTC()
	}
	return &alert, nil
}

func nullableTime(value time.Time) sql.NullTime {
	if value.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value, Valid: true}
}
