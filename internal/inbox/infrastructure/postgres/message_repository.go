package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	inbox "carecoord/internal/inbox/domain"
)

// MessageRepository is a Postgres repository for inbox messages.
type MessageRepository struct {
	db *sql.DB
}

// NewMessageRepository constructs a repository.
func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create inserts a message.
func (r *MessageRepository) Create(ctx context.Context, message *inbox.Message) error {
	if r == nil || r.db == nil {
		return errors.New("inbox repo: nil db")
	}
	if message == nil {
		return errors.New("inbox repo: nil message")
	}
	if err := message.Validate(); err != nil {
		return err
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO inbox_messages (
	id, tenant_id, patient_id, audience, subject, body, read, created_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8
)
ON CONFLICT (id) DO NOTHING`,
		message.ID,
		message.TenantID,
		message.PatientID,
		message.Audience,
		message.Subject,
		message.Body,
		message.Read,
		message.CreatedAt,
	)
	return err
}

// GetByID fetches a message by id. Returns nil when absent.
func (r *MessageRepository) GetByID(ctx context.Context, id string) (*inbox.Message, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("inbox repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, tenant_id, patient_id, audience, subject, body, read, created_at
FROM inbox_messages
WHERE id = $1`, id)
	var message inbox.Message
	if err := row.Scan(
		&message.ID,
		&message.TenantID,
		&message.PatientID,
		&message.Audience,
		&message.Subject,
		&message.Body,
		&message.Read,
		&message.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	message.CreatedAt = message.CreatedAt.UTC()
	return &message, nil
}

// ListByAudience lists messages for an audience, newest first. A non-empty
// patientID narrows the list to that patient's thread.
func (r *MessageRepository) ListByAudience(ctx context.Context, tenantID, audience, patientID string, limit int) ([]inbox.Message, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("inbox repo: nil db")
	}
	if tenantID == "" || audience == "" {
		return nil, errors.New("inbox repo: invalid query")
	}
	if limit <= 0 {
		limit = 100
	}
	query := `
SELECT id, tenant_id, patient_id, audience, subject, body, read, created_at
FROM inbox_messages
WHERE tenant_id = $1 AND audience = $2`
	args := []any{tenantID, audience}
	if patientID != "" {
		query += " AND patient_id = $3 ORDER BY created_at DESC LIMIT $4"
		args = append(args, patientID, limit)
	} else {
		query += " ORDER BY created_at DESC LIMIT $3"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []inbox.Message
	for rows.Next() {
		var message inbox.Message
		if err := rows.Scan(
			&message.ID,
			&message.TenantID,
			&message.PatientID,
			&message.Audience,
			&message.Subject,
			&message.Body,
			&message.Read,
			&message.CreatedAt,
		); err != nil {
			return nil, err
		}
		message.CreatedAt = message.CreatedAt.UTC()
		result = append(result, message)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// MarkRead marks a message as read.
func (r *MessageRepository) MarkRead(ctx context.Context, id string, readAt time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("inbox repo: nil db")
	}
	_ = readAt
	result, err := r.db.ExecContext(ctx, `
UPDATE inbox_messages
SET read = TRUE
WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return inbox.ErrNotFound
	}
	return nil
}
