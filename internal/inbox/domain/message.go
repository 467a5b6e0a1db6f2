package inbox

import (
	"context"
	"errors"
	"time"
)

const (
	AudienceDoctor  = "doctor"
	AudiencePatient = "patient"
)

// Message is a care-coordination note delivered to a doctor or patient inbox.
type Message struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	PatientID string    `json:"patient_id"`
	Audience  string    `json:"audience"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks message invariants.
func (m Message) Validate() error {
	if m.ID == "" {
		return errors.New("inbox message: empty id")
	}
	if m.TenantID == "" {
		return errors.New("inbox message: empty tenant id")
	}
	if m.Audience != AudienceDoctor && m.Audience != AudiencePatient {
		return errors.New("inbox message: invalid audience")
	}
	if m.Body == "" {
		return errors.New("inbox message: empty body")
	}
	return nil
}

// ErrNotFound indicates a missing message record.
var ErrNotFound = errors.New("inbox: message not found")

// Repository persists inbox messages.
type Repository interface {
	Create(ctx context.Context, message *Message) error
	GetByID(ctx context.Context, id string) (*Message, error)
	ListByAudience(ctx context.Context, tenantID, audience, patientID string, limit int) ([]Message, error)
	MarkRead(ctx context.Context, id string, readAt time.Time) error
}
