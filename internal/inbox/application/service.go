package application

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"time"

	"carecoord/internal/auth"
	inbox "carecoord/internal/inbox/domain"
	"carecoord/internal/observability/metrics"
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// Service handles inbox message delivery and reads.
type Service struct {
	messages inbox.Repository
	clock    Clock
	tenantID string
}

// ServiceOption customizes the inbox service.
type ServiceOption func(*Service)

// WithClock assigns a clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewService constructs an inbox service.
func NewService(messages inbox.Repository, tenantID string, opts ...ServiceOption) (*Service, error) {
	if messages == nil {
		return nil, errors.New("inbox: nil repository")
	}
	if tenantID == "" {
		return nil, errors.New("inbox: empty tenant id")
	}
	service := &Service{
		messages: messages,
		tenantID: tenantID,
		clock:    systemClock{},
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// SendToDoctor delivers a message to the clinic's doctor inbox.
func (s *Service) SendToDoctor(ctx context.Context, patientID, subject, body string) (*inbox.Message, error) {
	return s.send(ctx, inbox.AudienceDoctor, patientID, subject, body)
}

// SendToPatient delivers a message to a patient's inbox.
func (s *Service) SendToPatient(ctx context.Context, patientID, subject, body string) (*inbox.Message, error) {
	if patientID == "" {
		return nil, errors.New("inbox: patient id required")
	}
	return s.send(ctx, inbox.AudiencePatient, patientID, subject, body)
}

// List returns inbox messages for an audience, newest first.
func (s *Service) List(ctx context.Context, audience, patientID string, limit int) ([]inbox.Message, error) {
	if s == nil {
		return nil, errors.New("inbox: nil service")
	}
	if audience != inbox.AudienceDoctor && audience != inbox.AudiencePatient {
		return nil, errors.New("inbox: invalid audience")
	}
	tenantID := auth.TenantIDFromContext(ctx)
	if tenantID == "" {
		tenantID = s.tenantID
	}
	return s.messages.ListByAudience(ctx, tenantID, audience, patientID, limit)
}

// MarkRead marks a message as read.
func (s *Service) MarkRead(ctx context.Context, id string) error {
	if s == nil {
		return errors.New("inbox: nil service")
	}
	if id == "" {
		return errors.New("inbox: message id required")
	}
	message, err := s.messages.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if message == nil {
		return inbox.ErrNotFound
	}
	tenantID := auth.TenantIDFromContext(ctx)
	if tenantID == "" {
		tenantID = s.tenantID
	}
	if tenantID != "" && message.TenantID != tenantID {
		return auth.ErrTenantMismatch
	}
	if message.Read {
		return nil
	}
	return s.messages.MarkRead(ctx, id, s.clock.Now().UTC())
}

func (s *Service) send(ctx context.Context, audience, patientID, subject, body string) (*inbox.Message, error) {
	if s == nil {
		return nil, errors.New("inbox: nil service")
	}
	now := s.clock.Now().UTC()
	message := &inbox.Message{
		ID:        buildMessageID(s.tenantID, audience, patientID, now),
		TenantID:  s.tenantID,
		PatientID: patientID,
		Audience:  audience,
		Subject:   subject,
		Body:      body,
		CreatedAt: now,
	}
	if err := message.Validate(); err != nil {
		return nil, err
	}
	if err := s.messages.Create(ctx, message); err != nil {
		return nil, err
	}
	metrics.IncInboxMessage(audience)
	return message, nil
}

func buildMessageID(tenantID, audience, patientID string, now time.Time) string {
	sum := sha1.Sum([]byte(tenantID + "|" + audience + "|" + patientID + "|" + now.Format(time.RFC3339Nano)))
	return "msg-" + hex.EncodeToString(sum[:8])
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
