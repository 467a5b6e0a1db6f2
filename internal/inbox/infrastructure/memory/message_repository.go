package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	inbox "carecoord/internal/inbox/domain"
)

// MessageRepository is an in-memory inbox store for demo/testing.
type MessageRepository struct {
	mu   sync.RWMutex
	data map[string]*inbox.Message
}

// NewMessageRepository constructs a repository.
func NewMessageRepository() *MessageRepository {
	return &MessageRepository{data: make(map[string]*inbox.Message)}
}

// Create stores a message.
func (r *MessageRepository) Create(ctx context.Context, message *inbox.Message) error {
	_ = ctx
	if message == nil {
		return errors.New("memory inbox repo: nil message")
	}
	if err := message.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.data[message.ID]; exists {
		return nil
	}
	copied := *message
	r.data[message.ID] = &copied
	return nil
}

// GetByID loads a message by id. Returns nil when absent.
func (r *MessageRepository) GetByID(ctx context.Context, id string) (*inbox.Message, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	message := r.data[id]
	if message == nil {
		return nil, nil
	}
	copied := *message
	return &copied, nil
}

// ListByAudience lists messages for an audience, newest first.
func (r *MessageRepository) ListByAudience(ctx context.Context, tenantID, audience, patientID string, limit int) ([]inbox.Message, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []inbox.Message
	for _, message := range r.data {
		if message == nil || message.TenantID != tenantID || message.Audience != audience {
			continue
		}
		if patientID != "" && message.PatientID != patientID {
			continue
		}
		result = append(result, *message)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// MarkRead marks a message as read.
func (r *MessageRepository) MarkRead(ctx context.Context, id string, readAt time.Time) error {
	_ = ctx
	_ = readAt
	r.mu.Lock()
	defer r.mu.Unlock()
	message := r.data[id]
	if message == nil {
		return inbox.ErrNotFound
	}
	message.Read = true
	return nil
}
