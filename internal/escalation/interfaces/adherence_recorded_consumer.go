package interfaces

import (
	"context"
	"errors"

	escalationapp "carecoord/internal/escalation/application"
	remindersevents "carecoord/internal/reminders/application/events"
)

// AdherenceRecordedConsumer adapts adherence events into the escalation engine.
type AdherenceRecordedConsumer struct {
	engine *escalationapp.Engine
}

// NewAdherenceRecordedConsumer constructs a consumer.
func NewAdherenceRecordedConsumer(engine *escalationapp.Engine) (*AdherenceRecordedConsumer, error) {
	if engine == nil {
		return nil, errors.New("escalation consumer: nil engine")
	}
	return &AdherenceRecordedConsumer{engine: engine}, nil
}

// Consume handles an adherence recorded event.
func (c *AdherenceRecordedConsumer) Consume(ctx context.Context, event remindersevents.AdherenceRecorded) error {
	return c.engine.HandleAdherenceRecorded(ctx, event)
}
