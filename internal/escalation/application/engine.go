package application

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	adherence "carecoord/internal/adherence/domain"
	"carecoord/internal/observability/metrics"
	remindersevents "carecoord/internal/reminders/application/events"
)

// AlertEmitter raises alerts with duplicate suppression.
type AlertEmitter interface {
	Emit(ctx context.Context, patientID, alertType, priority, title, message string) (created bool, err error)
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// Engine evaluates adherence events against escalation rules.
type Engine struct {
	log     adherence.Repository
	emitter AlertEmitter
	config  Config
	clock   Clock
}

// EngineOption customizes the engine.
type EngineOption func(*Engine)

// WithClock assigns a clock.
func WithClock(clock Clock) EngineOption {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// NewEngine constructs an escalation engine.
func NewEngine(log adherence.Repository, emitter AlertEmitter, config Config, opts ...EngineOption) (*Engine, error) {
	if log == nil {
		return nil, errors.New("escalation: nil adherence log")
	}
	if emitter == nil {
		return nil, errors.New("escalation: nil alert emitter")
	}
	if config.Defaults.Threshold <= 0 || config.Defaults.Window <= 0 {
		return nil, errors.New("escalation: invalid config")
	}
	engine := &Engine{
		log:     log,
		emitter: emitter,
		config:  config,
		clock:   systemClock{},
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine, nil
}

// HandleAdherenceRecorded evaluates a recorded dose against the patient's
// rule. Taken doses never escalate; the sliding window counts missed doses
// and includes events exactly at the window's lower boundary.
func (e *Engine) HandleAdherenceRecorded(ctx context.Context, evt remindersevents.AdherenceRecorded) error {
	if e == nil {
		return errors.New("escalation: nil engine")
	}
	if evt.PatientID == "" || evt.TenantID == "" {
		return errors.New("escalation: event missing patient/tenant")
	}
	if evt.Taken {
		metrics.IncEscalationEvaluation("skipped")
		return nil
	}

	rule := e.config.RuleForPatient(evt.PatientID)
	now := evt.OccurredAt
	if now.IsZero() {
		now = e.clock.Now()
	}
	since := now.UTC().Add(-rule.Window)
	missed, err := e.log.CountMissedSince(ctx, evt.TenantID, evt.PatientID, since)
	if err != nil {
		return err
	}
	if missed < rule.Threshold {
		metrics.IncEscalationEvaluation("below_threshold")
		return nil
	}

	created, err := e.emitter.Emit(ctx, evt.PatientID, rule.Type, rule.Priority, rule.Title, renderMessage(rule.Message, missed))
	if err != nil {
		return err
	}
	if created {
		metrics.IncEscalationEvaluation("escalated")
	} else {
		metrics.IncEscalationEvaluation("suppressed")
	}
	return nil
}

func renderMessage(message string, missed int) string {
	return strings.ReplaceAll(message, "{{missed}}", strconv.Itoa(missed))
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
