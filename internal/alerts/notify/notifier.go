package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	alertapp "carecoord/internal/alerts/application"
	alerts "carecoord/internal/alerts/domain"
	patients "carecoord/internal/patients/domain"
)

// PatientReader loads patient metadata.
type PatientReader interface {
	Get(ctx context.Context, id string) (*patients.Patient, error)
}

// AlertReader loads alert records.
type AlertReader interface {
	GetByID(ctx context.Context, id string) (*alerts.Alert, error)
}

// Clock provides time for scheduling.
type Clock interface {
	Now() time.Time
}

// DashboardURLResolver provides a dashboard link for an alert when available.
type DashboardURLResolver func(ctx context.Context, alert alerts.Alert, patient *patients.Patient) string

type sendRecord struct {
	at   time.Time
	hash string
}

// Notifier sends alert notifications via a channel and handles escalation
// re-pings for unresolved high priority alerts.
type Notifier struct {
	patients       PatientReader
	alerts         AlertReader
	channel        Channel
	template       *Template
	escalation     time.Duration
	clock          Clock
	mu             sync.Mutex
	timers         map[string]*time.Timer
	sent           map[string]sendRecord
	cooldown       time.Duration
	dedupeWindow   time.Duration
	dashboardURL   DashboardURLResolver
	requestTimeout time.Duration
}

// Option configures the notifier.
type Option func(*Notifier)

// WithEscalation configures escalation delay.
func WithEscalation(after time.Duration) Option {
	return func(n *Notifier) {
		if after > 0 {
			n.escalation = after
		}
	}
}

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(n *Notifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithRequestTimeout overrides the default timeout for escalation checks.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(n *Notifier) {
		if timeout > 0 {
			n.requestTimeout = timeout
		}
	}
}

// WithCooldown sets a minimum interval between notifications for the same alert and event.
func WithCooldown(interval time.Duration) Option {
	return func(n *Notifier) {
		if interval > 0 {
			n.cooldown = interval
		}
	}
}

// WithDedupeWindow suppresses identical notifications within the window.
func WithDedupeWindow(window time.Duration) Option {
	return func(n *Notifier) {
		if window > 0 {
			n.dedupeWindow = window
		}
	}
}

// WithDashboardURLResolver injects a dashboard link resolver.
func WithDashboardURLResolver(resolver DashboardURLResolver) Option {
	return func(n *Notifier) {
		if resolver != nil {
			n.dashboardURL = resolver
		}
	}
}

// NewNotifier constructs an alert notifier.
func NewNotifier(patientReader PatientReader, alertReader AlertReader, channel Channel, template *Template, opts ...Option) (*Notifier, error) {
	if alertReader == nil {
		return nil, errors.New("alert notifier: nil alert reader")
	}
	if channel == nil {
		return nil, errors.New("alert notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	n := &Notifier{
		patients:       patientReader,
		alerts:         alertReader,
		channel:        channel,
		template:       template,
		escalation:     0,
		clock:          systemClock{},
		timers:         make(map[string]*time.Timer),
		sent:           make(map[string]sendRecord),
		requestTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Notify implements AlertNotifier.
func (n *Notifier) Notify(ctx context.Context, event alertapp.AlertEvent) {
	if n == nil || n.channel == nil {
		return
	}
	patient := n.lookup(ctx, event.Alert)
	n.dispatch(ctx, event.Type, event.Alert, patient)

	switch event.Type {
	case "raised":
		n.scheduleEscalation(event.Alert)
	case alerts.StatusAcknowledged, alerts.StatusDismissed:
		n.cancelEscalation(event.Alert.ID)
	}
}

// Close stops all pending escalation timers.
func (n *Notifier) Close() {
	if n == nil {
		return
	}
	n.mu.Lock()
	timers := n.timers
	n.timers = make(map[string]*time.Timer)
	n.mu.Unlock()
	for _, timer := range timers {
		if timer != nil {
			timer.Stop()
		}
	}
}

func (n *Notifier) lookup(ctx context.Context, alert alerts.Alert) *patients.Patient {
	if n.patients == nil {
		return nil
	}
	patient, err := n.patients.Get(ctx, alert.PatientID)
	if err != nil {
		return nil
	}
	return patient
}

func (n *Notifier) dispatch(ctx context.Context, eventType string, alert alerts.Alert, patient *patients.Patient) {
	dashboardURL := ""
	if n != nil && n.dashboardURL != nil {
		dashboardURL = n.dashboardURL(ctx, alert, patient)
	}
	data := buildTemplateData(eventType, alert, patient, dashboardURL)
	content, err := n.template.Render(data)
	if err != nil {
		return
	}
	if !n.shouldSend(alert.ID, eventType, content) {
		return
	}
	if err := n.channel.Send(ctx, content); err != nil {
		return
	}
	n.markSent(alert.ID, eventType, content)
}

func (n *Notifier) scheduleEscalation(alert alerts.Alert) {
	if n == nil || n.escalation <= 0 || alert.ID == "" {
		return
	}
	if !priorityAtLeast(alert.Priority, alerts.PriorityHigh) {
		return
	}
	n.mu.Lock()
	if existing, ok := n.timers[alert.ID]; ok {
		if existing != nil {
			existing.Stop()
		}
	}
	timer := time.AfterFunc(n.escalation, func() {
		n.runEscalation(alert.ID)
	})
	n.timers[alert.ID] = timer
	n.mu.Unlock()
}

func (n *Notifier) cancelEscalation(alertID string) {
	if n == nil || alertID == "" {
		return
	}
	n.mu.Lock()
	timer := n.timers[alertID]
	delete(n.timers, alertID)
	n.mu.Unlock()
	if timer != nil {
		timer.Stop()
	}
}

func (n *Notifier) runEscalation(alertID string) {
	if n == nil || alertID == "" {
		return
	}
	n.mu.Lock()
	delete(n.timers, alertID)
	n.mu.Unlock()

	ctx := context.Background()
	if n.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.requestTimeout)
		defer cancel()
	}

	alert, err := n.alerts.GetByID(ctx, alertID)
	if err != nil || alert == nil {
		return
	}
	if !alert.Active() {
		return
	}
	if !priorityAtLeast(alert.Priority, alerts.PriorityHigh) {
		return
	}
	patient := n.lookup(ctx, *alert)
	n.dispatch(ctx, "escalated", *alert, patient)
}

func buildTemplateData(eventType string, alert alerts.Alert, patient *patients.Patient, dashboardURL string) TemplateData {
	patientName := alert.PatientID
	if patient != nil && patient.Name != "" {
		patientName = patient.Name
	}
	raisedAt := alert.CreatedAt
	return TemplateData{
		Patient:      patientName,
		PatientID:    alert.PatientID,
		Type:         alert.Type,
		Priority:     alert.Priority,
		Title:        alert.Title,
		Message:      alert.Message,
		RaisedAt:     raisedAt.UTC().Format(time.RFC3339),
		Status:       alert.Status,
		StatusCode:   alert.Status,
		Suggestion:   suggestionFor(alert.Priority),
		DashboardURL: dashboardURL,
		Event:        eventType,
		EventLabel:   eventLabel(eventType),
	}
}

func eventLabel(event string) string {
	switch event {
	case "raised":
		return "Raised"
	case alerts.StatusAcknowledged:
		return "Acknowledged"
	case alerts.StatusDismissed:
		return "Dismissed"
	case "escalated":
		return "Escalated"
	default:
		return event
	}
}

func suggestionFor(priority string) string {
	switch strings.TrimSpace(strings.ToLower(priority)) {
	case "critical", alerts.PriorityHigh:
		return "Contact the patient immediately and review the missed doses."
	case alerts.PriorityMedium:
		return "Review the patient's adherence history and follow up."
	default:
		return "Monitor the patient's adherence."
	}
}

func priorityAtLeast(value, target string) bool {
	return priorityRank(value) >= priorityRank(target)
}

func priorityRank(value string) int {
	switch strings.TrimSpace(strings.ToLower(value)) {
	case "critical":
		return 4
	case alerts.PriorityHigh:
		return 3
	case alerts.PriorityMedium:
		return 2
	case alerts.PriorityLow:
		return 1
	default:
		return 0
	}
}

func (n *Notifier) shouldSend(alertID, eventType, content string) bool {
	if n == nil {
		return false
	}
	if n.cooldown <= 0 && n.dedupeWindow <= 0 {
		return true
	}
	key := notificationKey(alertID, eventType)
	now := n.clock.Now().UTC()
	hash := hashContent(content)

	n.mu.Lock()
	record, ok := n.sent[key]
	n.mu.Unlock()
	if !ok {
		return true
	}
	if n.cooldown > 0 && now.Sub(record.at) < n.cooldown {
		return false
	}
	if n.dedupeWindow > 0 && record.hash == hash && now.Sub(record.at) < n.dedupeWindow {
		return false
	}
	return true
}

func (n *Notifier) markSent(alertID, eventType, content string) {
	if n == nil {
		return
	}
	key := notificationKey(alertID, eventType)
	n.mu.Lock()
	n.sent[key] = sendRecord{
		at:   n.clock.Now().UTC(),
		hash: hashContent(content),
	}
	n.mu.Unlock()
}

func notificationKey(alertID, eventType string) string {
	return alertID + "|" + eventType
}

func hashContent(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:8])
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
