package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "carecoord_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	scheduleEventsTotal    *prometheus.CounterVec
	reminderResolvedTotal  *prometheus.CounterVec
	reapSweepTotal         *prometheus.CounterVec
	reapSweepLatency       *prometheus.HistogramVec
	adherenceEventsTotal   *prometheus.CounterVec
	escalationEvalTotal    *prometheus.CounterVec
	alertEventsTotal       *prometheus.CounterVec
	inboxMessagesTotal     *prometheus.CounterVec
	analysisRequestsTotal  *prometheus.CounterVec
	analysisLatency        *prometheus.HistogramVec
	reportExportTotal      *prometheus.CounterVec
	reportExportLatency    *prometheus.HistogramVec
	consumerLag            *prometheus.GaugeVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		scheduleEventsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "schedule_events_total",
				Help: "Total schedule lifecycle events by type",
			},
			[]string{"event"},
		)
		reminderResolvedTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reminder_resolved_total",
				Help: "Total reminder occurrences resolved by status",
			},
			[]string{"status"},
		)
		reapSweepTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reap_sweep_total",
				Help: "Total overdue reap sweeps by result",
			},
			[]string{"result"},
		)
		reapSweepLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "reap_sweep_latency_seconds",
				Help:    "Overdue reap sweep latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		adherenceEventsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "adherence_events_total",
				Help: "Total adherence events appended by outcome",
			},
			[]string{"outcome"},
		)
		escalationEvalTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "escalation_evaluations_total",
				Help: "Total escalation rule evaluations by decision",
			},
			[]string{"decision"},
		)
		alertEventsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alert_events_total",
				Help: "Total alert lifecycle events by type",
			},
			[]string{"event"},
		)
		inboxMessagesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "inbox_messages_total",
				Help: "Total inbox messages sent by audience",
			},
			[]string{"audience"},
		)
		analysisRequestsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "analysis_requests_total",
				Help: "Total analysis requests by result",
			},
			[]string{"result"},
		)
		analysisLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "analysis_latency_seconds",
				Help:    "Analysis request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		reportExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_export_total",
				Help: "Total adherence report exports by format and result",
			},
			[]string{"format", "result"},
		)
		reportExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "report_export_latency_seconds",
				Help:    "Adherence report export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)
		consumerLag = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "event_consumer_lag_seconds",
				Help: "Consumer processing lag in seconds",
			},
			[]string{"consumer"},
		)

		prometheus.MustRegister(
			scheduleEventsTotal,
			reminderResolvedTotal,
			reapSweepTotal,
			reapSweepLatency,
			adherenceEventsTotal,
			escalationEvalTotal,
			alertEventsTotal,
			inboxMessagesTotal,
			analysisRequestsTotal,
			analysisLatency,
			reportExportTotal,
			reportExportLatency,
			consumerLag,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// IncScheduleEvent increments schedule lifecycle counters.
func IncScheduleEvent(event string) {
	if event == "" {
		event = "unknown"
	}
	if scheduleEventsTotal != nil {
		scheduleEventsTotal.WithLabelValues(event).Inc()
	}
}

// IncReminderResolved increments resolved occurrence counters by status.
func IncReminderResolved(status string) {
	if status == "" {
		status = "unknown"
	}
	if reminderResolvedTotal != nil {
		reminderResolvedTotal.WithLabelValues(status).Inc()
	}
}

// ObserveReapSweep records sweep latency and result.
func ObserveReapSweep(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if reapSweepTotal != nil {
		reapSweepTotal.WithLabelValues(result).Inc()
	}
	if reapSweepLatency != nil {
		reapSweepLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncAdherenceEvent increments appended adherence event counters.
func IncAdherenceEvent(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	if adherenceEventsTotal != nil {
		adherenceEventsTotal.WithLabelValues(outcome).Inc()
	}
}

// IncEscalationEvaluation increments rule evaluation counters by decision.
func IncEscalationEvaluation(decision string) {
	if decision == "" {
		decision = "unknown"
	}
	if escalationEvalTotal != nil {
		escalationEvalTotal.WithLabelValues(decision).Inc()
	}
}

// IncAlertEvent increments alert lifecycle counters.
func IncAlertEvent(event string) {
	if event == "" {
		event = "unknown"
	}
	if alertEventsTotal != nil {
		alertEventsTotal.WithLabelValues(event).Inc()
	}
}

// IncInboxMessage increments inbox message counters by audience.
func IncInboxMessage(audience string) {
	if audience == "" {
		audience = "unknown"
	}
	if inboxMessagesTotal != nil {
		inboxMessagesTotal.WithLabelValues(audience).Inc()
	}
}

// ObserveAnalysis records analysis request latency and result.
func ObserveAnalysis(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if analysisRequestsTotal != nil {
		analysisRequestsTotal.WithLabelValues(result).Inc()
	}
	if analysisLatency != nil {
		analysisLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveReportExport records export latency and result.
func ObserveReportExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if reportExportTotal != nil {
		reportExportTotal.WithLabelValues(format, result).Inc()
	}
	if reportExportLatency != nil {
		reportExportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// ObserveConsumerLag sets consumer lag in seconds.
func ObserveConsumerLag(consumer string, lag time.Duration) {
	if consumer == "" {
		consumer = "unknown"
	}
	if lag < 0 {
		lag = 0
	}
	if consumerLag != nil {
		consumerLag.WithLabelValues(consumer).Set(lag.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
