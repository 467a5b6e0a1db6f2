package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	adherence "carecoord/internal/adherence/domain"
	adherencememory "carecoord/internal/adherence/infrastructure/memory"
	adherencerepo "carecoord/internal/adherence/infrastructure/postgres"
	"carecoord/internal/aiadapter"
	analysishttp "carecoord/internal/aiadapter/interfaces/http"
	alertapp "carecoord/internal/alerts/application"
	alerts "carecoord/internal/alerts/domain"
	alertmemory "carecoord/internal/alerts/infrastructure/memory"
	alertrepo "carecoord/internal/alerts/infrastructure/postgres"
	alerthttp "carecoord/internal/alerts/interfaces/http"
	alertnotify "carecoord/internal/alerts/notify"
	"carecoord/internal/audit"
	"carecoord/internal/auth"
	escalationapp "carecoord/internal/escalation/application"
	escalationinterfaces "carecoord/internal/escalation/interfaces"
	"carecoord/internal/eventing"
	"carecoord/internal/eventing/eventbus"
	eventingrepo "carecoord/internal/eventing/infrastructure/postgres"
	inboxapp "carecoord/internal/inbox/application"
	inbox "carecoord/internal/inbox/domain"
	inboxmemory "carecoord/internal/inbox/infrastructure/memory"
	inboxrepo "carecoord/internal/inbox/infrastructure/postgres"
	inboxhttp "carecoord/internal/inbox/interfaces/http"
	"carecoord/internal/observability/metrics"
	patients "carecoord/internal/patients/domain"
	patientmemory "carecoord/internal/patients/infrastructure/memory"
	patientrepo "carecoord/internal/patients/infrastructure/postgres"
	patienthttp "carecoord/internal/patients/interfaces/http"
	remindersapp "carecoord/internal/reminders/application"
	remindersevents "carecoord/internal/reminders/application/events"
	reminders "carecoord/internal/reminders/domain"
	remindermemory "carecoord/internal/reminders/infrastructure/memory"
	reminderrepo "carecoord/internal/reminders/infrastructure/postgres"
	reminderhttp "carecoord/internal/reminders/interfaces/http"
	reportapp "carecoord/internal/reports/application"
	reportinterfaces "carecoord/internal/reports/interfaces"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("db open error: %v", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			logger.Fatalf("db ping error: %v", err)
		}
	} else {
		logger.Printf("no DATABASE_URL set, using in-memory repositories")
	}

	metrics.Init(db, logger)
	auditRepo := audit.NewRepository(db)

	var (
		scheduleRepo   reminders.ScheduleRepository
		occurrenceRepo reminders.OccurrenceRepository
		adherenceLog   adherence.Repository
		patientRepo    patients.Repository
		patientChecker auth.PatientTenantChecker
	)
	if db != nil {
		scheduleRepo = reminderrepo.NewScheduleRepository(db)
		occurrenceRepo = reminderrepo.NewOccurrenceRepository(db)
		adherenceLog = adherencerepo.NewEventRepository(db)
		patientRepo = patientrepo.NewPatientRepository(db)
		patientChecker = auth.NewPatientChecker(db)
	} else {
		scheduleRepo = remindermemory.NewScheduleRepository()
		occurrenceRepo = remindermemory.NewOccurrenceRepository()
		adherenceLog = adherencememory.NewEventRepository()
		patientRepo = patientmemory.NewPatientRepository()
	}

	baseBus := eventbus.NewInMemoryBus()
	registry := eventing.NewRegistry()
	registry.Register(remindersevents.AdherenceRecorded{})

	var bus remindersapp.EventPublisher = baseBus
	var processedStore eventing.ProcessedStore
	if db != nil {
		outboxStore := eventingrepo.NewOutboxStore(db)
		pgProcessed := eventingrepo.NewProcessedStore(db)
		dlqStore := eventingrepo.NewDLQStore(db)
		dispatcher := eventing.NewDispatcher(baseBus, outboxStore, registry, dlqStore)
		publisher := eventing.NewPublisher(outboxStore, dispatcher, cfg.TenantID, baseBus)
		bus = publisher
		processedStore = pgProcessed

		go func() {
			ticker := time.NewTicker(cfg.OutboxDrainInterval)
			defer ticker.Stop()
			for range ticker.C {
				if err := dispatcher.Dispatch(context.Background(), 100); err != nil {
					logger.Printf("outbox dispatch error: %v", err)
				}
			}
		}()
	}

	reminderService, err := remindersapp.NewService(scheduleRepo, occurrenceRepo, adherenceLog, bus, cfg.TenantID)
	if err != nil {
		logger.Fatalf("reminder service error: %v", err)
	}
	sweeper := remindersapp.NewSweeper(reminderService, cfg.ReapInterval, cfg.ReapGrace, logger)
	go sweeper.Start(context.Background())

	var alertRepoImpl = alertRepoFor(db)
	alertBroker := alerthttp.NewSSEBroker()
	alertNotifiers := []alertapp.AlertNotifier{alertBroker}
	if cfg.AlertWebhookURL != "" {
		channel, err := alertnotify.NewWebhookChannel(cfg.AlertWebhookURL)
		if err != nil {
			logger.Fatalf("alert webhook error: %v", err)
		}
		tpl, err := alertnotify.NewTemplate(cfg.AlertNotifyTemplate)
		if err != nil {
			logger.Fatalf("alert template error: %v", err)
		}
		opts := []alertnotify.Option{
			alertnotify.WithEscalation(cfg.AlertEscalationAfter),
			alertnotify.WithCooldown(cfg.AlertNotifyCooldown),
			alertnotify.WithDedupeWindow(cfg.AlertNotifyDedupeWindow),
			alertnotify.WithRequestTimeout(cfg.AlertNotifyTimeout),
		}
		if cfg.DashboardBaseURL != "" {
			dashboardURL := strings.TrimRight(cfg.DashboardBaseURL, "/") + "/dashboard"
			opts = append(opts, alertnotify.WithDashboardURLResolver(func(ctx context.Context, alert alerts.Alert, patient *patients.Patient) string {
				return dashboardURL
			}))
		}
		notifier, err := alertnotify.NewNotifier(patientRepo, alertRepoImpl, channel, tpl, opts...)
		if err != nil {
			logger.Fatalf("alert notifier error: %v", err)
		}
		alertNotifiers = append(alertNotifiers, notifier)
	}
	alertService, err := alertapp.NewService(alertRepoImpl, cfg.TenantID, alertapp.WithNotifier(alertnotify.NewMultiNotifier(alertNotifiers...)))
	if err != nil {
		logger.Fatalf("alert service error: %v", err)
	}

	escalationCfg, err := escalationapp.LoadConfig()
	if err != nil {
		logger.Fatalf("escalation config error: %v", err)
	}
	escalationEngine, err := escalationapp.NewEngine(adherenceLog, alertEmitter{service: alertService}, escalationCfg)
	if err != nil {
		logger.Fatalf("escalation engine error: %v", err)
	}
	escalationConsumer, err := escalationinterfaces.NewAdherenceRecordedConsumer(escalationEngine)
	if err != nil {
		logger.Fatalf("escalation consumer error: %v", err)
	}
	eventing.Subscribe(baseBus, eventbus.EventTypeOf[remindersevents.AdherenceRecorded](), "escalation.adherence", func(ctx context.Context, event any) error {
		evt, ok := event.(remindersevents.AdherenceRecorded)
		if !ok {
			return eventbus.ErrInvalidEventType
		}
		metrics.ObserveConsumerLag("escalation.adherence", time.Since(evt.OccurredAt))
		return escalationConsumer.Consume(ctx, evt)
	}, processedStore)

	var inboxRepo = inboxRepoFor(db)
	inboxService, err := inboxapp.NewService(inboxRepo, cfg.TenantID)
	if err != nil {
		logger.Fatalf("inbox service error: %v", err)
	}
	inboxHandler, err := inboxhttp.NewHandler(inboxService)
	if err != nil {
		logger.Fatalf("inbox handler error: %v", err)
	}

	reminderHandler, err := reminderhttp.NewHandler(reminderService, patientChecker, auditLoggerOrNil(auditRepo))
	if err != nil {
		logger.Fatalf("reminder handler error: %v", err)
	}
	alertHandler, err := alerthttp.NewHandler(alertService, auditLoggerOrNil(auditRepo))
	if err != nil {
		logger.Fatalf("alert handler error: %v", err)
	}
	patientHandler, err := patienthttp.NewHandler(patientRepo, cfg.TenantID)
	if err != nil {
		logger.Fatalf("patient handler error: %v", err)
	}

	reportService, err := reportapp.NewReportService(adherenceLog, patientRepo, cfg.TenantID)
	if err != nil {
		logger.Fatalf("report service error: %v", err)
	}
	exportHandler, err := reportinterfaces.NewExportHandler(reportService, auditLoggerOrNil(auditRepo))
	if err != nil {
		logger.Fatalf("export handler error: %v", err)
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/schedules", reminderHandler)
	mux.Handle("/api/v1/schedules/", reminderHandler)
	mux.Handle("/api/v1/reminders", reminderHandler)
	mux.Handle("/api/v1/reminders/", reminderHandler)
	mux.Handle("/api/v1/alerts/stream", alerthttp.NewStreamHandler(alertBroker))
	mux.Handle("/api/v1/alerts", alertHandler)
	mux.Handle("/api/v1/alerts/", alertHandler)
	mux.Handle("/api/v1/inbox", inboxHandler)
	mux.Handle("/api/v1/inbox/", inboxHandler)
	mux.Handle("/api/v1/patients", patientHandler)
	mux.Handle("/api/v1/exports/adherence.csv", exportHandler)
	mux.Handle("/api/v1/exports/adherence.xlsx", exportHandler)
	if cfg.AIBaseURL != "" {
		aiClient, err := aiadapter.NewClient(cfg.AIBaseURL, cfg.AIToken)
		if err != nil {
			logger.Fatalf("analysis client error: %v", err)
		}
		analysisHandler, err := analysishttp.NewHandler(aiClient, inboxService, logger)
		if err != nil {
			logger.Fatalf("analysis handler error: %v", err)
		}
		mux.Handle("/api/v1/analyses", analysisHandler)
		prescriptionHandler, err := analysishttp.NewPrescriptionHandler(aiClient, inboxService, logger)
		if err != nil {
			logger.Fatalf("prescription handler error: %v", err)
		}
		mux.Handle("/api/v1/prescriptions", prescriptionHandler)
	}
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

type config struct {
	DatabaseURL             string
	HTTPAddr                string
	TenantID                string
	JWTSecret               string
	ReapInterval            time.Duration
	ReapGrace               time.Duration
	OutboxDrainInterval     time.Duration
	AlertWebhookURL         string
	AlertNotifyTemplate     string
	AlertEscalationAfter    time.Duration
	AlertNotifyCooldown     time.Duration
	AlertNotifyDedupeWindow time.Duration
	AlertNotifyTimeout      time.Duration
	DashboardBaseURL        string
	AIBaseURL               string
	AIToken                 string
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:             getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:                getenvDefault("HTTP_ADDR", ":8080"),
		TenantID:                getenvDefault("TENANT_ID", "clinic-demo"),
		JWTSecret:               getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		ReapInterval:            getenvDuration("REAP_INTERVAL", time.Minute),
		ReapGrace:               getenvDuration("REAP_GRACE", 30*time.Minute),
		OutboxDrainInterval:     getenvDuration("OUTBOX_DRAIN_INTERVAL", 10*time.Second),
		AlertWebhookURL:         getenvDefault("ALERT_WEBHOOK_URL", ""),
		AlertNotifyTemplate:     getenvDefault("ALERT_NOTIFY_TEMPLATE", ""),
		AlertEscalationAfter:    getenvDuration("ALERT_ESCALATION_AFTER", 0),
		AlertNotifyCooldown:     getenvDuration("ALERT_NOTIFY_COOLDOWN", 0),
		AlertNotifyDedupeWindow: getenvDuration("ALERT_NOTIFY_DEDUP_WINDOW", 0),
		AlertNotifyTimeout:      getenvDuration("ALERT_NOTIFY_TIMEOUT", 5*time.Second),
		DashboardBaseURL:        getenvDefault("DASHBOARD_BASE_URL", ""),
		AIBaseURL:               getenvDefault("AI_BASE_URL", ""),
		AIToken:                 getenvDefault("AI_TOKEN", ""),
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func alertRepoFor(db *sql.DB) alerts.Repository {
	if db != nil {
		return alertrepo.NewAlertRepository(db)
	}
	return alertmemory.NewAlertRepository()
}

func inboxRepoFor(db *sql.DB) inbox.Repository {
	if db != nil {
		return inboxrepo.NewMessageRepository(db)
	}
	return inboxmemory.NewMessageRepository()
}

func auditLoggerOrNil(repo *audit.Repository) audit.Logger {
	if repo == nil {
		return nil
	}
	return repo
}

// ---- Adapters ----

// alertEmitter adapts the alert service to the escalation engine.
type alertEmitter struct {
	service *alertapp.Service
}

func (e alertEmitter) Emit(ctx context.Context, patientID, alertType, priority, title, message string) (bool, error) {
	_, created, err := e.service.Emit(ctx, patientID, alertType, priority, title, message)
	return created, err
}
