package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"carecoord/internal/audit"
	"carecoord/internal/auth"
	"carecoord/internal/observability/metrics"
	reportapp "carecoord/internal/reports/application"
)

// ReportProvider computes the adherence report.
type ReportProvider interface {
	Adherence(ctx context.Context, window time.Duration) (*reportapp.AdherenceReport, error)
}

// ExportHandler serves adherence report downloads.
type ExportHandler struct {
	reports     ReportProvider
	auditLogger audit.Logger
}

// NewExportHandler constructs an export handler. The audit logger is
// optional.
func NewExportHandler(reports ReportProvider, auditLogger audit.Logger) (*ExportHandler, error) {
	if reports == nil {
		return nil, errors.New("export handler: nil report provider")
	}
	return &ExportHandler{reports: reports, auditLogger: auditLogger}, nil
}

// ServeHTTP handles GET /api/v1/exports/adherence.csv and .xlsx.
func (h *ExportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch r.URL.Path {
	case "/api/v1/exports/adherence.csv":
		h.handleExport(w, r, "csv")
	case "/api/v1/exports/adherence.xlsx":
		h.handleExport(w, r, "xlsx")
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *ExportHandler) handleExport(w http.ResponseWriter, r *http.Request, format string) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveReportExport(format, result, time.Since(start))
	}()

	window := 7 * 24 * time.Hour
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			result = metrics.ResultError
			http.Error(w, "window must be a positive duration", http.StatusBadRequest)
			return
		}
		window = parsed
	}

	report, err := h.reports.Adherence(r.Context(), window)
	if err != nil {
		result = metrics.ResultError
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var data []byte
	var contentType string
	switch format {
	case "csv":
		data, err = BuildAdherenceCSV(report)
		contentType = "text/csv"
	default:
		data, err = BuildAdherenceXLSX(report)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	if err != nil {
		result = metrics.ResultError
		http.Error(w, "export error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
	h.logAudit(r, format, window)
}

func (h *ExportHandler) logAudit(r *http.Request, format string, window time.Duration) {
	if h.auditLogger == nil {
		return
	}
	tenantID := auth.TenantIDFromContext(r.Context())
	if tenantID == "" {
		return
	}
	payload, _ := json.Marshal(map[string]any{
		"format": format,
		"window": window.String(),
	})
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		TenantID:     tenantID,
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       "report.export",
		ResourceType: "adherence_report",
		Metadata:     payload,
		IP:           r.RemoteAddr,
		UserAgent:    r.UserAgent(),
	})
}
