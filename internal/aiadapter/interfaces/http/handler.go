package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"carecoord/internal/aiadapter"
	inbox "carecoord/internal/inbox/domain"
	"carecoord/internal/observability/metrics"
)

// Analyzer submits clinical text for analysis.
type Analyzer interface {
	Analyze(ctx context.Context, text, patientContext string) (aiadapter.AnalysisResult, error)
}

// DoctorInbox delivers analysis results to the clinic inbox.
type DoctorInbox interface {
	SendToDoctor(ctx context.Context, patientID, subject, body string) (*inbox.Message, error)
}

// Handler serves on-demand analysis requests.
type Handler struct {
	analyzer Analyzer
	inbox    DoctorInbox
	logger   *log.Logger
}

// NewHandler constructs a handler. The inbox is optional; without it the
// result is returned to the caller only.
func NewHandler(analyzer Analyzer, doctorInbox DoctorInbox, logger *log.Logger) (*Handler, error) {
	if analyzer == nil {
		return nil, errors.New("analysis handler: nil analyzer")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{analyzer: analyzer, inbox: doctorInbox, logger: logger}, nil
}

type analyzeRequest struct {
	Text      string `json:"text"`
	PatientID string `json:"patient_id"`
}

type analyzeResponse struct {
	Success bool   `json:"success"`
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

// ServeHTTP handles POST /api/v1/analyses.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}

	start := time.Now()
	result, err := h.analyzer.Analyze(r.Context(), req.Text, req.PatientID)
	if err != nil {
		metrics.ObserveAnalysis(metrics.ResultError, time.Since(start))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if result.Success {
		metrics.ObserveAnalysis(metrics.ResultSuccess, time.Since(start))
	} else {
		metrics.ObserveAnalysis(metrics.ResultError, time.Since(start))
	}

	if result.Success && h.inbox != nil && req.PatientID != "" {
		if _, err := h.inbox.SendToDoctor(r.Context(), req.PatientID, "Analysis result", result.Content); err != nil {
			h.logger.Printf("analysis handler: deliver to inbox failed: %v", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(analyzeResponse{
		Success: result.Success,
		Content: result.Content,
		Error:   result.Error,
	})
}
