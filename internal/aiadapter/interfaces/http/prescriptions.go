package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	inbox "carecoord/internal/inbox/domain"
	"carecoord/internal/observability/metrics"
)

// PatientInbox delivers messages to a patient's inbox.
type PatientInbox interface {
	SendToPatient(ctx context.Context, patientID, subject, body string) (*inbox.Message, error)
}

// PrescriptionHandler turns a clinician's prescription text into a medicine
// list and delivers it to the patient's inbox.
type PrescriptionHandler struct {
	analyzer Analyzer
	inbox    PatientInbox
	logger   *log.Logger
}

// NewPrescriptionHandler constructs a handler.
func NewPrescriptionHandler(analyzer Analyzer, patientInbox PatientInbox, logger *log.Logger) (*PrescriptionHandler, error) {
	if analyzer == nil {
		return nil, errors.New("prescription handler: nil analyzer")
	}
	if patientInbox == nil {
		return nil, errors.New("prescription handler: nil inbox")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &PrescriptionHandler{analyzer: analyzer, inbox: patientInbox, logger: logger}, nil
}

type prescriptionRequest struct {
	PatientID string `json:"patient_id"`
	Text      string `json:"text"`
}

type prescriptionResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Content   string `json:"content,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ServeHTTP handles POST /api/v1/prescriptions.
func (h *PrescriptionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req prescriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.PatientID == "" {
		http.Error(w, "patient_id is required", http.StatusBadRequest)
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
	if !result.Success {
		metrics.ObserveAnalysis(metrics.ResultError, time.Since(start))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(prescriptionResponse{Error: result.Error})
		return
	}
	metrics.ObserveAnalysis(metrics.ResultSuccess, time.Since(start))

	message, err := h.inbox.SendToPatient(r.Context(), req.PatientID, "Your medicine list", result.Content)
	if err != nil {
		h.logger.Printf("prescription handler: deliver to patient inbox failed: %v", err)
		http.Error(w, "message delivery failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(prescriptionResponse{
		Success:   true,
		MessageID: message.ID,
		Content:   result.Content,
	})
}
