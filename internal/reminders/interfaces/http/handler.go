package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"carecoord/internal/audit"
	"carecoord/internal/auth"
	remindersapp "carecoord/internal/reminders/application"
	reminders "carecoord/internal/reminders/domain"
)

// Handler provides reminder and schedule HTTP endpoints.
type Handler struct {
	service        *remindersapp.Service
	patientChecker auth.PatientTenantChecker
	auditLogger    audit.Logger
}

// NewHandler constructs a handler. The patient checker and audit logger are
// optional.
func NewHandler(service *remindersapp.Service, patientChecker auth.PatientTenantChecker, auditLogger audit.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("reminders handler: nil service")
	}
	return &Handler{service: service, patientChecker: patientChecker, auditLogger: auditLogger}, nil
}

// ServeHTTP handles /api/v1/reminders, /api/v1/schedules and subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/reminders":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleList(w, r)
		return
	case strings.HasPrefix(r.URL.Path, "/api/v1/reminders/"):
		h.handleMark(w, r)
		return
	case r.URL.Path == "/api/v1/schedules":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleCreateSchedule(w, r)
		return
	case strings.HasPrefix(r.URL.Path, "/api/v1/schedules/"):
		h.handleScheduleAction(w, r)
		return
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	patientID := r.URL.Query().Get("patient_id")
	if patientID == "" {
		http.Error(w, "patient_id is required", http.StatusBadRequest)
		return
	}

	tenantID := auth.TenantIDFromContext(r.Context())
	if tenantID != "" && h.patientChecker != nil {
		if err := h.patientChecker.EnsurePatientTenant(r.Context(), tenantID, patientID); err != nil {
			respondTenantError(w, err)
			return
		}
	}

	list, err := h.service.ListReminders(r.Context(), patientID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []reminders.Occurrence{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

func (h *Handler) handleMark(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/reminders/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	id := parts[0]
	action := parts[1]

	var (
		occurrence *reminders.Occurrence
		err        error
	)
	switch action {
	case "taken":
		occurrence, err = h.service.MarkTaken(r.Context(), id)
	case "missed":
		occurrence, err = h.service.MarkMissed(r.Context(), id)
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		respondServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(occurrence)
}

type createScheduleRequest struct {
	PatientID    string `json:"patient_id"`
	ScheduleText string `json:"schedule_text"`
}

func (h *Handler) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req createScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.PatientID == "" {
		http.Error(w, "patient_id is required", http.StatusBadRequest)
		return
	}

	tenantID := auth.TenantIDFromContext(r.Context())
	if tenantID != "" && h.patientChecker != nil {
		if err := h.patientChecker.EnsurePatientTenant(r.Context(), tenantID, req.PatientID); err != nil {
			respondTenantError(w, err)
			return
		}
	}

	schedule, err := h.service.CreateSchedule(r.Context(), req.PatientID, req.ScheduleText)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(schedule)
	h.logAudit(r, "schedule.create", schedule.ID, schedule.PatientID)
}

func (h *Handler) handleScheduleAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/schedules/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "deactivate" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if err := h.service.DeactivateSchedule(r.Context(), parts[0]); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
	h.logAudit(r, "schedule.deactivate", parts[0], "")
}

func (h *Handler) logAudit(r *http.Request, action, scheduleID, patientID string) {
	if h.auditLogger == nil {
		return
	}
	tenantID := auth.TenantIDFromContext(r.Context())
	if tenantID == "" {
		return
	}
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		TenantID:     tenantID,
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: "schedule",
		ResourceID:   scheduleID,
		PatientID:    patientID,
		IP:           r.RemoteAddr,
		UserAgent:    r.UserAgent(),
	})
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, reminders.ErrNotFound):
		w.WriteHeader(http.StatusNotFound)
	case errors.Is(err, reminders.ErrAlreadyResolved):
		http.Error(w, "occurrence already resolved", http.StatusConflict)
	case errors.Is(err, reminders.ErrScheduleInactive):
		http.Error(w, "schedule inactive", http.StatusConflict)
	case errors.Is(err, auth.ErrTenantMismatch):
		http.Error(w, "forbidden", http.StatusForbidden)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}

func respondTenantError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, auth.ErrTenantMismatch) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if errors.Is(err, auth.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	http.Error(w, "tenant check failed", http.StatusInternalServerError)
}
