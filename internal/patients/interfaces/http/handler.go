package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"carecoord/internal/auth"
	patients "carecoord/internal/patients/domain"
)

// Handler provides patient master data endpoints.
type Handler struct {
	repo     patients.Repository
	tenantID string
}

// NewHandler constructs a handler.
func NewHandler(repo patients.Repository, tenantID string) (*Handler, error) {
	if repo == nil {
		return nil, errors.New("patients handler: nil repository")
	}
	if tenantID == "" {
		return nil, errors.New("patients handler: empty tenant id")
	}
	return &Handler{repo: repo, tenantID: tenantID}, nil
}

// ServeHTTP handles /api/v1/patients.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/v1/patients" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	switch r.Method {
	case http.MethodGet:
		h.handleList(w, r)
	case http.MethodPost:
		h.handleSave(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) tenant(r *http.Request) string {
	if tenantID := auth.TenantIDFromContext(r.Context()); tenantID != "" {
		return tenantID
	}
	return h.tenantID
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.repo.ListByTenant(r.Context(), h.tenant(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []patients.Patient{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	var patient patients.Patient
	if err := json.NewDecoder(r.Body).Decode(&patient); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(patient.ID) == "" || strings.TrimSpace(patient.Name) == "" {
		http.Error(w, "id and name are required", http.StatusBadRequest)
		return
	}
	patient.TenantID = h.tenant(r)

	if err := h.repo.Save(r.Context(), &patient); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(patient)
}
