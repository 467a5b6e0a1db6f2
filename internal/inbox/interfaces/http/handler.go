package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"carecoord/internal/auth"
	inboxapp "carecoord/internal/inbox/application"
	inbox "carecoord/internal/inbox/domain"
)

// Handler provides inbox HTTP endpoints.
type Handler struct {
	service *inboxapp.Service
}

// NewHandler constructs a handler.
func NewHandler(service *inboxapp.Service) (*Handler, error) {
	if service == nil {
		return nil, errors.New("inbox handler: nil service")
	}
	return &Handler{service: service}, nil
}

// ServeHTTP handles /api/v1/inbox and subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/inbox":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleList(w, r)
		return
	case strings.HasPrefix(r.URL.Path, "/api/v1/inbox/"):
		h.handleAction(w, r)
		return
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	audience := r.URL.Query().Get("audience")
	if audience == "" {
		audience = inbox.AudienceDoctor
	}
	patientID := r.URL.Query().Get("patient_id")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	list, err := h.service.List(r.Context(), audience, patientID, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if list == nil {
		list = []inbox.Message{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

func (h *Handler) handleAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/inbox/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "read" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if err := h.service.MarkRead(r.Context(), parts[0]); err != nil {
		if errors.Is(err, inbox.ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if errors.Is(err, auth.ErrTenantMismatch) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
