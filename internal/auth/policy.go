package auth

import (
	"net/http"
	"strings"
)

// Policy determines required roles by request.
type Policy struct {
	ExemptPaths    map[string]struct{}
	ExemptPrefixes []string
}

// NewDefaultPolicy builds a default policy with exemptions.
func NewDefaultPolicy(exemptPaths []string, exemptPrefixes []string) Policy {
	set := make(map[string]struct{}, len(exemptPaths))
	for _, path := range exemptPaths {
		set[path] = struct{}{}
	}
	return Policy{ExemptPaths: set, ExemptPrefixes: exemptPrefixes}
}

// IsExempt returns true when a request should skip auth/RBAC.
func (p Policy) IsExempt(r *http.Request) bool {
	if r == nil {
		return true
	}
	if _, ok := p.ExemptPaths[r.URL.Path]; ok {
		return true
	}
	for _, prefix := range p.ExemptPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// RequiredRole resolves required role for the request.
func (p Policy) RequiredRole(r *http.Request) (Role, bool) {
	if r == nil {
		return "", false
	}
	path := r.URL.Path
	method := r.Method

	switch {
	case path == "/api/v1/schedules":
		if method == http.MethodPost {
			return RoleClinician, true
		}
		return RolePatient, true
	case strings.HasPrefix(path, "/api/v1/schedules/") && method == http.MethodPost:
		return RoleClinician, true
	case path == "/api/v1/reminders":
		return RolePatient, true
	case strings.HasPrefix(path, "/api/v1/reminders/") && method == http.MethodPost:
		return RolePatient, true
	case path == "/api/v1/alerts":
		return RoleClinician, true
	case path == "/api/v1/alerts/stream":
		return RoleClinician, true
	case strings.HasPrefix(path, "/api/v1/alerts/") && method == http.MethodPost:
		return RoleClinician, true
	case path == "/api/v1/inbox":
		return RolePatient, true
	case strings.HasPrefix(path, "/api/v1/inbox/") && method == http.MethodPost:
		return RolePatient, true
	case path == "/api/v1/analyses":
		return RoleClinician, true
	case path == "/api/v1/prescriptions":
		return RoleClinician, true
	case path == "/api/v1/patients":
		return RoleClinician, true
	case strings.HasPrefix(path, "/api/v1/exports/"):
		return RoleClinician, true
	}

	if strings.HasPrefix(path, "/api/") {
		if method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions {
			return RolePatient, true
		}
		return RoleClinician, true
	}
	return "", false
}
