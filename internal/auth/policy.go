package auth

import (
	"net/http"
	"strings"
)

// Policy maps requests onto the scope they need.
type Policy struct {
	ExemptPaths    map[string]struct{}
	ExemptPrefixes []string
}

// NewDefaultPolicy builds a policy with unauthenticated exemptions.
func NewDefaultPolicy(exemptPaths []string, exemptPrefixes []string) Policy {
	set := make(map[string]struct{}, len(exemptPaths))
	for _, path := range exemptPaths {
		set[cleanPath(path)] = struct{}{}
	}
	return Policy{ExemptPaths: set, ExemptPrefixes: exemptPrefixes}
}

// cleanPath drops trailing slashes. The router serves /api/v1/runs/ and
// /api/v1/runs with the same handler.
func cleanPath(path string) string {
	trimmed := strings.TrimRight(path, "/")
	if trimmed == "" {
		return "/"
	}
	return trimmed
}

// IsExempt returns true when a request skips authentication.
func (p Policy) IsExempt(r *http.Request) bool {
	if r == nil {
		return true
	}
	path := cleanPath(r.URL.Path)
	if _, ok := p.ExemptPaths[path]; ok {
		return true
	}
	for _, prefix := range p.ExemptPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// RequiredScope resolves the scope a request needs. ok is false for paths
// outside the API.
func (p Policy) RequiredScope(r *http.Request) (Scope, bool) {
	if r == nil {
		return "", false
	}
	path := cleanPath(r.URL.Path)
	if path != "/api" && !strings.HasPrefix(path, "/api/") {
		return "", false
	}
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return ScopeRunsRead, true
	default:
		return ScopeRunsSubmit, true
	}
}
