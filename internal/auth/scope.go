package auth

import (
	"sort"
	"strings"
)

// Scope is one permission carried in a token's space-delimited scope claim.
type Scope string

const (
	// ScopeRunsRead lists runs and reads their summaries.
	ScopeRunsRead Scope = "runs:read"
	// ScopeRunsSubmit starts reconciliation runs.
	ScopeRunsSubmit Scope = "runs:submit"
)

func knownScope(s Scope) bool {
	return s == ScopeRunsRead || s == ScopeRunsSubmit
}

// ParseScopes splits a scope claim. Any unknown scope rejects the claim.
func ParseScopes(claim string) ([]Scope, bool) {
	fields := strings.Fields(claim)
	if len(fields) == 0 {
		return nil, false
	}
	seen := make(map[Scope]struct{}, len(fields))
	out := make([]Scope, 0, len(fields))
	for _, f := range fields {
		s := Scope(f)
		if !knownScope(s) {
			return nil, false
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, true
}

// JoinScopes is the inverse of ParseScopes.
func JoinScopes(scopes []Scope) string {
	parts := make([]string, len(scopes))
	for i, s := range scopes {
		parts[i] = string(s)
	}
	return strings.Join(parts, " ")
}
