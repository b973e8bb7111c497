package auth

import (
	"context"
	"strings"
)

type contextKey string

const contextKeyIdentity contextKey = "auth.identity"

// Identity is the authenticated caller of the run API.
type Identity struct {
	Subject string
	Scopes  []Scope
	// Tables limits the target tables the caller may run or read. Empty
	// means every table.
	Tables []string
}

// Has reports whether the identity was granted scope.
func (id Identity) Has(scope Scope) bool {
	for _, s := range id.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// CanAccessTable reports whether table is inside the identity's table claim.
func (id Identity) CanAccessTable(table string) bool {
	if len(id.Tables) == 0 {
		return true
	}
	for _, t := range id.Tables {
		if strings.EqualFold(strings.TrimSpace(t), strings.TrimSpace(table)) {
			return true
		}
	}
	return false
}

// WithIdentity stores the caller identity in context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKeyIdentity, id)
}

// IdentityFromContext returns the caller identity. ok is false when the
// request was not authenticated, e.g. when the API runs without a secret.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(contextKeyIdentity).(Identity)
	return id, ok
}
