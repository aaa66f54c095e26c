package session

import "context"

// Context keys for session-related values.
type contextKey int

const scopeKey contextKey = iota

// WithScope returns a new context with the given scope attached.
func WithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeKey, scope)
}

// ScopeFromContext retrieves the scope from the context.
// Returns Anonymous if no scope is present.
func ScopeFromContext(ctx context.Context) Scope {
	s, _ := ctx.Value(scopeKey).(Scope)
	return s
}
