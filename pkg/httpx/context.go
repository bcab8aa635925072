package httpx

import "context"

type ctxKey string

const ctxKeyPrincipal ctxKey = "principal"

// Authentication methods recorded on a Principal.
const (
	MethodSession = "session"
	MethodBearer  = "bearer"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID   string
	Username string
	Email    string
	Method   string

	// SessionID is set for cookie sessions so logout can revoke it.
	SessionID string
}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal, p)
}

// PrincipalFromContext returns the caller set by the authn middleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKeyPrincipal).(Principal)
	return p, ok
}

// UserIDFromContext returns the caller's user ID or "".
func UserIDFromContext(ctx context.Context) string {
	p, _ := PrincipalFromContext(ctx)
	return p.UserID
}
