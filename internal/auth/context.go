package auth

import "context"

type ctxKey int

const principalKey ctxKey = iota

// ContextWithPrincipal stores p for handlers behind the gate. A principal
// without an organization is never stored.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	if p.OrganizationID == "" {
		return ctx
	}
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the principal placed by ContextWithPrincipal.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}
