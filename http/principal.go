package http

import (
	"context"

	"github.com/sagarc03/sigv4gate"
)

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p sigv4gate.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal stored by WithPrincipal.
func PrincipalFromContext(ctx context.Context) (sigv4gate.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(sigv4gate.Principal)
	return p, ok
}

// MustPrincipal is PrincipalFromContext for handlers that only ever run
// behind an Interceptor or AuthMiddleware. It panics if no principal is set.
func MustPrincipal(ctx context.Context) sigv4gate.Principal {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		panic("sigv4gate/http: no principal in context")
	}
	return p
}
