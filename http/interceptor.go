package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sagarc03/sigv4gate"
)

// Interceptor is a Service that only lets SigV4 authenticated requests
// through to next. Every failed request gets the same 401 response and next
// is never called for it.
type Interceptor struct {
	auth *Authenticator
	next Service
}

// NewInterceptor authenticates requests against keys before calling next.
func NewInterceptor(cfg sigv4gate.AuthConfig, keys sigv4gate.KeyLookup, next Service, opts ...Option) (*Interceptor, error) {
	if next == nil {
		return nil, fmt.Errorf("new interceptor: next service is required: %w", sigv4gate.ErrInvalidInput)
	}

	auth, err := NewAuthenticator(cfg, keys, opts...)
	if err != nil {
		return nil, fmt.Errorf("new interceptor: %w", err)
	}

	return &Interceptor{auth: auth, next: next}, nil
}

func (i *Interceptor) Ready() error {
	return i.next.Ready()
}

func (i *Interceptor) Call(req *http.Request) (*http.Response, error) {
	authed, err := i.auth.Authenticate(req)
	if err != nil {
		if errors.Is(err, sigv4gate.ErrUnauthorized) {
			return FailureResponse(req), nil
		}
		return nil, err
	}

	if err := authed.Context().Err(); err != nil {
		return nil, err
	}

	return i.next.Call(authed)
}

func (i *Interceptor) String() string {
	return fmt.Sprintf("Interceptor{region: %s, service: %s, next: %T}", i.auth.cfg.Region, i.auth.cfg.Service, i.next)
}
