package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/sagarc03/sigv4gate"
)

const tracerName = "github.com/sagarc03/sigv4gate/http"

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithVerifier replaces the default SigV4Verifier.
func WithVerifier(v sigv4gate.Verifier) Option {
	return func(a *Authenticator) { a.verifier = v }
}

// WithLogger sets the logger used for authentication failures.
func WithLogger(l *slog.Logger) Option {
	return func(a *Authenticator) { a.logger = l }
}

// WithMetrics records authentication outcomes in m.
func WithMetrics(m *Metrics) Option {
	return func(a *Authenticator) { a.metrics = m }
}

// WithTracer wraps each authentication in a span from tp.
func WithTracer(tp trace.TracerProvider) Option {
	return func(a *Authenticator) { a.tracer = tp.Tracer(tracerName) }
}

// Authenticator drains and verifies requests. It holds no per-request state
// and is safe for concurrent use.
type Authenticator struct {
	cfg      sigv4gate.AuthConfig
	keys     sigv4gate.KeyLookup
	verifier sigv4gate.Verifier
	logger   *slog.Logger
	metrics  *Metrics
	tracer   trace.Tracer
}

func NewAuthenticator(cfg sigv4gate.AuthConfig, keys sigv4gate.KeyLookup, opts ...Option) (*Authenticator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("new authenticator: %w", err)
	}
	if keys == nil {
		return nil, fmt.Errorf("new authenticator: key lookup is required: %w", sigv4gate.ErrInvalidInput)
	}

	a := &Authenticator{
		cfg:      cfg.WithDefaults(),
		keys:     keys,
		verifier: sigv4gate.NewSigV4Verifier(),
		logger:   slog.Default(),
		tracer:   noop.NewTracerProvider().Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(a)
	}

	return a, nil
}

// Config returns the configuration the authenticator was built with.
func (a *Authenticator) Config() sigv4gate.AuthConfig {
	return a.cfg
}

// Authenticate drains req's body and verifies the request. On success it
// returns a clone of req whose context carries the principal and whose body
// replays the drained bytes. The original body is always closed.
//
// Authentication failures wrap sigv4gate.ErrUnauthorized. If req's context
// ends first, its error is returned instead.
func (a *Authenticator) Authenticate(req *http.Request) (*http.Request, error) {
	ctx, span := a.tracer.Start(req.Context(), "sigv4gate.authenticate",
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.path", req.URL.Path),
		),
	)
	defer span.End()

	defer a.metrics.begin()()
	start := time.Now()

	body, err := Drain(ctx, req.Body, a.cfg.MaxBodySize)
	if req.Body != nil {
		_ = req.Body.Close()
	}

	var principal sigv4gate.Principal
	if err == nil {
		principal, err = a.verifier.Verify(ctx, sigv4gate.NewVerifyRequest(req, body, a.cfg, a.keys))
	}

	if ctxErr := req.Context().Err(); ctxErr != nil {
		span.SetStatus(codes.Error, "cancelled")
		return nil, ctxErr
	}

	if err != nil {
		if !errors.Is(err, sigv4gate.ErrUnauthorized) {
			err = fmt.Errorf("%w: %w", sigv4gate.ErrSignatureMismatch, err)
		}
		reason := sigv4gate.ReasonOf(err)

		a.logger.WarnContext(ctx, "failed to verify signature",
			"reason", string(reason),
			"method", req.Method,
			"path", req.URL.Path,
			"access_key", accessKeyHint(req),
			"error", err,
		)
		a.metrics.failure(start, reason)
		span.SetAttributes(attribute.String("sigv4gate.failure_reason", string(reason)))
		span.SetStatus(codes.Error, string(reason))
		return nil, err
	}

	a.metrics.success(start, len(body))
	span.SetAttributes(attribute.String("sigv4gate.principal", principal.String()))

	out := req.Clone(WithPrincipal(req.Context(), principal))
	out.ContentLength = int64(len(body))
	if len(body) == 0 {
		out.Body = http.NoBody
		out.GetBody = func() (io.ReadCloser, error) { return http.NoBody, nil }
	} else {
		out.Body = io.NopCloser(bytes.NewReader(body))
		out.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}

	return out, nil
}

// accessKeyHint returns the access key a request claims to be signed with,
// for logging only. It is empty when no credential can be found.
func accessKeyHint(req *http.Request) string {
	credential := req.URL.Query().Get("X-Amz-Credential")
	if credential == "" {
		_, rest, ok := strings.Cut(req.Header.Get("Authorization"), "Credential=")
		if !ok {
			return ""
		}
		credential, _, _ = strings.Cut(rest, ",")
	}
	accessKey, _, _ := strings.Cut(credential, "/")
	return strings.TrimSpace(accessKey)
}
