package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sagarc03/sigv4gate"
)

// Gateway routes are mounted under this prefix so they never shadow
// downstream paths.
const AdminPrefix = "/_sigv4gate"

type CORSConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age" validate:"min=0"`
}

type GatewayConfig struct {
	CORS CORSConfig
	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// Gateway serves the admin endpoints plus every other path through the
// authenticated service chain.
type Gateway struct {
	config  GatewayConfig
	service Service
}

func NewGateway(config *GatewayConfig, service Service) *Gateway {
	g := &Gateway{
		config:  *config,
		service: service,
	}
	if g.config.Logger == nil {
		g.config.Logger = slog.Default()
	}
	return g
}

// Router returns an http.Handler with the admin and catch-all routes.
func (g *Gateway) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(g.config.Logger))

	if g.config.CORS.Enabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   g.config.CORS.AllowedOrigins,
			AllowedMethods:   g.config.CORS.AllowedMethods,
			AllowedHeaders:   g.config.CORS.AllowedHeaders,
			ExposedHeaders:   g.config.CORS.ExposedHeaders,
			AllowCredentials: g.config.CORS.AllowCredentials,
			MaxAge:           g.config.CORS.MaxAge,
		}))
	}

	r.Route(AdminPrefix, func(r chi.Router) {
		r.Get("/healthz", g.handleHealth)
		r.Get("/readyz", g.handleReady)
		if g.config.Gatherer != nil {
			r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(g.config.Gatherer, promhttp.HandlerOpts{}))
		}
	})

	r.Handle("/*", Handler(g.service))

	return r
}

func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	_ = WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (g *Gateway) handleReady(w http.ResponseWriter, _ *http.Request) {
	if err := g.service.Ready(); err != nil {
		HandleError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// WhoAmIResponse is the body written by WhoAmI.
type WhoAmIResponse struct {
	Principal sigv4gate.Principal `json:"principal"`
	ARN       string              `json:"arn,omitempty"`
	Identity  string              `json:"identity"`
	Method    string              `json:"method"`
	Path      string              `json:"path"`
	BodyBytes int64               `json:"body_bytes"`
	RequestID string              `json:"request_id,omitempty"`
}

// WhoAmI echoes the authenticated principal. It must be mounted behind an
// Interceptor or AuthMiddleware.
func WhoAmI() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := MustPrincipal(r.Context())
		resp := WhoAmIResponse{
			Principal: p,
			ARN:       p.ARN(),
			Identity:  p.String(),
			Method:    r.Method,
			Path:      r.URL.Path,
			BodyBytes: r.ContentLength,
			RequestID: RequestIDFromContext(r.Context()),
		}
		if err := WriteJSON(w, http.StatusOK, resp); err != nil {
			slog.Error("failed to write whoami response", "error", err)
		}
	})
}
