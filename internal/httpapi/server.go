package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gptd/internal/lifecycle"
	"gptd/pkg/types"
)

// Service defines the lifecycle operations required by the HTTP API layer.
type Service interface {
	Resolve(id string) string
	ReadyFor(id string) bool
	EnsureLoadedAsync(id string)
	Snapshot() lifecycle.Snapshot
	Generate(ctx context.Context, prompt string, params lifecycle.GenParams) (lifecycle.Result, error)
	Status() types.StatusResponse
}

// GatewayConfig captures the policy surface of the request gateway.
type GatewayConfig struct {
	// AllowModelOverride honors a per-request model field when true;
	// otherwise every request is served by the configured default model.
	AllowModelOverride bool
	// TrimStrategy selects how generated text is shaped (config.TrimPrefix
	// or config.TrimSpecial).
	TrimStrategy string
	// RequiredQuant is echoed in operator hints on 503 responses.
	RequiredQuant string
	// BaseContext bounds in-flight generations to the process lifetime;
	// canceled on shutdown. Background when nil.
	BaseContext context.Context
}

// NewMux builds the HTTP handler for the daemon.
func NewMux(svc Service, cfg GatewayConfig) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	// Health godoc
	// @Summary     Liveness probe
	// @Produce     json
	// @Success     200 {object} types.HealthResponse
	// @Router      /health [get]
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, types.HealthResponse{Status: "ok"})
	})

	// Ready godoc
	// @Summary     Readiness probe; triggers a background load when cold
	// @Produce     json
	// @Success     200 {object} types.ReadyResponse
	// @Router      /ready [get]
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		target := svc.Resolve("")
		snap := svc.Snapshot()
		loaded := svc.ReadyFor("")
		// Kick off a background load unless one is in flight or a prior
		// attempt failed; a sticky error needs an explicit new trigger.
		if !loaded && !snap.Loading && snap.LastError == "" {
			svc.EnsureLoadedAsync("")
			snap = svc.Snapshot()
		}
		status := "loading"
		switch {
		case snap.LastError != "":
			status = "error"
		case loaded:
			status = "ready"
		}
		writeJSON(w, http.StatusOK, types.ReadyResponse{
			Status:      status,
			Model:       target,
			Loaded:      loaded,
			Loading:     snap.Loading,
			QuantMethod: snap.QuantMethod,
			Error:       snap.LastError,
		})
	})

	// Status godoc
	// @Summary     Operational status
	// @Produce     json
	// @Success     200 {object} types.StatusResponse
	// @Router      /status [get]
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status())
	})

	r.Post("/generate", generateHandler(svc, cfg))

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

// writeJSON writes a JSON payload with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
