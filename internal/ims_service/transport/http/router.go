package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PathPrefix is where the subscriber routes are mounted.
const PathPrefix = "/ims"

// Pinger reports database reachability for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterOptions configures NewRouter.
type RouterOptions struct {
	AllowedOrigins []string
}

// NewRouter assembles the service's HTTP surface.
func NewRouter(h *SubscriberHandler, db Pinger, logger *slog.Logger, opts RouterOptions) http.Handler {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(Recoverer(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))
	r.Use(PrometheusMetricsMiddleware)

	notFound := func(w http.ResponseWriter, r *http.Request) {
		respondWithError(w, http.StatusNotFound, "Sorry can't find that!")
	}
	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, "Hello!")
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			logger.ErrorContext(r.Context(), "Health check failed", "error", err)
			respondWithJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Database: "unreachable"})
			return
		}
		respondWithJSON(w, http.StatusOK, HealthResponse{Status: "ok", Database: "reachable"})
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route(PathPrefix, func(ims chi.Router) {
		h.RegisterRoutes(ims)
	})

	return r
}
