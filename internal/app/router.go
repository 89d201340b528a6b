package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fleetdash/fleetdash/internal/documents"
	"github.com/fleetdash/fleetdash/internal/observability"
	"github.com/fleetdash/fleetdash/internal/platform/httpx"
	"github.com/fleetdash/fleetdash/internal/quotes"
	"github.com/fleetdash/fleetdash/internal/stats"
	"github.com/fleetdash/fleetdash/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger       *slog.Logger
	Config       *Config
	QuoteHandler *quotes.Handler
	StatsHandler *stats.Handler
	JobHandler   *jobs.Handler
	Documents    *documents.Store
	Metrics      *observability.Metrics
	// Ready reports dependency health for /healthz. Nil means always ready.
	Ready func(r *http.Request) error
}

// NewRouter constructs the chi.Router with fleetdash defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if params.Ready != nil {
			if err := params.Ready(r); err != nil {
				if params.Logger != nil {
					params.Logger.Warn("health check failed", slog.Any("error", err))
				}
				httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if params.QuoteHandler != nil {
		params.QuoteHandler.MountRoutes(r)
	}
	if params.StatsHandler != nil {
		params.StatsHandler.MountRoutes(r)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Documents != nil && params.Config != nil && isLocalPath(params.Config.DocumentBaseURL) {
		prefix := params.Config.DocumentBaseURL
		r.Handle(prefix+"/*", params.Documents.Handler(prefix))
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}

func isLocalPath(base string) bool {
	return len(base) > 1 && base[0] == '/'
}
