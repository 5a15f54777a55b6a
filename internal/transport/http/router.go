package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"custody/internal/audit/handler"
	"custody/internal/audit/interceptor"
	"custody/internal/platform/metrics"
	"custody/pkg/platform/httputil"
	"custody/pkg/platform/middleware/admin"
	"custody/pkg/platform/middleware/auth"
	"custody/pkg/platform/middleware/metadata"
	"custody/pkg/platform/middleware/request"
	"custody/pkg/platform/middleware/requesttime"
)

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Dependencies are the collaborators the router mounts. Optional ones may be nil.
type Dependencies struct {
	Logger         *slog.Logger
	Audit          *handler.Handler
	Recovery       *handler.RecoveryHandler
	Interceptor    *interceptor.Interceptor
	Validator      auth.JWTValidator
	ReportingRoles []string
	AdminToken     string
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
	HealthChecks   map[string]HealthCheck
	TracingEnabled bool
}

// NewRouter wires the middleware chain and every endpoint. The interceptor
// runs ahead of authentication so rejected credentials are audited as well;
// it reads the caller's identity back once the handler has returned.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(request.RequestID)
	r.Use(request.Recovery(deps.Logger))
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(request.Logger(deps.Logger))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}
	if deps.Interceptor != nil {
		r.Use(deps.Interceptor.Middleware)
	}
	r.Use(auth.Authenticate(deps.Validator, deps.Logger))

	r.Get("/health", healthHandler(deps.HealthChecks, deps.Logger))
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(deps.Logger, deps.ReportingRoles...))
		deps.Audit.Register(r)
	})

	if deps.Recovery != nil && deps.AdminToken != "" {
		r.Group(func(r chi.Router) {
			r.Use(admin.RequireAdminToken(deps.AdminToken, deps.Logger))
			deps.Recovery.Register(r)
		})
	}

	if deps.TracingEnabled {
		return otelhttp.NewHandler(r, "custody.http",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	}
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		resp := healthResponse{Status: "ok"}
		status := http.StatusOK

		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
		}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.WarnContext(ctx, "health check failed", "dependency", name, "error", err)
				resp.Checks[name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}

		httputil.WriteJSON(w, status, resp)
	}
}
