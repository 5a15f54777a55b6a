package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"custody/internal/audit/models"
	dErrors "custody/pkg/domain-errors"
	audit "custody/pkg/platform/audit"
	"custody/pkg/platform/httputil"
	"custody/pkg/requestcontext"
)

// Service defines the reporting operations the handler exposes.
type Service interface {
	Query(ctx context.Context, filter audit.Filter) (*models.QueryResult, error)
	Summarize(ctx context.Context, window string) (*models.Summary, error)
	EvidenceTrail(ctx context.Context, evidenceID string) (*models.Trail, error)
	UserActivity(ctx context.Context, userID string, limit int) (*models.Activity, error)
}

// Handler wires the audit reporting endpoints to the reporting service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs an audit reporting handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts the reporting endpoints on the router. Authorization is the
// caller's concern; mount inside a role-gated group.
func (h *Handler) Register(r chi.Router) {
	r.Get("/audit-logs", h.HandleListLogs)
	r.Get("/audit-logs/summary", h.HandleSummary)
	r.Get("/audit-logs/evidence/", h.HandleEvidenceTrail)
	r.Get("/audit-logs/evidence/{evidenceId}", h.HandleEvidenceTrail)
	r.Get("/audit-logs/user/", h.HandleUserActivity)
	r.Get("/audit-logs/user/{userId}", h.HandleUserActivity)
}

// HandleListLogs handles GET /audit-logs.
func (h *Handler) HandleListLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	filter, err := ParseLogsQuery(r)
	if err != nil {
		h.logger.WarnContext(ctx, "invalid audit log query",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.Query(ctx, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list audit logs",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "audit logs listed",
		"request_id", requestID,
		"actor", requestcontext.UserID(ctx),
		"count", result.TotalCount,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, toLogsResponse(result, filter))
}

// HandleSummary handles GET /audit-logs/summary.
func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	summary, err := h.service.Summarize(ctx, r.URL.Query().Get("timeRange"))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to summarize audit logs",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, &SummaryResponse{Success: true, Summary: summary})
}

// HandleEvidenceTrail handles GET /audit-logs/evidence/{evidenceId}.
func (h *Handler) HandleEvidenceTrail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	trail, err := h.service.EvidenceTrail(ctx, chi.URLParam(r, "evidenceId"))
	if err != nil {
		h.logFailure(ctx, "failed to load evidence trail", requestID, err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toTrailResponse(trail))
}

// HandleUserActivity handles GET /audit-logs/user/{userId}.
func (h *Handler) HandleUserActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	limit, err := ParseActivityLimit(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	activity, err := h.service.UserActivity(ctx, chi.URLParam(r, "userId"), limit)
	if err != nil {
		h.logFailure(ctx, "failed to load user activity", requestID, err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toActivityResponse(activity))
}

// logFailure keeps client errors out of the error log.
func (h *Handler) logFailure(ctx context.Context, msg, requestID string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, "request_id", requestID, "error", err)
		return
	}
	h.logger.WarnContext(ctx, msg, "request_id", requestID, "error", err)
}
