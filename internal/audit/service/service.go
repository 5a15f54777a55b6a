package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"custody/internal/audit/metrics"
	"custody/internal/audit/models"
	dErrors "custody/pkg/domain-errors"
	audit "custody/pkg/platform/audit"
	"custody/pkg/requestcontext"
)

const tracerName = "custody/internal/audit/service"

// SummaryCache stores summaries for a short time. Get returns nil, nil on a miss.
type SummaryCache interface {
	Get(ctx context.Context, window string) (*models.Summary, error)
	Set(ctx context.Context, window string, summary *models.Summary) error
}

// Service answers reporting questions over the audit store: filtered queries,
// windowed summaries and the per-evidence and per-user views.
type Service struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	cache   SummaryCache
	tracer  trace.Tracer
	now     func(context.Context) time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithSummaryCache(c SummaryCache) Option {
	return func(s *Service) { s.cache = c }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) {
		if tp != nil {
			s.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithClock overrides the request-scoped clock used for summary windows.
func WithClock(now func(context.Context) time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(store audit.Store, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:  store,
		logger: logger,
		tracer: otel.Tracer(tracerName),
		now:    requestcontext.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Query returns one page of events matching filter, newest first. On failure
// the result is empty (never nil) and err carries a domain error.
func (s *Service) Query(ctx context.Context, filter audit.Filter) (result *models.QueryResult, err error) {
	ctx, span := s.tracer.Start(ctx, "audit.Query")
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = s.panicked(ctx, "query", r)
		}
		if err != nil {
			result = &models.QueryResult{Events: []audit.Event{}}
		}
		s.finish(span, "query", start, err)
	}()

	filter = filter.Normalized()
	span.SetAttributes(
		attribute.String("audit.evidence_id", filter.EvidenceID),
		attribute.String("audit.user_id", filter.UserID),
		attribute.String("audit.action_type", string(filter.ActionType)),
		attribute.Int("audit.limit", filter.Limit),
		attribute.Int("audit.offset", filter.Offset),
	)

	events, total, err := s.store.List(ctx, filter)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to query audit logs",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to retrieve audit logs")
	}
	if events == nil {
		events = []audit.Event{}
	}
	span.SetAttributes(attribute.Int("audit.total_count", total))
	return &models.QueryResult{Events: events, TotalCount: total}, nil
}

// Summarize counts events over the window ending now. Unknown tokens use the
// default window's duration but are echoed back unchanged, and are never
// cached.
func (s *Service) Summarize(ctx context.Context, window string) (summary *models.Summary, err error) {
	ctx, span := s.tracer.Start(ctx, "audit.Summarize")
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = s.panicked(ctx, "summarize", r)
		}
		if err != nil {
			summary = nil
		}
		s.finish(span, "summarize", start, err)
	}()

	token := strings.TrimSpace(window)
	if token == "" {
		token = models.DefaultWindow
	}
	duration, known := models.WindowDurations[token]
	if !known {
		duration = models.WindowDurations[models.DefaultWindow]
		s.logger.DebugContext(ctx, "unrecognized summary window, using default",
			"window", token,
			"default", models.DefaultWindow,
		)
	}
	span.SetAttributes(attribute.String("audit.window", token))

	if known {
		if cached := s.cachedSummary(ctx, token); cached != nil {
			return cached, nil
		}
	}

	since := s.now(ctx).Add(-duration)
	tally, err := s.store.TallySince(ctx, since)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to summarize audit logs",
			"error", err,
			"window", token,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate audit summary")
	}

	summary = models.NewSummary(token)
	for action, n := range tally.ByActionType {
		if action.IsValid() {
			summary.ByActionType[action] += n
		}
	}
	for status, n := range tally.ByStatus {
		if status.IsValid() {
			summary.ByStatus[status] += n
		}
	}
	summary.TotalActions = tally.Total

	if s.cache != nil && known {
		if err := s.cache.Set(ctx, token, summary); err != nil {
			s.logger.WarnContext(ctx, "failed to cache audit summary", "error", err, "window", token)
		}
	}
	return summary, nil
}

// EvidenceTrail returns the custody history of one evidence item.
func (s *Service) EvidenceTrail(ctx context.Context, evidenceID string) (*models.Trail, error) {
	evidenceID = strings.TrimSpace(evidenceID)
	if evidenceID == "" {
		return &models.Trail{Events: []audit.Event{}}, dErrors.New(dErrors.CodeValidation, "Evidence ID is required")
	}

	result, err := s.Query(ctx, audit.Filter{
		EvidenceID: evidenceID,
		Limit:      models.EvidenceTrailLimit,
	})
	return &models.Trail{EvidenceID: evidenceID, Events: result.Events}, err
}

// UserActivity returns the most recent events of one actor. A non-positive
// limit selects the default.
func (s *Service) UserActivity(ctx context.Context, userID string, limit int) (*models.Activity, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return &models.Activity{Events: []audit.Event{}}, dErrors.New(dErrors.CodeValidation, "User ID is required")
	}
	if limit <= 0 {
		limit = models.DefaultActivityLimit
	}

	result, err := s.Query(ctx, audit.Filter{
		UserID: userID,
		Limit:  limit,
	})
	return &models.Activity{UserID: userID, Events: result.Events}, err
}

func (s *Service) cachedSummary(ctx context.Context, window string) *models.Summary {
	if s.cache == nil {
		return nil
	}
	cached, err := s.cache.Get(ctx, window)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to read audit summary cache", "error", err, "window", window)
		return nil
	}
	s.metrics.IncSummaryCache(cached != nil)
	return cached
}

func (s *Service) panicked(ctx context.Context, operation string, r any) error {
	s.logger.ErrorContext(ctx, "audit reporting panicked",
		"operation", operation,
		"panic", fmt.Sprint(r),
	)
	return dErrors.New(dErrors.CodeInternal, "audit reporting failed")
}

func (s *Service) finish(span trace.Span, operation string, start time.Time, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	s.metrics.ObserveOperation(operation, time.Since(start), err)
}
