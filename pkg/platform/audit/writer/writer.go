package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	audit "custody/pkg/platform/audit"
	"custody/pkg/platform/sentinel"
)

const defaultWriteTimeout = 5 * time.Second

// Sink receives a copy of every persisted event. Sinks are best-effort: a
// failing sink is logged and counted, never surfaced to the writer's caller.
type Sink interface {
	Publish(ctx context.Context, event audit.Event) error
}

// Writer validates candidates and appends them to the store. No method
// returns an error or panics: failures degrade to a diagnostic log entry, a
// metric and, when configured, a slot in the recovery buffer.
type Writer struct {
	store    audit.Store
	logger   *slog.Logger
	metrics  *Metrics
	breaker  *CircuitBreaker
	recovery *RingBuffer
	sinks    []Sink

	now          func() time.Time
	writeTimeout time.Duration

	mu       sync.RWMutex
	closed   bool
	inflight sync.WaitGroup
}

// Option configures a Writer.
type Option func(*Writer)

// WithClock overrides the time source used to stamp events.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) {
		if now != nil {
			w.now = now
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(w *Writer) { w.metrics = m }
}

// WithCircuitBreaker skips inserts while the breaker is open.
func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(w *Writer) { w.breaker = cb }
}

// WithRecoveryBuffer keeps events the store refused so a worker can replay them.
func WithRecoveryBuffer(b *RingBuffer) Option {
	return func(w *Writer) { w.recovery = b }
}

// WithSink mirrors persisted events to s.
func WithSink(s Sink) Option {
	return func(w *Writer) {
		if s != nil {
			w.sinks = append(w.sinks, s)
		}
	}
}

// WithWriteTimeout bounds each dispatched write.
func WithWriteTimeout(d time.Duration) Option {
	return func(w *Writer) {
		if d > 0 {
			w.writeTimeout = d
		}
	}
}

// New creates a Writer over store.
func New(store audit.Store, logger *slog.Logger, opts ...Option) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Writer{
		store:        store,
		logger:       logger,
		now:          time.Now,
		writeTimeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write validates and persists one candidate. It returns the stored event, or
// nil if the candidate was rejected or could not be stored.
func (w *Writer) Write(ctx context.Context, candidate audit.Candidate) (event *audit.Event) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.ErrorContext(ctx, "audit write panicked",
				"panic", fmt.Sprint(r),
				"action_type", string(candidate.ActionType),
				"user_id", candidate.UserID,
			)
			w.metrics.IncPersistFailures()
			event = nil
		}
	}()

	accepted, err := audit.Validate(candidate)
	if err != nil {
		w.logger.WarnContext(ctx, "audit event rejected",
			"reason", err.Error(),
			"action_type", string(candidate.ActionType),
			"user_id", candidate.UserID,
			"status", string(candidate.Status),
		)
		w.metrics.IncRejected(err.Error())
		return nil
	}
	accepted.Timestamp = w.now().UTC()

	if err := w.persist(ctx, &accepted); err != nil {
		w.recordFailure(ctx, accepted, err)
		return nil
	}

	w.metrics.IncWritten(string(accepted.ActionType))
	w.mirror(ctx, accepted)
	return &accepted
}

// Dispatch runs Write in the background and returns immediately. The write
// keeps the caller's values but not its cancellation, and is bounded by the
// writer's timeout. After Close, Dispatch drops the candidate with a warning.
func (w *Writer) Dispatch(ctx context.Context, candidate audit.Candidate) {
	w.DispatchFunc(ctx, func() (audit.Candidate, bool) { return candidate, true })
}

// DispatchFunc is Dispatch for candidates that are costly to derive: build
// runs on the background goroutine, and a false ok drops the candidate.
func (w *Writer) DispatchFunc(ctx context.Context, build func() (audit.Candidate, bool)) {
	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		w.logger.WarnContext(ctx, "audit writer closed, event dropped")
		return
	}
	w.inflight.Add(1)
	w.mu.RUnlock()

	detached := context.WithoutCancel(ctx)
	go func() {
		defer w.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				w.logger.ErrorContext(detached, "audit candidate build panicked", "panic", fmt.Sprint(r))
				w.metrics.IncPersistFailures()
			}
		}()

		candidate, ok := build()
		if !ok {
			return
		}
		writeCtx, cancel := context.WithTimeout(detached, w.writeTimeout)
		defer cancel()
		w.Write(writeCtx, candidate)
	}()
}

// Replay stores an event that was accepted earlier but never persisted,
// keeping its original timestamp. It passes through the circuit breaker and is
// mirrored like a fresh write. Unlike Write it returns the failure so the
// caller can park the event again.
func (w *Writer) Replay(ctx context.Context, event audit.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("audit replay panicked: %v", r)
		}
	}()

	if err := w.persist(ctx, &event); err != nil {
		return err
	}
	w.mirror(ctx, event)
	return nil
}

// Close stops accepting dispatches and waits for in-flight writes, or until
// ctx is done.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain audit writer: %w", ctx.Err())
	}
}

// BreakerOpen reports whether inserts are currently being skipped.
func (w *Writer) BreakerOpen() bool {
	return w.breaker != nil && w.breaker.IsOpen()
}

// ResetBreaker closes the circuit so the next insert reaches the store.
func (w *Writer) ResetBreaker() {
	if w.breaker == nil {
		return
	}
	w.breaker.Reset()
	w.metrics.SetCircuitBreakerState(false)
}

func (w *Writer) persist(ctx context.Context, event *audit.Event) error {
	if w.breaker != nil && !w.breaker.Allow() {
		w.metrics.IncCircuitBreakerDropped()
		return fmt.Errorf("audit store circuit open: %w", sentinel.ErrUnavailable)
	}

	err := w.store.Append(ctx, event)
	if w.breaker != nil {
		if err != nil {
			w.metrics.SetCircuitBreakerState(w.breaker.RecordFailure())
		} else {
			w.breaker.RecordSuccess()
			w.metrics.SetCircuitBreakerState(false)
		}
	}
	return err
}

// recordFailure emits the serialized event so an operator can recover it by
// hand, then parks it in the recovery buffer.
func (w *Writer) recordFailure(ctx context.Context, event audit.Event, cause error) {
	w.metrics.IncPersistFailures()

	payload, err := json.Marshal(event)
	if err != nil {
		payload = fmt.Appendf(nil, "%+v", event)
	}
	w.logger.ErrorContext(ctx, "audit event not persisted",
		"error", cause.Error(),
		"event", string(payload),
	)

	if w.recovery == nil {
		return
	}
	if w.recovery.Enqueue(event) {
		w.metrics.IncRecoveryDropped()
	}
	w.metrics.SetRecoveryDepth(w.recovery.Len())
}

func (w *Writer) mirror(ctx context.Context, event audit.Event) {
	for _, sink := range w.sinks {
		if err := sink.Publish(ctx, event); err != nil {
			w.metrics.IncSinkFailures()
			w.logger.WarnContext(ctx, "audit mirror publish failed",
				"error", err.Error(),
				"event_id", event.ID,
			)
		}
	}
}
