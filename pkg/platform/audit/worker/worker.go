package worker

import (
	"context"
	"log/slog"
	"time"

	audit "custody/pkg/platform/audit"
	"custody/pkg/platform/audit/writer"
)

// EventWriter persists an event that was accepted earlier. *writer.Writer
// implements it, so replayed events pass the circuit breaker and reach the
// writer's sinks.
type EventWriter interface {
	Replay(ctx context.Context, event audit.Event) error
}

// Worker replays events parked in the writer's recovery buffer. It is off by
// default; the server starts it only when retries are enabled.
type Worker struct {
	writer    EventWriter
	buffer    *writer.RingBuffer
	logger    *slog.Logger
	metrics   *writer.Metrics
	interval  time.Duration
	batchSize int
}

// Option configures a Worker.
type Option func(*Worker)

func WithInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func WithMetrics(m *writer.Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

func NewWorker(ew EventWriter, buffer *writer.RingBuffer, logger *slog.Logger, opts ...Option) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Worker{
		writer:    ew,
		buffer:    buffer,
		logger:    logger,
		interval:  30 * time.Second,
		batchSize: 100,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run replays on every tick until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.Drain(ctx)
		}
	}
}

// Drain takes one batch from the buffer and replays it in order. The first
// failure stops the batch and puts the unsent events back. Returns the number
// of events persisted.
func (w *Worker) Drain(ctx context.Context) int {
	batch := w.buffer.DequeueBatch(w.batchSize)
	if len(batch) == 0 {
		return 0
	}

	persisted := 0
	for i := range batch {
		if err := w.writer.Replay(ctx, batch[i]); err != nil {
			for _, rest := range batch[i:] {
				w.buffer.Enqueue(rest)
			}
			w.logger.WarnContext(ctx, "audit replay interrupted",
				"error", err.Error(),
				"replayed", persisted,
				"remaining", w.buffer.Len(),
			)
			break
		}
		persisted++
	}

	w.metrics.AddReplayed(persisted)
	w.metrics.SetRecoveryDepth(w.buffer.Len())
	if persisted > 0 {
		w.logger.InfoContext(ctx, "audit events replayed", "count", persisted)
	}
	return persisted
}
