package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	audit "custody/pkg/platform/audit"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer is the subset of *kgo.Client the publisher needs.
type Producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
	Flush(ctx context.Context) error
}

// Publisher mirrors persisted audit events to a Kafka topic for downstream
// consumers (SIEM, case-management). The database stays the system of record;
// delivery here is at-most-once from the writer's point of view.
type Publisher struct {
	producer Producer
	topic    string
	logger   *slog.Logger
	onError  func(error)
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithErrorHook is called for every record the broker did not accept.
func WithErrorHook(fn func(error)) Option {
	return func(p *Publisher) { p.onError = fn }
}

func NewPublisher(producer Producer, topic string, logger *slog.Logger, opts ...Option) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{producer: producer, topic: topic, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish enqueues the event and returns without waiting for the broker. Only
// encoding failures are returned; delivery failures go to the logger and the
// error hook.
func (p *Publisher) Publish(ctx context.Context, event audit.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(partitionKey(event)),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "event_id", Value: []byte(event.ID)},
			{Key: "action_type", Value: []byte(event.ActionType)},
			{Key: "status", Value: []byte(event.Status)},
		},
		Timestamp: event.Timestamp,
	}

	// The writer cancels its context as soon as Write returns; the record
	// must outlive it.
	p.producer.Produce(context.WithoutCancel(ctx), record, func(r *kgo.Record, err error) {
		if err == nil {
			return
		}
		p.logger.Warn("audit stream delivery failed",
			"error", err.Error(),
			"topic", r.Topic,
			"event_id", event.ID,
		)
		if p.onError != nil {
			p.onError(err)
		}
	})
	return nil
}

// Close flushes buffered records.
func (p *Publisher) Close(ctx context.Context) error {
	if err := p.producer.Flush(ctx); err != nil {
		return fmt.Errorf("flush audit stream: %w", err)
	}
	return nil
}

// partitionKey keeps every event for one evidence item on one partition so
// consumers see its custody history in order.
func partitionKey(event audit.Event) string {
	if event.EvidenceID != nil {
		return "evidence:" + *event.EvidenceID
	}
	return "user:" + event.UserID
}
