// Package events fans audit events out to their sinks without holding up
// the request that produced them.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/guillemso1er/orbitcheck-sub004/pkg/metrics"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/models"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/tracing"
)

const DefaultSinkTimeout = 5 * time.Second

// Sink persists or forwards an audit event.
type Sink interface {
	Name() string
	Record(ctx context.Context, event models.AuditEvent) error
}

// AuditStore is the audit table.
type AuditStore interface {
	Insert(ctx context.Context, event models.AuditEvent) error
}

type storeSink struct {
	store AuditStore
}

// NewStoreSink writes events to the audit table.
func NewStoreSink(store AuditStore) Sink {
	return &storeSink{store: store}
}

func (s *storeSink) Name() string { return "postgres" }

func (s *storeSink) Record(ctx context.Context, event models.AuditEvent) error {
	return s.store.Insert(ctx, event)
}

// Recorder delivers each event to every sink in the background.
type Recorder struct {
	sinks   []Sink
	timeout time.Duration
	logger  ectologger.Logger
	wg      sync.WaitGroup
}

func NewRecorder(logger ectologger.Logger, timeout time.Duration, sinks ...Sink) *Recorder {
	if timeout <= 0 {
		timeout = DefaultSinkTimeout
	}
	return &Recorder{
		sinks:   sinks,
		timeout: timeout,
		logger:  logger,
	}
}

// Record returns immediately. Sink failures are logged and counted, never
// returned.
func (r *Recorder) Record(ctx context.Context, event models.AuditEvent) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	// Detached so a finished request does not cancel the writes.
	ctx = context.WithoutCancel(ctx)

	for _, sink := range r.sinks {
		r.wg.Add(1)
		go func(sink Sink) {
			defer r.wg.Done()
			r.deliver(ctx, sink, event)
		}(sink)
	}
}

func (r *Recorder) deliver(ctx context.Context, sink Sink, event models.AuditEvent) {
	ctx, span := tracing.StartSpan(ctx, "events.Recorder.deliver")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := sink.Record(ctx, event); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"sink":       sink.Name(),
			"event_type": event.Type,
			"request_id": event.RequestID,
		}).Warn("failed to record audit event")
		metrics.RecordAuditEvent(sink.Name(), "error")
		return
	}
	metrics.RecordAuditEvent(sink.Name(), "ok")
}

// Wait blocks until every in-flight delivery has finished or ctx is done.
func (r *Recorder) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
