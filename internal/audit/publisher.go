package audit

import (
	"context"
	"log/slog"
)

// ChannelPublisher hands events to an in-process worker over a bounded
// channel. Emit never blocks: when the buffer is full the event is dropped
// and logged, trading completeness for moderation latency.
type ChannelPublisher struct {
	inbox  chan Event
	logger *slog.Logger
}

// NewChannelPublisher creates a publisher with the given buffer capacity.
func NewChannelPublisher(capacity int, logger *slog.Logger) *ChannelPublisher {
	if capacity <= 0 {
		capacity = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChannelPublisher{
		inbox:  make(chan Event, capacity),
		logger: logger,
	}
}

// Emit enqueues the event for the worker.
func (p *ChannelPublisher) Emit(ctx context.Context, event Event) error {
	select {
	case p.inbox <- event:
	default:
		p.logger.Warn("audit buffer full, dropping event",
			"action", event.Action,
			"group", event.Group,
		)
	}
	return nil
}

// Inbox exposes the consumer side for the worker.
func (p *ChannelPublisher) Inbox() <-chan Event {
	return p.inbox
}

// MultiPublisher fans one event out to several sinks. Emit returns the first
// error but still reaches every sink.
type MultiPublisher []Publisher

func (m MultiPublisher) Emit(ctx context.Context, event Event) error {
	var first error
	for _, p := range m {
		if err := p.Emit(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Worker consumes audit events from a publisher's inbox and persists them.
type Worker struct {
	store  Store
	inbox  <-chan Event
	logger *slog.Logger
}

func NewWorker(store Store, inbox <-chan Event, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{store: store, inbox: inbox, logger: logger}
}

// Run appends events until the context is cancelled. Append failures are
// logged and skipped; the trail is best-effort.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.store.Append(ctx, event); err != nil {
				w.logger.Error("audit append failed",
					"event_id", event.ID,
					"error", err,
				)
			}
		}
	}
}
