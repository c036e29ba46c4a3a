package ledger

import (
	"context"
	"log"
	"time"

	"github.com/wwan-labs/wwan-avs/domain"
)

// Sink receives normalized ledger events. The service implements it and
// routes every mutation through the task registry and agent directory, so
// event-driven and API-driven writers share one transition authority.
type Sink interface {
	HandleAgentRegistered(ctx context.Context, ev domain.LedgerEvent) error
	HandleTaskCreated(ctx context.Context, ev domain.LedgerEvent) error
	HandleTaskAssigned(ctx context.Context, ev domain.LedgerEvent) error
	HandleTaskCompleted(ctx context.Context, ev domain.LedgerEvent) error
}

// EventSource is the polling surface the listener consumes.
type EventSource interface {
	PollEvents(ctx context.Context, after uint64) ([]domain.LedgerEvent, error)
}

// Listener polls the ledger for events and dispatches them into a sink.
// A handler error skips the cursor advance for that event so it is retried
// on the next poll; a conflict from the registry means another writer
// already applied the transition and is treated as handled.
type Listener struct {
	source EventSource
	sink   Sink
	every  time.Duration
	cursor uint64
}

// NewListener creates a listener over the given source and sink.
func NewListener(source EventSource, sink Sink, every time.Duration) *Listener {
	return &Listener{source: source, sink: sink, every: every}
}

// Run polls until the context is cancelled.
func (l *Listener) Run(ctx context.Context) {
	log.Printf("ledger listener started (poll every %s)", l.every)
	ticker := time.NewTicker(l.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("ledger listener stopped")
			return
		case <-ticker.C:
			l.poll(ctx)
		}
	}
}

func (l *Listener) poll(ctx context.Context) {
	events, err := l.source.PollEvents(ctx, l.cursor)
	if err != nil {
		log.Printf("WARN: event poll failed: %v", err)
		return
	}

	for _, ev := range events {
		if err := l.dispatch(ctx, ev); err != nil {
			log.Printf("WARN: event %s (seq %d) failed: %v", ev.Type, ev.Sequence, err)
			return
		}
		l.cursor = ev.Sequence
	}
}

func (l *Listener) dispatch(ctx context.Context, ev domain.LedgerEvent) error {
	switch ev.Type {
	case domain.LedgerEventAgentRegistered:
		return l.sink.HandleAgentRegistered(ctx, ev)
	case domain.LedgerEventTaskCreated:
		return l.sink.HandleTaskCreated(ctx, ev)
	case domain.LedgerEventTaskAssigned:
		return l.sink.HandleTaskAssigned(ctx, ev)
	case domain.LedgerEventTaskCompleted:
		return l.sink.HandleTaskCompleted(ctx, ev)
	default:
		log.Printf("WARN: unknown ledger event type %q (seq %d)", ev.Type, ev.Sequence)
		return nil
	}
}
