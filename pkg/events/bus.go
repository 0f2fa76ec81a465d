package events

import (
	"context"
	"sync"
	"time"

	"github.com/resumekit/authz/pkg/async"
	"github.com/resumekit/authz/pkg/authz"
)

// Handler consumes one event. Handlers run on their own goroutines;
// returning an error logs the failure but does not re-deliver.
type Handler func(ctx context.Context, event authz.Event) error

// DefaultDispatchTimeout bounds how long one subscriber may spend on
// one event.
const DefaultDispatchTimeout = 30 * time.Second

type subscription struct {
	name    string
	types   map[authz.EventType]bool // empty means every type
	handler Handler
}

// Bus fans authorization events out to in-process subscribers. It
// implements authz.EventPublisher. Dispatch is asynchronous and runs
// on the bus's base context, not the caller's, so events survive the
// request that produced them.
type Bus struct {
	mu      sync.RWMutex
	subs    []subscription
	baseCtx context.Context
	timeout time.Duration
}

// NewBus creates a bus whose dispatch goroutines live under ctx.
// Cancelling ctx stops in-flight handlers at the next context check.
func NewBus(ctx context.Context) *Bus {
	return &Bus{
		baseCtx: ctx,
		timeout: DefaultDispatchTimeout,
	}
}

// SetDispatchTimeout overrides the per-handler dispatch timeout.
func (b *Bus) SetDispatchTimeout(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if d > 0 {
		b.timeout = d
	}
}

// Subscribe registers a handler. With no types given the handler
// receives every event; otherwise only the listed types.
func (b *Bus) Subscribe(name string, handler Handler, types ...authz.EventType) {
	sub := subscription{
		name:    name,
		types:   make(map[authz.EventType]bool, len(types)),
		handler: handler,
	}
	for _, t := range types {
		sub.types[t] = true
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, sub)
}

// Publish fans the event out to every interested subscriber and
// returns immediately. Subscriber failures are logged by the dispatch
// goroutine, never surfaced to the publisher.
func (b *Bus) Publish(ctx context.Context, event authz.Event) error {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	timeout := b.timeout
	b.mu.RUnlock()

	for _, sub := range subs {
		if len(sub.types) > 0 && !sub.types[event.Type] {
			continue
		}

		handler := sub.handler
		async.SafeGo(b.baseCtx, timeout, "event dispatch "+sub.name, func(ctx context.Context) error {
			return handler(ctx, event)
		})
	}

	return nil
}

// SubscriberCount reports how many handlers are registered.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
