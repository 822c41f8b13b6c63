package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"community_bot/internal/telemetry"
)

// Handler processes one event.
type Handler func(ctx context.Context, ev Event) error

// Registry maps event kinds to handlers. Handlers are registered at startup;
// Dispatch may be called concurrently.
type Registry struct {
	mu       sync.RWMutex
	handlers map[Kind][]Handler
	waiters  map[*waiter]struct{}
	log      *slog.Logger
}

type waiter struct {
	kind  Kind
	match func(Event) bool
	ch    chan Event
}

// NewRegistry creates an empty Registry.
func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		handlers: make(map[Kind][]Handler),
		waiters:  make(map[*waiter]struct{}),
		log:      log,
	}
}

// On registers h for events of the given kind.
func (r *Registry) On(kind Kind, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = append(r.handlers[kind], h)
}

// Handle registers a handler typed on the concrete event payload.
func Handle[E Event](r *Registry, h func(ctx context.Context, ev E) error) {
	var zero E
	r.On(zero.Kind(), func(ctx context.Context, ev Event) error {
		e, ok := ev.(E)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", ev, zero.Kind())
		}
		return h(ctx, e)
	})
}

// Dispatch delivers ev to pending waiters and then runs every handler for its
// kind in registration order. Handler errors and panics are logged.
func (r *Registry) Dispatch(ctx context.Context, ev Event) {
	if telemetry.GetCorrelation(ctx) == "" {
		ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	}
	telemetry.Events.WithLabelValues(ev.Kind().String()).Inc()

	r.notifyWaiters(ev)

	r.mu.RLock()
	handlers := r.handlers[ev.Kind()]
	r.mu.RUnlock()

	log := telemetry.LoggerWithCorr(ctx, r.log)
	for _, h := range handlers {
		r.run(ctx, log, h, ev)
	}
}

func (r *Registry) run(ctx context.Context, log *slog.Logger, h Handler, ev Event) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("event handler panicked", "kind", ev.Kind().String(), "panic", p)
		}
	}()
	if err := h(ctx, ev); err != nil {
		log.Error("event handler", "kind", ev.Kind().String(), "error", err)
	}
}

// Wait blocks until an event of kind satisfying match is dispatched or ctx
// is done. A nil match accepts any event of that kind.
func (r *Registry) Wait(ctx context.Context, kind Kind, match func(Event) bool) (Event, error) {
	w := &waiter{kind: kind, match: match, ch: make(chan Event, 1)}

	r.mu.Lock()
	r.waiters[w] = struct{}{}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.waiters, w)
		r.mu.Unlock()
	}()

	select {
	case ev := <-w.ch:
		return ev, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Registry) notifyWaiters(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for w := range r.waiters {
		if w.kind != ev.Kind() {
			continue
		}
		if w.match != nil && !w.match(ev) {
			continue
		}
		select {
		case w.ch <- ev:
		default:
		}
		delete(r.waiters, w)
	}
}
