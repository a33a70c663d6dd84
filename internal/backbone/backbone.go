// Package backbone publishes domain events so that every gateway process,
// not just the one that produced an event, delivers it to its
// locally-subscribed sessions. Two interchangeable strategies implement
// the same contract: in-memory direct dispatch for single-process
// deployments, and a Kafka log + Redis cache pair for multi-process ones.
// The strategy is selected once at startup, never per call.
package backbone

import (
	"context"
	"sync"

	"github.com/crewdeck/relay/internal/registry"
)

// Handler consumes one logical backbone event by name (for example the
// notification consumer on "notification.published"). Handlers run at most
// once per event cluster-wide.
type Handler func(ctx context.Context, ev registry.Event)

// Backbone is the publish/consume contract both strategies implement.
type Backbone interface {
	// Publish makes the event visible to every gateway process. Local
	// session fan-out happens through each process's own consume loop (or
	// directly, for the in-memory strategy).
	Publish(ctx context.Context, ev registry.Event) error

	// Handle registers a named handler for a logical event.
	Handle(event string, h Handler)

	// Run blocks consuming events until the context is canceled. It never
	// returns on transient infrastructure failure; it retries with backoff
	// instead.
	Run(ctx context.Context) error

	Close() error
}

// handlerMux is the named-handler table shared by both strategies.
type handlerMux struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

func newHandlerMux() *handlerMux {
	return &handlerMux{handlers: make(map[string][]Handler)}
}

func (m *handlerMux) add(event string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], h)
}

func (m *handlerMux) dispatch(ctx context.Context, ev registry.Event) {
	m.mu.RLock()
	hs := m.handlers[ev.Name]
	m.mu.RUnlock()
	for _, h := range hs {
		h(ctx, ev)
	}
}
