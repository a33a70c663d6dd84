package backbone

import (
	"context"

	"go.uber.org/zap"

	"github.com/crewdeck/relay/internal/registry"
	"github.com/crewdeck/relay/pkg/logger"
)

// Memory is the single-process strategy: publish dispatches straight into
// the local registry and handler table. No cross-process concern.
type Memory struct {
	log *zap.Logger
	reg *registry.Registry
	mux *handlerMux
}

func NewMemory(log *zap.Logger, reg *registry.Registry) *Memory {
	return &Memory{
		log: log.With(zap.String("module", "backbone"), zap.String("strategy", "memory")),
		reg: reg,
		mux: newHandlerMux(),
	}
}

func (m *Memory) Publish(ctx context.Context, ev registry.Event) error {
	m.reg.Publish(ev.Topic, ev.TopicID, ev.Name, ev.Data)
	m.mux.dispatch(logger.WithContext(ctx, "backbone-memory"), ev)
	return nil
}

func (m *Memory) Handle(event string, h Handler) {
	m.mux.add(event, h)
}

// Run blocks until the context is canceled; the in-memory strategy has no
// consume loop of its own.
func (m *Memory) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (m *Memory) Close() error {
	return nil
}
