package backbone

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/crewdeck/relay/internal/registry"
	"github.com/crewdeck/relay/internal/topic"
)

type fakeMember struct {
	mu     sync.Mutex
	events []registry.Event
}

func (f *fakeMember) Deliver(ev registry.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeMember) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func TestMemoryPublishFansOutLocally(t *testing.T) {
	reg := registry.New(zaptest.NewLogger(t))
	bb := NewMemory(zaptest.NewLogger(t), reg)

	m := &fakeMember{}
	require.NoError(t, reg.Subscribe(m, topic.BoardCard, "card-1"))

	err := bb.Publish(context.Background(), registry.Event{
		Topic:   topic.BoardCard,
		TopicID: "card-1",
		Name:    "cardUpdate",
		Data:    map[string]interface{}{"name": "renamed"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, m.count())
}

func TestMemoryPublishInvokesNamedHandlers(t *testing.T) {
	reg := registry.New(zaptest.NewLogger(t))
	bb := NewMemory(zaptest.NewLogger(t), reg)

	var got []registry.Event
	bb.Handle("notification.published", func(_ context.Context, ev registry.Event) {
		got = append(got, ev)
	})
	bb.Handle("notification.published", func(_ context.Context, ev registry.Event) {
		got = append(got, ev)
	})

	require.NoError(t, bb.Publish(context.Background(), registry.Event{
		Topic: topic.None,
		Name:  "notification.published",
		Data:  map[string]interface{}{"id": "n-1"},
	}))
	require.NoError(t, bb.Publish(context.Background(), registry.Event{
		Topic: topic.None,
		Name:  "something.else",
	}))

	assert.Len(t, got, 2, "both handlers fire once, unrelated events are ignored")
}

func TestMemoryRunStopsOnCancel(t *testing.T) {
	reg := registry.New(zaptest.NewLogger(t))
	bb := NewMemory(zaptest.NewLogger(t), reg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, bb.Run(ctx), context.Canceled)
}
