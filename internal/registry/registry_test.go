package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/crewdeck/relay/internal/topic"
)

type fakeMember struct {
	mu     sync.Mutex
	events []Event
}

func (f *fakeMember) Deliver(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeMember) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func TestPublishDeliversToSubscribers(t *testing.T) {
	reg := New(zaptest.NewLogger(t))
	a := &fakeMember{}
	b := &fakeMember{}
	require.NoError(t, reg.Subscribe(a, topic.BoardCard, "card-1"))
	require.NoError(t, reg.Subscribe(b, topic.BoardCard, "card-1"))

	n := reg.Publish(topic.BoardCard, "card-1", "cardUpdate", map[string]interface{}{"id": "card-1"})
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())

	reg.Unsubscribe(a, topic.BoardCard, "card-1")
	n = reg.Publish(topic.BoardCard, "card-1", "cardUpdate", nil)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, a.count())
	assert.Equal(t, 2, b.count())
}

func TestPublishScopesByTopicID(t *testing.T) {
	reg := New(zaptest.NewLogger(t))
	a := &fakeMember{}
	b := &fakeMember{}
	require.NoError(t, reg.Subscribe(a, topic.BoardCard, "card-1"))
	require.NoError(t, reg.Subscribe(b, topic.BoardCard, "card-2"))

	reg.Publish(topic.BoardCard, "card-1", "cardUpdate", nil)
	assert.Equal(t, 1, a.count())
	assert.Equal(t, 0, b.count())
}

func TestSubscribeIdempotent(t *testing.T) {
	reg := New(zaptest.NewLogger(t))
	a := &fakeMember{}
	require.NoError(t, reg.Subscribe(a, topic.BoardWiki, "wiki-1"))
	require.NoError(t, reg.Subscribe(a, topic.BoardWiki, "wiki-1"))

	reg.Publish(topic.BoardWiki, "wiki-1", "wikiUpdate", nil)
	assert.Equal(t, 1, a.count())
}

func TestSubscribeRequiresID(t *testing.T) {
	reg := New(zaptest.NewLogger(t))
	a := &fakeMember{}
	assert.Error(t, reg.Subscribe(a, topic.BoardCard, ""))
	assert.False(t, reg.IsSubscribed(topic.BoardCard, ""))

	// Global topics never carry an id.
	require.NoError(t, reg.Subscribe(a, topic.Global))
	assert.True(t, reg.IsSubscribed(topic.Global, ""))
}

func TestUnsubscribeNonMemberNoop(t *testing.T) {
	reg := New(zaptest.NewLogger(t))
	a := &fakeMember{}
	reg.Unsubscribe(a, topic.BoardCard, "card-1")
	assert.False(t, reg.IsSubscribed(topic.BoardCard, "card-1"))
}

func TestUnsubscribeAll(t *testing.T) {
	reg := New(zaptest.NewLogger(t))
	a := &fakeMember{}
	require.NoError(t, reg.Subscribe(a, topic.BoardCard, "card-1", "card-2"))
	require.NoError(t, reg.Subscribe(a, topic.BoardWiki, "wiki-1"))
	require.NoError(t, reg.Subscribe(a, topic.UserPrivate, "user-1"))
	require.NoError(t, reg.Subscribe(a, topic.Global))

	reg.UnsubscribeAll(a)

	assert.False(t, reg.IsSubscribed(topic.BoardCard, "card-1"))
	assert.False(t, reg.IsSubscribed(topic.BoardCard, "card-2"))
	assert.False(t, reg.IsSubscribed(topic.BoardWiki, "wiki-1"))
	assert.False(t, reg.IsSubscribed(topic.UserPrivate, "user-1"))
	assert.False(t, reg.IsSubscribed(topic.Global, ""))

	assert.Equal(t, 0, reg.Publish(topic.BoardCard, "card-1", "cardUpdate", nil))
}

func TestUnknownTopicCoercedToNone(t *testing.T) {
	reg := New(zaptest.NewLogger(t))
	a := &fakeMember{}
	require.NoError(t, reg.Subscribe(a, topic.Topic("board-sticker")))

	reg.Publish(topic.None, "", "stickerUpdate", nil)
	assert.Equal(t, 1, a.count())
}

func TestConcurrentPublishAndUnsubscribe(t *testing.T) {
	reg := New(zaptest.NewLogger(t))
	members := make([]*fakeMember, 50)
	for i := range members {
		members[i] = &fakeMember{}
		require.NoError(t, reg.Subscribe(members[i], topic.BoardCard, "card-1"))
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			reg.Publish(topic.BoardCard, "card-1", "cardUpdate", i)
		}
	}()
	go func() {
		defer wg.Done()
		for _, m := range members {
			reg.Unsubscribe(m, topic.BoardCard, "card-1")
		}
	}()
	wg.Wait()

	assert.False(t, reg.IsSubscribed(topic.BoardCard, "card-1"))
}
