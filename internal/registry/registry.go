// Package registry tracks which client sessions are subscribed to which
// (topic, topic-id) pair and fans published events out to them.
package registry

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/crewdeck/relay/internal/topic"
)

// Event is the envelope delivered to subscribed sessions and carried over
// the broadcast backbone.
type Event struct {
	Topic   topic.Topic `json:"topic"`
	TopicID string      `json:"topic_id,omitempty"`
	Name    string      `json:"event"`
	Data    interface{} `json:"data"`
}

// Member is the delivery end of a client session. Deliver must never
// block indefinitely and must swallow transport errors; one slow or dead
// member must not affect the rest of a fan-out.
type Member interface {
	Deliver(ev Event)
}

// Registry is the in-process subscription table. Membership maps are
// sharded by topic so mutation on one topic never contends with delivery
// on another. Shards are created once at construction; the shard map
// itself is read-only afterwards.
type Registry struct {
	log    *zap.Logger
	shards map[topic.Topic]*shard
}

// New returns a Registry with one shard per known topic.
func New(log *zap.Logger) *Registry {
	shards := make(map[topic.Topic]*shard, len(topic.All()))
	for _, t := range topic.All() {
		shards[t] = newShard()
	}
	return &Registry{
		log:    log.With(zap.String("module", "registry")),
		shards: shards,
	}
}

// Subscribe adds the member to every (topic, id) pair given. Subscribing
// twice to the same pair has no additional effect. Resource-scoped topics
// require a non-empty id.
func (r *Registry) Subscribe(m Member, t topic.Topic, ids ...string) error {
	t = topic.Normalize(string(t))
	s := r.shards[t]
	if !t.RequiresID() {
		s.add("", m)
		return nil
	}
	for _, id := range ids {
		if id == "" {
			return fmt.Errorf("topic %q requires a topic id", t)
		}
	}
	for _, id := range ids {
		s.add(id, m)
	}
	return nil
}

// Unsubscribe removes the member from every (topic, id) pair given.
// Removing a non-member is a no-op.
func (r *Registry) Unsubscribe(m Member, t topic.Topic, ids ...string) {
	t = topic.Normalize(string(t))
	s := r.shards[t]
	if !t.RequiresID() {
		s.remove("", m)
		return
	}
	for _, id := range ids {
		s.remove(id, m)
	}
}

// UnsubscribeAll removes the member from every pair it currently belongs
// to. Used exclusively by the session close path.
func (r *Registry) UnsubscribeAll(m Member) {
	for _, s := range r.shards {
		s.removeEverywhere(m)
	}
}

// IsSubscribed reports whether any member is subscribed to (topic, id).
func (r *Registry) IsSubscribed(t topic.Topic, id string) bool {
	t = topic.Normalize(string(t))
	if !t.RequiresID() {
		id = ""
	}
	return r.shards[t].hasMembers(id)
}

// Publish delivers data under name to every member subscribed to
// (topic, id) at the moment of delivery. The member set is snapshotted
// before iteration so concurrent subscribe/unsubscribe cannot corrupt the
// fan-out; a member removed after the snapshot may still receive this
// event, one added after it need not.
func (r *Registry) Publish(t topic.Topic, id, name string, data interface{}) int {
	t = topic.Normalize(string(t))
	if !t.RequiresID() {
		id = ""
	}
	members := r.shards[t].snapshot(id)
	ev := Event{Topic: t, TopicID: id, Name: name, Data: data}
	for _, m := range members {
		m.Deliver(ev)
	}
	return len(members)
}
