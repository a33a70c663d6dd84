// Package topic defines the closed set of broadcast channels the gateway
// knows about.
package topic

// Topic is a named broadcast channel, optionally parameterized by a
// resource id (one board, one card). Unknown values are always coerced to
// None rather than rejected.
type Topic string

const (
	None        Topic = "none"
	Global      Topic = "global"
	UserPrivate Topic = "user-private"
	BoardCard   Topic = "board-card"
	BoardWiki   Topic = "board-wiki"
)

var known = map[Topic]struct{}{
	None:        {},
	Global:      {},
	UserPrivate: {},
	BoardCard:   {},
	BoardWiki:   {},
}

// Normalize coerces an arbitrary string to a member of the enum. Unknown
// values fall back to None.
func Normalize(s string) Topic {
	t := Topic(s)
	if _, ok := known[t]; ok {
		return t
	}
	return None
}

// RequiresID reports whether the topic scopes to a single resource
// instance. None and Global are never parameterized by an id.
func (t Topic) RequiresID() bool {
	switch t {
	case None, Global:
		return false
	default:
		return true
	}
}

// All returns every known topic. The registry uses this to pre-build its
// shards so shard lookup never needs a lock.
func All() []Topic {
	return []Topic{None, Global, UserPrivate, BoardCard, BoardWiki}
}

func (t Topic) String() string {
	return string(t)
}
