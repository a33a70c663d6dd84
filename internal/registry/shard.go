package registry

import "sync"

// shard holds the member sets for one topic, keyed by topic id. Global
// topics use the empty id as their single bucket.
type shard struct {
	mu      sync.RWMutex
	buckets map[string]map[Member]struct{}
}

func newShard() *shard {
	return &shard{buckets: make(map[string]map[Member]struct{})}
}

func (s *shard) add(id string, m Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[id]
	if !ok {
		b = make(map[Member]struct{})
		s.buckets[id] = b
	}
	b[m] = struct{}{}
}

func (s *shard) remove(id string, m Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.buckets[id]; ok {
		delete(b, m)
		if len(b) == 0 {
			delete(s.buckets, id)
		}
	}
}

func (s *shard) removeEverywhere(m Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, b := range s.buckets {
		delete(b, m)
		if len(b) == 0 {
			delete(s.buckets, id)
		}
	}
}

func (s *shard) hasMembers(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buckets[id]) > 0
}

// snapshot copies the member set for id so delivery can iterate without
// holding the shard lock.
func (s *shard) snapshot(id string) []Member {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b := s.buckets[id]
	if len(b) == 0 {
		return nil
	}
	members := make([]Member, 0, len(b))
	for m := range b {
		members = append(members, m)
	}
	return members
}
