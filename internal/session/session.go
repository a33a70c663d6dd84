// Package session wraps one physical client connection: its authenticated
// user, its subscription state, and its send/stream/error primitives.
package session

import (
	"sync"

	"go.uber.org/zap"

	"github.com/crewdeck/relay/internal/metrics"
	"github.com/crewdeck/relay/internal/registry"
	"github.com/crewdeck/relay/internal/store"
	"github.com/crewdeck/relay/internal/topic"
)

// Conn is the write side of the underlying transport. *websocket.Conn
// satisfies it.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// errorFrame is the structured error sent to clients before a deny or
// forced close.
type errorFrame struct {
	Event     string `json:"event"`
	ErrorCode int    `json:"error_code"`
	Message   string `json:"message"`
}

// Session owns one live connection. It is registered in the subscription
// registry for the topics it subscribes to and is torn down exactly once
// on close.
type Session struct {
	log *zap.Logger
	reg *registry.Registry

	mu   sync.Mutex // guards conn writes and the conn/user references
	conn Conn
	user *store.User

	closeOnce sync.Once
}

func New(log *zap.Logger, conn Conn, user *store.User, reg *registry.Registry) *Session {
	return &Session{
		log:  log.With(zap.String("module", "session"), zap.String("user_id", user.ShortID())),
		reg:  reg,
		conn: conn,
		user: user,
	}
}

// User returns the authenticated user, or nil after close.
func (s *Session) User() *store.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// Subscribe registers this session for the given (topic, id) pairs.
func (s *Session) Subscribe(t topic.Topic, ids ...string) error {
	return s.reg.Subscribe(s, t, ids...)
}

// Unsubscribe removes this session from the given (topic, id) pairs.
func (s *Session) Unsubscribe(t topic.Topic, ids ...string) {
	s.reg.Unsubscribe(s, t, ids...)
}

// Deliver implements registry.Member.
func (s *Session) Deliver(ev registry.Event) {
	s.Send(ev)
}

// Send serializes the event envelope onto the connection. The topic is
// normalized against the known enum before sending. A transport-level
// write failure is logged and counted, never propagated: one dead socket
// must not abort the fan-out it is part of.
func (s *Session) Send(ev registry.Event) {
	ev.Topic = topic.Normalize(string(ev.Topic))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return
	}
	if err := s.conn.WriteJSON(ev); err != nil {
		metrics.SendFailures.Inc()
		s.log.Warn("session write failed", zap.String("event", ev.Name), zap.Error(err))
		return
	}
	metrics.EventsDelivered.Inc()
}

// SendError writes a structured error frame. When shouldClose is set the
// connection is closed after the frame is sent.
func (s *Session) SendError(code int, message string, shouldClose bool) {
	s.mu.Lock()
	if s.conn != nil {
		if err := s.conn.WriteJSON(errorFrame{Event: "error", ErrorCode: code, Message: message}); err != nil {
			metrics.SendFailures.Inc()
			s.log.Warn("error frame write failed", zap.Int("error_code", code), zap.Error(err))
		}
	}
	s.mu.Unlock()

	if shouldClose {
		s.Close()
	}
}

// Close tears the session down exactly once: it is removed from every
// topic it subscribed to, the connection is closed, and the user and
// connection references are released. Re-entrant calls are no-ops.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.reg.UnsubscribeAll(s)

		s.mu.Lock()
		conn := s.conn
		s.conn = nil
		s.user = nil
		s.mu.Unlock()

		if conn != nil {
			if err := conn.Close(); err != nil {
				s.log.Debug("connection close failed", zap.Error(err))
			}
		}
		s.log.Info("session closed")
	})
}
