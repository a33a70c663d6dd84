package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/crewdeck/relay/internal/metrics"
	"github.com/crewdeck/relay/internal/registry"
	"github.com/crewdeck/relay/internal/session"
	"github.com/crewdeck/relay/internal/topic"
)

// Socket error codes sent in error frames.
const (
	codeBadEnvelope   = 4400
	codeBadSubscribe  = 4422
	codeUnknownAction = 4404
)

// Origin enforcement happens at the reverse proxy in front of the
// gateway; the upgrader accepts what reaches it.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// clientEnvelope is the frame clients send: an action name plus the
// (topic, id) pairs it applies to. Either topic_id or topic_ids may
// carry the identifiers.
type clientEnvelope struct {
	Topic    string          `json:"topic"`
	TopicID  string          `json:"topic_id,omitempty"`
	TopicIDs []string        `json:"topic_ids,omitempty"`
	Event    string          `json:"event"`
	Data     json.RawMessage `json:"data,omitempty"`
}

func (e *clientEnvelope) ids() []string {
	if len(e.TopicIDs) > 0 {
		return e.TopicIDs
	}
	if e.TopicID != "" {
		return []string{e.TopicID}
	}
	return nil
}

// handleSocket authenticates the handshake before upgrading; a bad token
// never becomes a websocket connection.
func (g *Gateway) handleSocket(w http.ResponseWriter, r *http.Request) {
	user := g.auth.ValidateSocket(r.Context(), r)
	if user == nil {
		metrics.AuthFailures.Inc()
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	metrics.Connections.Inc()
	sess := session.New(g.log, conn, user, g.reg)
	defer sess.Close()

	// Every user session listens on its own private topic from the start,
	// so server-pushed notifications need no explicit subscribe.
	if err := sess.Subscribe(topic.UserPrivate, user.ShortID()); err != nil {
		g.log.Warn("private topic subscribe failed", zap.Error(err))
	}

	g.readLoop(conn, sess)
}

func (g *Gateway) readLoop(conn *websocket.Conn, sess *session.Session) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var env clientEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			sess.SendError(codeBadEnvelope, "malformed envelope", false)
			continue
		}
		g.dispatch(sess, &env)
	}
}

func (g *Gateway) dispatch(sess *session.Session, env *clientEnvelope) {
	t := topic.Normalize(env.Topic)

	switch env.Event {
	case "subscribe":
		if t.RequiresID() && len(env.ids()) == 0 {
			sess.SendError(codeBadSubscribe, "topic requires a topic id", false)
			return
		}
		if err := sess.Subscribe(t, env.ids()...); err != nil {
			sess.SendError(codeBadSubscribe, err.Error(), false)
		}
	case "unsubscribe":
		sess.Unsubscribe(t, env.ids()...)
	case "ping":
		sess.Send(registry.Event{Topic: topic.None, Name: "pong"})
	default:
		sess.SendError(codeUnknownAction, "unknown event "+env.Event, false)
	}
}
