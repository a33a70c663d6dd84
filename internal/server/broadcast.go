package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/crewdeck/relay/internal/metrics"
	"github.com/crewdeck/relay/internal/registry"
	"github.com/crewdeck/relay/internal/topic"
)

// broadcastRequest is the body the main application posts to publish a
// domain event into the backbone.
type broadcastRequest struct {
	Topic   string      `json:"topic"`
	TopicID string      `json:"topic_id,omitempty"`
	Event   string      `json:"event"`
	Data    interface{} `json:"data,omitempty"`
}

func (g *Gateway) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if user := g.auth.ValidateHTTP(r.Context(), r); user == nil {
		metrics.AuthFailures.Inc()
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed body"})
		return
	}
	if req.Event == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "event is required"})
		return
	}

	t := topic.Normalize(req.Topic)
	if t.RequiresID() && req.TopicID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "topic requires a topic id"})
		return
	}

	err := g.bb.Publish(r.Context(), registry.Event{
		Topic:   t,
		TopicID: req.TopicID,
		Name:    req.Event,
		Data:    req.Data,
	})
	if err != nil {
		g.log.Error("broadcast publish failed", zap.String("event", req.Event), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "publish failed"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
