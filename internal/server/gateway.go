// Package server exposes the gateway's HTTP surface: the websocket
// endpoint clients connect to, the broadcast endpoint the main
// application publishes through, and liveness.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/crewdeck/relay/internal/backbone"
	"github.com/crewdeck/relay/internal/registry"
	"github.com/crewdeck/relay/internal/store"
)

// Authorizer resolves a request to its authenticated user, nil on any
// failure. Satisfied by auth.Authenticator.
type Authorizer interface {
	ValidateSocket(ctx context.Context, r *http.Request) *store.User
	ValidateHTTP(ctx context.Context, r *http.Request) *store.User
}

// Gateway is the realtime gateway's HTTP layer.
type Gateway struct {
	log  *zap.Logger
	auth Authorizer
	reg  *registry.Registry
	bb   backbone.Backbone
}

func NewGateway(log *zap.Logger, auth Authorizer, reg *registry.Registry, bb backbone.Backbone) *Gateway {
	return &Gateway{
		log:  log.With(zap.String("module", "server")),
		auth: auth,
		reg:  reg,
		bb:   bb,
	}
}

// Handler returns the gateway's route table.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", g.handleSocket)
	mux.HandleFunc("/api/broadcast", g.handleBroadcast)
	mux.HandleFunc("/healthz", g.handleHealth)
	return mux
}

// Run serves the gateway until the context is canceled, then drains.
func (g *Gateway) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		g.log.Info("gateway listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			g.log.Warn("gateway shutdown failed", zap.Error(err))
		}
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
