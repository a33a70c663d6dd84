// Command relay runs the realtime gateway: it authenticates websocket
// sessions, tracks their topic subscriptions, and fans domain events out
// to them locally and across processes through the broadcast backbone.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/crewdeck/relay/internal/auth"
	"github.com/crewdeck/relay/internal/backbone"
	"github.com/crewdeck/relay/internal/config"
	"github.com/crewdeck/relay/internal/metrics"
	"github.com/crewdeck/relay/internal/notify"
	"github.com/crewdeck/relay/internal/registry"
	"github.com/crewdeck/relay/internal/server"
	"github.com/crewdeck/relay/internal/store"
	"github.com/crewdeck/relay/pkg/logger"
	"github.com/crewdeck/relay/pkg/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "relay: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Environment: cfg.Environment,
		LogLevel:    cfg.LogLevel,
		Service:     "relay",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "relay: logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("gateway exited", zap.Error(err))
	}
	log.Info("gateway stopped")
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(cfg.PostgresDSN, log)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	users := store.NewUserRepository(db, log)
	notifications := store.NewNotificationRepository(db, log)
	unsubs := store.NewUnsubscriptionRepository(db, log)

	authn := auth.New(auth.Config{
		Secret:            cfg.JWTSecret,
		Algorithm:         cfg.JWTAlgorithm,
		Issuer:            cfg.JWTIssuer,
		RefreshCookieName: cfg.RefreshCookieName,
	}, users, log)

	reg := registry.New(log)

	bb, err := buildBackbone(cfg, log, reg)
	if err != nil {
		return err
	}
	defer func() { _ = bb.Close() }()

	var mailer notify.Mailer
	if cfg.SMTP.Configured() {
		mailer = notify.NewSMTPMailer(cfg.SMTP)
	} else {
		log.Info("smtp not configured, email channel disabled")
	}
	consumer := notify.NewConsumer(log, notifications, unsubs, bb, mailer)
	bb.Handle(notify.EventNotificationPublished, consumer.Handle)

	gateway := server.NewGateway(log, authn, reg, bb)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bb.Run(ctx)
	})
	g.Go(func() error {
		return gateway.Run(ctx, cfg.AppAddr)
	})
	g.Go(func() error {
		log.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsSrv.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	log.Info("gateway starting",
		zap.String("strategy", cfg.BroadcastStrategy),
		zap.String("addr", cfg.AppAddr),
	)
	return g.Wait()
}

func buildBackbone(cfg *config.Config, log *zap.Logger, reg *registry.Registry) (backbone.Backbone, error) {
	switch cfg.BroadcastStrategy {
	case config.StrategyKafka:
		cache, err := redis.NewClient(redis.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, log)
		if err != nil {
			return nil, errors.Wrap(err, "connect payload cache")
		}
		return backbone.NewKafka(log, reg, cache.Client, backbone.KafkaConfig{
			Brokers:    cfg.KafkaBrokers,
			Topic:      cfg.KafkaTopic,
			PayloadTTL: cfg.PayloadTTL,
		}), nil
	default:
		return backbone.NewMemory(log, reg), nil
	}
}
