package backbone

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/crewdeck/relay/internal/metrics"
	"github.com/crewdeck/relay/internal/registry"
	"github.com/crewdeck/relay/internal/topic"
	"github.com/crewdeck/relay/pkg/logger"
)

// record is the durable log's wire message. The log carries only a
// pointer to the payload; the payload itself is parked in the auxiliary
// cache under CacheKey. This bounds log-record size and avoids storing
// large payloads twice.
type record struct {
	Topic    string `json:"topic"`
	TopicID  string `json:"topic_id,omitempty"`
	Event    string `json:"event"`
	CacheKey string `json:"cache_key"`
}

// KafkaConfig holds the durable strategy's settings.
type KafkaConfig struct {
	Brokers []string
	Topic   string

	// HandlerGroupID is the consumer group shared by every gateway
	// process for named-handler consumption, so each record is handled by
	// exactly one process.
	HandlerGroupID string

	// PayloadTTL bounds how long a parked payload stays resolvable. A
	// consumer that falls further behind than this drops the record:
	// delivery is at-most-once by design.
	PayloadTTL time.Duration

	// ReconnectDelay is the fixed pause between consume-loop retries.
	ReconnectDelay time.Duration
}

func (cfg KafkaConfig) withDefaults() KafkaConfig {
	if cfg.Topic == "" {
		cfg.Topic = "relay.events"
	}
	if cfg.HandlerGroupID == "" {
		cfg.HandlerGroupID = "relay-handlers"
	}
	if cfg.PayloadTTL <= 0 {
		cfg.PayloadTTL = time.Minute
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	return cfg
}

// Kafka is the multi-process strategy: publishing writes the payload to
// Redis and a pointer record onto a partitioned Kafka log. Every gateway
// process consumes the log and dispatches resolved payloads to its own
// local registry, which is what makes cross-process fan-out work.
type Kafka struct {
	log    *zap.Logger
	reg    *registry.Registry
	cfg    KafkaConfig
	cache  *redis.Client
	writer *kafka.Writer
	mux    *handlerMux

	// fanoutGroupID is unique per process so every instance sees every
	// record; the handler group is shared so each record is handled once.
	fanoutGroupID string
}

func NewKafka(log *zap.Logger, reg *registry.Registry, cache *redis.Client, cfg KafkaConfig) *Kafka {
	cfg = cfg.withDefaults()
	return &Kafka{
		log:   log.With(zap.String("module", "backbone"), zap.String("strategy", "kafka")),
		reg:   reg,
		cfg:   cfg,
		cache: cache,
		writer: &kafka.Writer{
			Addr:  kafka.TCP(cfg.Brokers...),
			Topic: cfg.Topic,
			// Hash on the message key so one (topic, topic-id) pair always
			// lands in one partition, preserving its delivery order.
			Balancer: &kafka.Hash{},
		},
		mux:           newHandlerMux(),
		fanoutGroupID: "relay-fanout-" + uuid.NewString(),
	}
}

func (k *Kafka) Publish(ctx context.Context, ev registry.Event) error {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return errors.Wrap(err, "marshal event payload")
	}

	cacheKey := "relay:payload:" + uuid.NewString()
	if err := k.cache.Set(ctx, cacheKey, payload, k.cfg.PayloadTTL).Err(); err != nil {
		return errors.Wrap(err, "park event payload")
	}

	rec, err := json.Marshal(record{
		Topic:    string(ev.Topic),
		TopicID:  ev.TopicID,
		Event:    ev.Name,
		CacheKey: cacheKey,
	})
	if err != nil {
		return errors.Wrap(err, "marshal backbone record")
	}

	msg := kafka.Message{
		Key:   []byte(string(ev.Topic) + "/" + ev.TopicID),
		Value: rec,
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrap(err, "write backbone record")
	}
	return nil
}

func (k *Kafka) Handle(event string, h Handler) {
	k.mux.add(event, h)
}

// Run consumes the log until the context is canceled: one loop fans
// records out to locally-subscribed sessions, the other feeds named
// handlers. Both retry forever with a fixed backoff on infrastructure
// failure; the gateway keeps serving connected sessions in degraded mode
// while the backbone is unreachable.
func (k *Kafka) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return k.consume(ctx, k.fanoutGroupID, k.deliverFanout)
	})
	g.Go(func() error {
		return k.consume(ctx, k.cfg.HandlerGroupID, k.deliverHandlers)
	})
	return g.Wait()
}

func (k *Kafka) consume(ctx context.Context, groupID string, deliver func(context.Context, registry.Event)) error {
	op := func() error {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:     k.cfg.Brokers,
			Topic:       k.cfg.Topic,
			GroupID:     groupID,
			StartOffset: kafka.FirstOffset,
			MaxWait:     time.Second,
		})
		defer func() {
			if err := reader.Close(); err != nil {
				k.log.Warn("reader close failed", zap.Error(err))
			}
		}()

		for {
			m, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return backoff.Permanent(ctx.Err())
				}
				return errors.Wrap(err, "read backbone record")
			}
			k.handleRecord(ctx, m.Value, deliver)
		}
	}

	notify := func(err error, _ time.Duration) {
		k.log.Warn("backbone consume failed, reconnecting",
			zap.String("group_id", groupID),
			zap.Duration("delay", k.cfg.ReconnectDelay),
			zap.Error(err),
		)
	}
	return backoff.RetryNotify(op,
		backoff.WithContext(backoff.NewConstantBackOff(k.cfg.ReconnectDelay), ctx),
		notify,
	)
}

// handleRecord processes one log record: parse, resolve the payload from
// the cache, dispatch. Every failure is contained to this record; the
// consume loop continues with the next one regardless.
func (k *Kafka) handleRecord(ctx context.Context, raw []byte, deliver func(context.Context, registry.Event)) {
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		metrics.BackboneRecordsDropped.Inc()
		k.log.Warn("malformed backbone record, skipping", zap.Error(err))
		return
	}

	payload, err := k.cache.Get(ctx, rec.CacheKey).Bytes()
	if errors.Is(err, redis.Nil) {
		// Payload already expired or evicted. Delivery is best-effort;
		// this is the accepted at-most-once data-loss window.
		metrics.BackboneRecordsDropped.Inc()
		k.log.Debug("payload cache miss, dropping record", zap.String("cache_key", rec.CacheKey))
		return
	}
	if err != nil {
		metrics.BackboneRecordsDropped.Inc()
		k.log.Warn("payload lookup failed, skipping record",
			zap.String("cache_key", rec.CacheKey), zap.Error(err))
		return
	}

	var data interface{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &data); err != nil {
			metrics.BackboneRecordsDropped.Inc()
			k.log.Warn("malformed event payload, skipping record",
				zap.String("cache_key", rec.CacheKey), zap.Error(err))
			return
		}
	}

	deliver(ctx, registry.Event{
		Topic:   topic.Normalize(rec.Topic),
		TopicID: rec.TopicID,
		Name:    rec.Event,
		Data:    data,
	})
}

func (k *Kafka) deliverFanout(_ context.Context, ev registry.Event) {
	k.reg.Publish(ev.Topic, ev.TopicID, ev.Name, ev.Data)
}

func (k *Kafka) deliverHandlers(ctx context.Context, ev registry.Event) {
	k.mux.dispatch(logger.WithContext(ctx, "backbone-kafka"), ev)
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
