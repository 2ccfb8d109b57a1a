package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/orgmembers/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Message is the JSON document published for each event.
type Message struct {
	Kind       Kind            `json:"kind"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}

// Marshal encodes event as a Message.
func Marshal(event Event) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	return json.Marshal(Message{
		Kind:       event.Kind(),
		OccurredAt: event.Meta().OccurredAt,
		Data:       data,
	})
}

// RedisPublisher publishes events to Redis pub/sub channels named
// "<prefix><kind>", e.g. "orgmembers.organization.created".
type RedisPublisher struct {
	client   redis.UniversalClient
	prefix   string
	timeout  time.Duration
	logger   zerolog.Logger
	inflight sync.WaitGroup
}

// NewRedisPublisher creates a publisher using client.
func NewRedisPublisher(client redis.UniversalClient, prefix string, logger zerolog.Logger) *RedisPublisher {
	return &RedisPublisher{
		client:  client,
		prefix:  prefix,
		timeout: 2 * time.Second,
		logger:  logger,
	}
}

// Channel returns the channel an event kind is published on.
func (p *RedisPublisher) Channel(kind Kind) string {
	return p.prefix + string(kind)
}

// Publish sends the event in the background. Failures are logged and counted.
func (p *RedisPublisher) Publish(ctx context.Context, event Event) {
	payload, err := Marshal(event)
	if err != nil {
		p.logger.Error().Err(err).Str("kind", string(event.Kind())).Msg("Failed to encode event")
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)

	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		defer cancel()

		channel := p.Channel(event.Kind())
		if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
			telemetry.GetMetrics().EventPublishErrorsTotal.Add(ctx, 1,
				metric.WithAttributes(attribute.String("kind", string(event.Kind()))))
			p.logger.Warn().Err(err).Str("channel", channel).Msg("Failed to publish event to redis")
			return
		}

		p.logger.Debug().Str("channel", channel).Msg("Published event to redis")
	}()
}

// Wait blocks until all in-flight publishes finish.
func (p *RedisPublisher) Wait() {
	p.inflight.Wait()
}
