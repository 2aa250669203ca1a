package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/wes-io-chat-relay/internal/config"
	"github.com/weiawesome/wes-io-chat-relay/internal/domain"
)

// Drivers.
const (
	DriverKafka  = "kafka"
	DriverNATS   = "nats"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

var ErrClosed = errors.New("gateway closed")

// Envelope wraps a materialized message on the log. ID is unique per
// enqueue and lets brokers drop duplicate publishes.
type Envelope struct {
	ID         string             `json:"id"`
	Message    domain.ChatMessage `json:"message"`
	EnqueuedAt time.Time          `json:"enqueuedAt"`
}

func NewEnvelope(msg *domain.ChatMessage) *Envelope {
	return &Envelope{
		ID:         ulid.Make().String(),
		Message:    *msg,
		EnqueuedAt: time.Now().UTC(),
	}
}

func (e *Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

func UnmarshalEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Message.ID == 0 {
		return nil, fmt.Errorf("decode envelope: missing message id")
	}
	return &env, nil
}

// Handler processes one envelope. Returning nil acknowledges it.
type Handler func(ctx context.Context, env *Envelope) error

// SubscribeOptions selects the delivery mode. An empty Group means every
// subscriber sees every envelope from the moment it subscribes. A non-empty
// Group shares one durable cursor between all subscribers of that group.
type SubscribeOptions struct {
	Group string
}

type Producer interface {
	// Enqueue returns once the broker has accepted env.
	Enqueue(ctx context.Context, env *Envelope) error
}

type Consumer interface {
	// Subscribe blocks, feeding envelopes to h until ctx is cancelled.
	Subscribe(ctx context.Context, opts SubscribeOptions, h Handler) error
}

type Gateway interface {
	Producer
	Consumer
	Name() string
	Close() error
}

// New builds the gateway selected by cfg.Driver. rdb is only used by the
// redis driver and may be nil otherwise.
func New(ctx context.Context, cfg config.GatewayConfig, rdb *redis.Client) (Gateway, error) {
	switch cfg.Driver {
	case DriverKafka:
		return NewKafkaGateway(ctx, cfg.Kafka)
	case DriverNATS:
		return NewNATSGateway(ctx, cfg.NATS)
	case DriverRedis:
		if rdb == nil {
			return nil, fmt.Errorf("redis gateway requires a redis client")
		}
		return NewRedisGateway(rdb, cfg.Redis), nil
	case DriverMemory:
		return NewMemoryGateway(cfg.Memory.Buffer), nil
	default:
		return nil, fmt.Errorf("unsupported gateway driver: %s", cfg.Driver)
	}
}

const maxHandleAttempts = 3

var retryBackoff = 100 * time.Millisecond

// handle runs h with a short linear backoff between attempts.
func handle(ctx context.Context, h Handler, env *Envelope) error {
	var err error
	for attempt := 1; attempt <= maxHandleAttempts; attempt++ {
		if err = h(ctx, env); err == nil {
			return nil
		}
		if attempt == maxHandleAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(time.Duration(attempt) * retryBackoff):
		}
	}
	return err
}
