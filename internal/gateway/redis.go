package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/wes-io-chat-relay/internal/config"
	"github.com/weiawesome/wes-io-chat-relay/pkg/log"
)

const (
	envelopeField = "envelope"
	// Pending entries idle for longer than this are claimed by a live consumer.
	reclaimIdle = 30 * time.Second
)

// RedisGateway appends envelopes to a single Redis stream. Fan-out readers
// use XREAD from the stream tail; groups use XREADGROUP and XACK.
type RedisGateway struct {
	client *redis.Client
	cfg    config.RedisStreamConfig
}

func NewRedisGateway(client *redis.Client, cfg config.RedisStreamConfig) *RedisGateway {
	if cfg.Stream == "" {
		cfg.Stream = "chat:log"
	}
	if cfg.Block <= 0 {
		cfg.Block = 2 * time.Second
	}
	if cfg.Count <= 0 {
		cfg.Count = 64
	}
	return &RedisGateway{client: client, cfg: cfg}
}

func (g *RedisGateway) Name() string { return DriverRedis }

func (g *RedisGateway) Enqueue(ctx context.Context, env *Envelope) error {
	data, err := env.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: g.cfg.Stream,
		Values: map[string]interface{}{envelopeField: data},
	}
	if g.cfg.MaxLen > 0 {
		args.MaxLen = g.cfg.MaxLen
		args.Approx = true
	}
	if err := g.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to append to stream %s: %w", g.cfg.Stream, err)
	}
	return nil
}

func (g *RedisGateway) Subscribe(ctx context.Context, opts SubscribeOptions, h Handler) error {
	if opts.Group == "" {
		return g.tail(ctx, h)
	}
	return g.consumeGroup(ctx, opts.Group, h)
}

func (g *RedisGateway) tail(ctx context.Context, h Handler) error {
	l := log.Ctx(ctx)

	lastID, err := g.lastID(ctx)
	if err != nil {
		return err
	}

	for {
		streams, err := g.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{g.cfg.Stream, lastID},
			Count:   g.cfg.Count,
			Block:   g.cfg.Block,
		}).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return fmt.Errorf("failed to read stream %s: %w", g.cfg.Stream, err)
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				lastID = msg.ID
				env, err := decodeStreamMessage(msg)
				if err != nil {
					l.Warn().Err(err).Str(log.FieldGateway, DriverRedis).Str("stream_id", msg.ID).Msg("skipping malformed stream entry")
					continue
				}
				if err := handle(ctx, h, env); err != nil {
					l.Error().Err(err).Str(log.FieldGateway, DriverRedis).Str(log.FieldEnvelopeID, env.ID).Msg("envelope handler failed")
				}
			}
		}
	}
}

// lastID returns the id of the newest entry so tailing starts after it.
func (g *RedisGateway) lastID(ctx context.Context) (string, error) {
	msgs, err := g.client.XRevRangeN(ctx, g.cfg.Stream, "+", "-", 1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("failed to read stream tail: %w", err)
	}
	if len(msgs) == 0 {
		return "0-0", nil
	}
	return msgs[0].ID, nil
}

func (g *RedisGateway) consumeGroup(ctx context.Context, group string, h Handler) error {
	l := log.Ctx(ctx)

	err := g.client.XGroupCreateMkStream(ctx, g.cfg.Stream, group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group %s: %w", group, err)
	}

	consumer := "relay-" + strings.ToLower(ulid.Make().String())
	l.Info().Str(log.FieldGateway, DriverRedis).Str("group", group).Str("consumer", consumer).Msg("stream consumer started")

	for {
		streams, err := g.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  []string{g.cfg.Stream, ">"},
			Count:    g.cfg.Count,
			Block:    g.cfg.Block,
		}).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, redis.Nil) {
				g.reclaim(ctx, group, consumer, h)
				continue
			}
			return fmt.Errorf("failed to read group %s: %w", group, err)
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				g.process(ctx, group, msg, h)
			}
		}
	}
}

// reclaim takes over entries another consumer read but never acknowledged.
func (g *RedisGateway) reclaim(ctx context.Context, group, consumer string, h Handler) {
	msgs, _, err := g.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   g.cfg.Stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  reclaimIdle,
		Start:    "0-0",
		Count:    g.cfg.Count,
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			l := log.Ctx(ctx)
			l.Debug().Err(err).Str(log.FieldGateway, DriverRedis).Msg("reclaim skipped")
		}
		return
	}
	for _, msg := range msgs {
		g.process(ctx, group, msg, h)
	}
}

func (g *RedisGateway) process(ctx context.Context, group string, msg redis.XMessage, h Handler) {
	l := log.Ctx(ctx)

	env, err := decodeStreamMessage(msg)
	if err != nil {
		l.Warn().Err(err).Str(log.FieldGateway, DriverRedis).Str("stream_id", msg.ID).Msg("acking malformed stream entry")
		g.ack(ctx, group, msg.ID)
		return
	}

	if err := handle(ctx, h, env); err != nil {
		// Left pending; reclaim retries it later.
		l.Error().Err(err).Str(log.FieldGateway, DriverRedis).Str(log.FieldEnvelopeID, env.ID).Msg("envelope handler failed")
		return
	}
	g.ack(ctx, group, msg.ID)
}

func (g *RedisGateway) ack(ctx context.Context, group, id string) {
	if err := g.client.XAck(ctx, g.cfg.Stream, group, id).Err(); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldGateway, DriverRedis).Str("stream_id", id).Msg("failed to ack stream entry")
	}
}

func decodeStreamMessage(msg redis.XMessage) (*Envelope, error) {
	raw, ok := msg.Values[envelopeField].(string)
	if !ok {
		return nil, fmt.Errorf("stream entry %s has no %s field", msg.ID, envelopeField)
	}
	return UnmarshalEnvelope([]byte(raw))
}

// Close is a no-op; the redis client is owned by the caller.
func (g *RedisGateway) Close() error {
	return nil
}
