package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/weiawesome/wes-io-chat-relay/internal/config"
	"github.com/weiawesome/wes-io-chat-relay/pkg/log"
)

// NATSGateway publishes envelopes to JetStream on <prefix>.<roomId>. The
// envelope id doubles as the JetStream message id, so a retried publish
// inside the dedup window is stored once.
type NATSGateway struct {
	nc  *nats.Conn
	js  jetstream.JetStream
	cfg config.NATSConfig
}

func NewNATSGateway(ctx context.Context, cfg config.NATSConfig) (*NATSGateway, error) {
	l := log.Ctx(ctx)

	nc, err := nats.Connect(cfg.URL, nats.Name("chat-relay"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        cfg.Stream,
		Description: "Chat relay message log",
		Subjects:    []string{cfg.SubjectPrefix + ".*"},
		MaxAge:      cfg.MaxAge,
		Duplicates:  cfg.DedupWindow,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream %s: %w", cfg.Stream, err)
	}
	l.Info().Str(log.FieldGateway, DriverNATS).Str("stream", stream.CachedInfo().Config.Name).Msg("jetstream stream ready")

	return &NATSGateway{nc: nc, js: js, cfg: cfg}, nil
}

func (g *NATSGateway) Name() string { return DriverNATS }

func (g *NATSGateway) subject(chatRoomID int64) string {
	return fmt.Sprintf("%s.%d", g.cfg.SubjectPrefix, chatRoomID)
}

func (g *NATSGateway) Enqueue(ctx context.Context, env *Envelope) error {
	data, err := env.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	subject := g.subject(env.Message.ChatRoomID)
	if _, err := g.js.Publish(ctx, subject, data, jetstream.WithMsgID(env.ID)); err != nil {
		return fmt.Errorf("failed to publish to subject %s: %w", subject, err)
	}
	return nil
}

// Subscribe uses an ordered ephemeral consumer for fan-out and a durable
// explicit-ack consumer for groups.
func (g *NATSGateway) Subscribe(ctx context.Context, opts SubscribeOptions, h Handler) error {
	l := log.Ctx(ctx)
	filter := g.cfg.SubjectPrefix + ".*"

	var (
		cons jetstream.Consumer
		err  error
	)
	if opts.Group == "" {
		cons, err = g.js.OrderedConsumer(ctx, g.cfg.Stream, jetstream.OrderedConsumerConfig{
			FilterSubjects: []string{filter},
			DeliverPolicy:  jetstream.DeliverNewPolicy,
		})
	} else {
		cons, err = g.js.CreateOrUpdateConsumer(ctx, g.cfg.Stream, jetstream.ConsumerConfig{
			Durable:       opts.Group,
			FilterSubject: filter,
			DeliverPolicy: jetstream.DeliverAllPolicy,
			AckPolicy:     jetstream.AckExplicitPolicy,
			MaxDeliver:    5,
			AckWait:       30 * time.Second,
		})
	}
	if err != nil {
		return fmt.Errorf("failed to create consumer on %s: %w", g.cfg.Stream, err)
	}

	acking := opts.Group != ""
	cc, err := cons.Consume(func(m jetstream.Msg) {
		env, err := UnmarshalEnvelope(m.Data())
		if err != nil {
			l.Warn().Err(err).Str("subject", m.Subject()).Msg("dropping malformed jetstream message")
			if acking {
				m.Term()
			}
			return
		}

		if err := handle(ctx, h, env); err != nil {
			l.Error().Err(err).Str(log.FieldEnvelopeID, env.ID).Msg("envelope handler failed")
			if acking {
				m.Nak()
			}
			return
		}
		if acking {
			if err := m.Ack(); err != nil {
				l.Error().Err(err).Str(log.FieldEnvelopeID, env.ID).Msg("failed to ack jetstream message")
			}
		}
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming from %s: %w", g.cfg.Stream, err)
	}

	l.Info().Str(log.FieldGateway, DriverNATS).Str("group", opts.Group).Msg("jetstream consumer started")
	<-ctx.Done()
	cc.Stop()
	return nil
}

func (g *NATSGateway) Close() error {
	if g.nc != nil {
		return g.nc.Drain()
	}
	return nil
}
