package gateway

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/oklog/ulid/v2"

	"github.com/weiawesome/wes-io-chat-relay/internal/config"
	"github.com/weiawesome/wes-io-chat-relay/pkg/log"
)

// KafkaGateway produces envelopes keyed by chat room so each room stays on
// one partition and keeps its order.
type KafkaGateway struct {
	producer *kafka.Producer
	cfg      config.KafkaConfig
	doneCh   chan struct{}
}

func NewKafkaGateway(ctx context.Context, cfg config.KafkaConfig) (*KafkaGateway, error) {
	l := log.Ctx(ctx)

	if cfg.Partitions <= 0 {
		cfg.Partitions = 8
	}
	if err := ensureTopic(ctx, cfg.Brokers, cfg.Topic, cfg.Partitions); err != nil {
		l.Warn().Err(err).Str("topic", cfg.Topic).Msg("failed to ensure kafka topic (may already exist)")
	}

	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  cfg.Brokers,
		"acks":               "all",
		"enable.idempotence": true,
		"linger.ms":          5,
		"compression.type":   "snappy",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	g := &KafkaGateway{
		producer: p,
		cfg:      cfg,
		doneCh:   make(chan struct{}),
	}
	go g.eventLoop()

	return g, nil
}

func ensureTopic(ctx context.Context, brokers, topic string, partitions int) error {
	admin, err := kafka.NewAdminClient(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
	})
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{
		{
			Topic:             topic,
			NumPartitions:     partitions,
			ReplicationFactor: 1,
		},
	})
	if err != nil {
		return err
	}

	for _, result := range results {
		if result.Error.Code() != kafka.ErrNoError && result.Error.Code() != kafka.ErrTopicAlreadyExists {
			return fmt.Errorf("failed to create topic %s: %v", result.Topic, result.Error)
		}
	}
	return nil
}

// eventLoop drains producer events that are not tied to a delivery channel.
func (g *KafkaGateway) eventLoop() {
	l := log.L()
	for e := range g.producer.Events() {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				l.Error().Err(ev.TopicPartition.Error).Str(log.FieldGateway, DriverKafka).Msg("kafka delivery failed")
			}
		case kafka.Error:
			l.Error().Err(ev).Str(log.FieldGateway, DriverKafka).Bool("fatal", ev.IsFatal()).Msg("kafka producer error")
		}
	}
	close(g.doneCh)
}

func (g *KafkaGateway) Name() string { return DriverKafka }

// Enqueue waits for the broker's delivery report.
func (g *KafkaGateway) Enqueue(ctx context.Context, env *Envelope) error {
	value, err := env.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	delivery := make(chan kafka.Event, 1)
	err = g.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &g.cfg.Topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(strconv.FormatInt(env.Message.ChatRoomID, 10)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "envelope-id", Value: []byte(env.ID)},
		},
	}, delivery)
	if err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}

	select {
	case e := <-delivery:
		m, ok := e.(*kafka.Message)
		if !ok {
			return fmt.Errorf("unexpected delivery event: %v", e)
		}
		if m.TopicPartition.Error != nil {
			return fmt.Errorf("kafka delivery failed: %w", m.TopicPartition.Error)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe opens a dedicated consumer. Without a group each call joins a
// fresh group starting at the latest offset. With a group, each offset is
// committed manually once the handler has run.
func (g *KafkaGateway) Subscribe(ctx context.Context, opts SubscribeOptions, h Handler) error {
	l := log.Ctx(ctx)

	groupID := opts.Group
	offsetReset := g.cfg.AutoOffsetReset
	if groupID == "" {
		groupID = fmt.Sprintf("%s-fanout-%s", g.cfg.Topic, strings.ToLower(ulid.Make().String()))
		offsetReset = "latest"
	}

	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":    g.cfg.Brokers,
		"group.id":             groupID,
		"auto.offset.reset":    offsetReset,
		"enable.auto.commit":   opts.Group == "",
		"max.poll.interval.ms": g.cfg.MaxPollIntervalMs,
		"session.timeout.ms":   g.cfg.SessionTimeoutMs,
	})
	if err != nil {
		return fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	defer c.Close()

	if err := c.Subscribe(g.cfg.Topic, nil); err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", g.cfg.Topic, err)
	}

	l.Info().Str(log.FieldGateway, DriverKafka).Str("topic", g.cfg.Topic).Str("group", groupID).Msg("kafka consumer started")

	for {
		select {
		case <-ctx.Done():
			l.Info().Str("group", groupID).Msg("kafka consumer stopping")
			return nil
		default:
		}

		ev := c.Poll(500)
		if ev == nil {
			continue
		}

		switch e := ev.(type) {
		case *kafka.Message:
			g.process(ctx, c, e, opts.Group != "", h)
		case kafka.Error:
			l.Error().Err(e).Int("code", int(e.Code())).Bool("fatal", e.IsFatal()).Msg("kafka consumer error")
			if e.IsFatal() {
				return fmt.Errorf("fatal kafka error: %w", e)
			}
		}
	}
}

func (g *KafkaGateway) process(ctx context.Context, c *kafka.Consumer, m *kafka.Message, commit bool, h Handler) {
	l := log.Ctx(ctx)

	env, err := UnmarshalEnvelope(m.Value)
	if err != nil {
		l.Warn().Err(err).Int32("partition", m.TopicPartition.Partition).Str("offset", m.TopicPartition.Offset.String()).Msg("skipping malformed kafka message")
	} else if err := handle(ctx, h, env); err != nil {
		// Committed anyway so one poisoned record cannot stall its partition.
		l.Error().Err(err).Str(log.FieldEnvelopeID, env.ID).Int32("partition", m.TopicPartition.Partition).Msg("envelope handler failed")
	}

	if commit {
		if _, err := c.CommitMessage(m); err != nil && ctx.Err() == nil {
			l.Error().Err(err).Msg("failed to commit kafka offset")
		}
	}
}

func (g *KafkaGateway) Close() error {
	g.producer.Flush(5000)
	g.producer.Close()
	<-g.doneCh
	return nil
}
