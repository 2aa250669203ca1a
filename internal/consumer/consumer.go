package consumer

import (
	"context"

	"github.com/weiawesome/wes-io-chat-relay/internal/gateway"
	"github.com/weiawesome/wes-io-chat-relay/internal/hub"
	"github.com/weiawesome/wes-io-chat-relay/internal/service"
	"github.com/weiawesome/wes-io-chat-relay/pkg/log"
)

// BroadcastConsumer delivers every envelope on the log to the sessions
// connected to this instance.
type BroadcastConsumer struct {
	source      gateway.Consumer
	broadcaster *hub.Broadcaster
}

func NewBroadcastConsumer(source gateway.Consumer, b *hub.Broadcaster) *BroadcastConsumer {
	return &BroadcastConsumer{source: source, broadcaster: b}
}

// Run blocks until ctx is cancelled.
func (c *BroadcastConsumer) Run(ctx context.Context) error {
	l := log.Ctx(ctx)
	l.Info().Msg("broadcast consumer started")

	return c.source.Subscribe(ctx, gateway.SubscribeOptions{}, c.handle)
}

// handle does not wait for writes; the log order is already fixed by the
// synchronous enqueue inside Broadcast.
func (c *BroadcastConsumer) handle(ctx context.Context, env *gateway.Envelope) error {
	msg := env.Message
	c.broadcaster.Broadcast(ctx, &msg)
	return nil
}

// PersistConsumer stores every envelope once per consumer group.
type PersistConsumer struct {
	source gateway.Consumer
	chat   service.ChatService
	group  string
}

func NewPersistConsumer(source gateway.Consumer, chat service.ChatService, group string) *PersistConsumer {
	return &PersistConsumer{source: source, chat: chat, group: group}
}

func (c *PersistConsumer) Run(ctx context.Context) error {
	l := log.Ctx(ctx)
	l.Info().Str("group", c.group).Msg("persist consumer started")

	return c.source.Subscribe(ctx, gateway.SubscribeOptions{Group: c.group}, c.handle)
}

func (c *PersistConsumer) handle(ctx context.Context, env *gateway.Envelope) error {
	msg := env.Message
	if err := c.chat.SaveMessage(ctx, &msg); err != nil {
		return err
	}

	l := log.Ctx(ctx)
	l.Debug().
		Str(log.FieldEnvelopeID, env.ID).
		Int64(log.FieldMessageID, msg.ID).
		Int64(log.FieldRoomID, msg.ChatRoomID).
		Msg("persisted message")
	return nil
}
