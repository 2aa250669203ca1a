package service

import (
	"context"
	"time"

	"github.com/weiawesome/wes-io-chat-relay/internal/domain"
	"github.com/weiawesome/wes-io-chat-relay/internal/gateway"
	"github.com/weiawesome/wes-io-chat-relay/internal/hub"
	"github.com/weiawesome/wes-io-chat-relay/pkg/log"
)

// DirectDispatcher persists the message and broadcasts it from the
// receiving instance. It does not wait for the broadcast to finish.
type DirectDispatcher struct {
	chat        ChatService
	broadcaster *hub.Broadcaster
}

func NewDirectDispatcher(chat ChatService, broadcaster *hub.Broadcaster) *DirectDispatcher {
	return &DirectDispatcher{chat: chat, broadcaster: broadcaster}
}

func (d *DirectDispatcher) Dispatch(ctx context.Context, frame domain.ChatFrame) (*domain.ChatMessage, error) {
	msg, err := d.chat.SendMessage(ctx, frame)
	if err != nil {
		return nil, domain.NewError(domain.KindDispatch, "send", err)
	}
	// The broadcast must not be tied to the sender's session context.
	d.broadcaster.Broadcast(context.WithoutCancel(ctx), msg)
	return msg, nil
}

// GatewayDispatcher appends the message to the durable log. Delivery to
// sessions happens in the broadcast consumer of every instance.
type GatewayDispatcher struct {
	chat     ChatService
	producer gateway.Producer
	timeout  time.Duration
}

func NewGatewayDispatcher(chat ChatService, producer gateway.Producer, timeout time.Duration) *GatewayDispatcher {
	return &GatewayDispatcher{chat: chat, producer: producer, timeout: timeout}
}

func (d *GatewayDispatcher) Dispatch(ctx context.Context, frame domain.ChatFrame) (*domain.ChatMessage, error) {
	msg, err := d.chat.NewMessage(ctx, frame)
	if err != nil {
		return nil, domain.NewError(domain.KindDispatch, "materialize", err)
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	env := gateway.NewEnvelope(msg)
	if err := d.producer.Enqueue(ctx, env); err != nil {
		return nil, domain.NewError(domain.KindDispatch, "enqueue", err)
	}

	l := log.Ctx(ctx)
	l.Debug().
		Str(log.FieldEnvelopeID, env.ID).
		Int64(log.FieldMessageID, msg.ID).
		Int64(log.FieldRoomID, msg.ChatRoomID).
		Msg("message enqueued")
	return msg, nil
}
