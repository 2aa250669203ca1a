package hub

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/weiawesome/wes-io-chat-relay/internal/domain"
	"github.com/weiawesome/wes-io-chat-relay/pkg/log"
)

// Report summarizes one broadcast pass.
type Report struct {
	Recipients int // sessions in the snapshot
	Delivered  int // frames written
	Failed     int // enqueue or write failures
	Skipped    int // sessions already closed at snapshot time
}

// Delivery is the handle of one broadcast. It completes once every enqueued
// frame has been written or abandoned.
type Delivery struct {
	done   chan struct{}
	report Report
	err    error
}

func (d *Delivery) Done() <-chan struct{} {
	return d.done
}

// Wait blocks until the broadcast completes or ctx ends. The error is non-nil
// only when the message could not be encoded or ctx ended first; per-session
// failures are reported in Report.Failed.
func (d *Delivery) Wait(ctx context.Context) (Report, error) {
	select {
	case <-d.done:
		return d.report, d.err
	case <-ctx.Done():
		return Report{}, ctx.Err()
	}
}

func failedDelivery(err error) *Delivery {
	d := &Delivery{done: make(chan struct{}), err: err}
	close(d.done)
	return d
}

var errNilMessage = errors.New("broadcast of nil message")

type pendingSend struct {
	sessionID string
	ack       <-chan error
}

// Broadcaster fans a message out to every open session in the registry.
type Broadcaster struct {
	registry *Registry
	// mu orders the enqueue phase so that concurrent broadcasts land in every
	// session queue in the same relative order.
	mu sync.Mutex
}

func NewBroadcaster(reg *Registry) *Broadcaster {
	return &Broadcaster{registry: reg}
}

// Broadcast serializes msg once and delivers it to every open session.
func (b *Broadcaster) Broadcast(ctx context.Context, msg *domain.ChatMessage) *Delivery {
	if msg == nil {
		return failedDelivery(errNilMessage)
	}

	frame, err := domain.EncodeMessage(msg)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Int64(log.FieldMessageID, msg.ID).Msg("failed to encode broadcast")
		return failedDelivery(err)
	}

	l := log.Ctx(ctx).With().
		Int64(log.FieldMessageID, msg.ID).
		Int64(log.FieldRoomID, msg.ChatRoomID).
		Logger()
	return b.fanOut(l, frame)
}

// BroadcastRaw delivers a pre-encoded frame to every open session.
func (b *Broadcaster) BroadcastRaw(ctx context.Context, frame []byte) *Delivery {
	return b.fanOut(log.Ctx(ctx), frame)
}

func (b *Broadcaster) fanOut(l zerolog.Logger, frame []byte) *Delivery {
	b.mu.Lock()
	sessions := b.registry.Snapshot()
	report := Report{Recipients: len(sessions)}
	pending := make([]pendingSend, 0, len(sessions))

	for _, s := range sessions {
		if !s.IsOpen() {
			report.Skipped++
			continue
		}
		ack, err := s.Enqueue(frame)
		if err != nil {
			report.Failed++
			l.Warn().Err(err).Str(log.FieldSessionID, s.ID()).Msg("broadcast enqueue failed, skipping session")
			continue
		}
		pending = append(pending, pendingSend{sessionID: s.ID(), ack: ack})
	}
	b.mu.Unlock()

	d := &Delivery{done: make(chan struct{})}
	go d.collect(l, report, pending)
	return d
}

func (d *Delivery) collect(l zerolog.Logger, report Report, pending []pendingSend) {
	for _, p := range pending {
		if err := <-p.ack; err != nil {
			report.Failed++
			l.Warn().Err(err).Str(log.FieldSessionID, p.sessionID).Msg("broadcast write failed")
			continue
		}
		report.Delivered++
	}

	d.report = report
	close(d.done)

	l.Debug().
		Int("recipients", report.Recipients).
		Int("delivered", report.Delivered).
		Int("failed", report.Failed).
		Int("skipped", report.Skipped).
		Msg("broadcast completed")
}
