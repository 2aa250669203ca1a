package gateway

import (
	"context"
	"sync"

	"github.com/weiawesome/wes-io-chat-relay/pkg/log"
)

// MemoryGateway is an in-process log for tests and single-node development.
// Nothing survives a restart and groups only receive envelopes enqueued after
// their first subscriber arrived. A fan-out subscriber that falls a full
// buffer behind misses envelopes instead of holding up the sender.
type MemoryGateway struct {
	// sendMu orders enqueues so every subscriber observes the same sequence.
	sendMu sync.Mutex

	mu     sync.Mutex
	buffer int
	fanout map[chan *Envelope]struct{}
	groups map[string]chan *Envelope
	closed bool
	done   chan struct{}
}

func NewMemoryGateway(buffer int) *MemoryGateway {
	if buffer <= 0 {
		buffer = 1024
	}
	return &MemoryGateway{
		buffer: buffer,
		fanout: make(map[chan *Envelope]struct{}),
		groups: make(map[string]chan *Envelope),
		done:   make(chan struct{}),
	}
}

func (g *MemoryGateway) Name() string { return DriverMemory }

// Enqueue hands env to every group first, waiting for room in each group
// queue, then to fan-out subscribers without blocking. An error therefore
// means no fan-out subscriber saw env.
func (g *MemoryGateway) Enqueue(ctx context.Context, env *Envelope) error {
	g.sendMu.Lock()
	defer g.sendMu.Unlock()

	groups, fanout, err := g.targets()
	if err != nil {
		return err
	}

	for _, ch := range groups {
		select {
		case ch <- env:
		case <-ctx.Done():
			return ctx.Err()
		case <-g.done:
			return ErrClosed
		}
	}

	for _, ch := range fanout {
		select {
		case ch <- env:
		default:
			l := log.Ctx(ctx)
			l.Warn().Str(log.FieldGateway, DriverMemory).Str(log.FieldEnvelopeID, env.ID).Msg("fan-out subscriber behind, envelope dropped for it")
		}
	}
	return nil
}

func (g *MemoryGateway) targets() ([]chan *Envelope, []chan *Envelope, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil, nil, ErrClosed
	}
	groups := make([]chan *Envelope, 0, len(g.groups))
	for _, ch := range g.groups {
		groups = append(groups, ch)
	}
	fanout := make([]chan *Envelope, 0, len(g.fanout))
	for ch := range g.fanout {
		fanout = append(fanout, ch)
	}
	return groups, fanout, nil
}

func (g *MemoryGateway) Subscribe(ctx context.Context, opts SubscribeOptions, h Handler) error {
	ch, release, err := g.attach(opts.Group)
	if err != nil {
		return err
	}
	defer release()

	l := log.Ctx(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-g.done:
			return nil
		case env := <-ch:
			if err := handle(ctx, h, env); err != nil {
				l.Error().Err(err).
					Str(log.FieldGateway, DriverMemory).
					Str(log.FieldEnvelopeID, env.ID).
					Msg("dropping envelope after failed attempts")
			}
		}
	}
}

func (g *MemoryGateway) attach(group string) (chan *Envelope, func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil, nil, ErrClosed
	}

	if group != "" {
		ch, ok := g.groups[group]
		if !ok {
			ch = make(chan *Envelope, g.buffer)
			g.groups[group] = ch
		}
		// The group channel outlives its subscribers, like a durable cursor.
		return ch, func() {}, nil
	}

	ch := make(chan *Envelope, g.buffer)
	g.fanout[ch] = struct{}{}
	return ch, func() {
		g.mu.Lock()
		delete(g.fanout, ch)
		g.mu.Unlock()
	}, nil
}

func (g *MemoryGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.closed {
		g.closed = true
		close(g.done)
	}
	return nil
}
