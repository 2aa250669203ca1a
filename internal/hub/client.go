package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/weiawesome/wes-io-chat-relay/internal/config"
	"github.com/weiawesome/wes-io-chat-relay/internal/domain"
)

type outbound struct {
	data []byte
	ack  chan error
}

// Client is one WebSocket session: a reader driven by ReadPump and a single
// writer goroutine (WritePump) that sends queued frames in order.
type Client struct {
	Session *domain.Session

	conn   *websocket.Conn
	config config.WebSocketConfig

	mu     sync.Mutex
	closed bool
	send   chan outbound
	quit   chan struct{}
	once   sync.Once
}

func NewClient(id string, conn *websocket.Conn, cfg config.WebSocketConfig) *Client {
	cfg = withDefaults(cfg)
	return &Client{
		Session: domain.NewSession(id),
		conn:    conn,
		config:  cfg,
		send:    make(chan outbound, cfg.SendBufferSize),
		quit:    make(chan struct{}),
	}
}

func (c *Client) ID() string {
	return c.Session.ID
}

func (c *Client) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && c.Session.IsOpen()
}

// Enqueue queues a text frame without blocking.
func (c *Client) Enqueue(frame []byte) (<-chan error, error) {
	ack := make(chan error, 1)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, domain.ErrSessionClosed
	}
	select {
	case c.send <- outbound{data: frame, ack: ack}:
		return ack, nil
	default:
		return nil, domain.ErrSendBufferFull
	}
}

// Notify sends a plain-text notification to this session only.
func (c *Client) Notify(text string) error {
	_, err := c.Enqueue([]byte(text))
	return err
}

// Close stops accepting frames and signals the writer to shut down. Frames
// still queued are abandoned with domain.ErrSessionClosed.
func (c *Client) Close() {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.quit)
	})
}

// ReadPump delivers every inbound message to handler, one at a time, until
// the connection fails or closes. The returned error is the read error.
func (c *Client) ReadPump(handler func([]byte)) error {
	c.conn.SetReadLimit(c.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.Session.UpdateActivity()
		return c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		c.Session.UpdateActivity()
		handler(message)
	}
}

// WritePump owns all writes to the connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
		c.drain()
		c.conn.Close()
	}()

	for {
		select {
		case out := <-c.send:
			err := c.write(out.data)
			out.ack <- err
			if err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.quit:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Client) write(data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))

	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// drain abandons queued frames. Only called after Close, so nothing new arrives.
func (c *Client) drain() {
	for {
		select {
		case out := <-c.send:
			out.ack <- domain.ErrSessionClosed
		default:
			return
		}
	}
}

func withDefaults(cfg config.WebSocketConfig) config.WebSocketConfig {
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = 256
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = 60 * time.Second
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 65536
	}
	return cfg
}
