package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Client defaults.
const (
	DefaultQueueSize    = 64
	DefaultPingInterval = 30 * time.Second
	DefaultWriteTimeout = 10 * time.Second
)

// ClientConfig configures a websocket [Client].
type ClientConfig struct {
	// QueueSize bounds the events waiting to be written. A client whose
	// queue is full is dropped. Defaults to 64.
	QueueSize int

	// PingInterval is the keepalive period. Defaults to 30s.
	PingInterval time.Duration

	// WriteTimeout bounds each write and ping. Defaults to 10s.
	WriteTimeout time.Duration

	// OnlySpeaker limits private messages to the ones addressed to
	// SpeakerIndex. Otherwise the client receives every private message.
	OnlySpeaker  bool
	SpeakerIndex int
}

// Client is a websocket [Subscriber] with its own write pump.
type Client struct {
	conn *websocket.Conn
	cfg  ClientConfig
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	dropped bool
}

var _ Subscriber = (*Client)(nil)

// NewClient wraps an accepted websocket connection.
func NewClient(conn *websocket.Conn, cfg ClientConfig) *Client {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	return &Client{
		conn: conn,
		cfg:  cfg,
		send: make(chan []byte, cfg.QueueSize),
		done: make(chan struct{}),
	}
}

// Deliver implements [Subscriber]. Private messages for another speaker are
// skipped. A full queue marks the client as dropped and returns false.
func (c *Client) Deliver(ev Event, data []byte) bool {
	if c.cfg.OnlySpeaker {
		if t := ev.target(); t >= 0 && t != c.cfg.SpeakerIndex {
			return true
		}
	}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		c.mu.Lock()
		c.dropped = true
		c.mu.Unlock()
		return false
	}
}

// Send queues a pre-encoded frame, e.g. the initial snapshot, ahead of
// events published later.
func (c *Client) Send(data []byte) error {
	select {
	case c.send <- data:
		return nil
	default:
		return errors.New("realtime: client queue full")
	}
}

// Close implements [Subscriber]. It stops the write pump; Run closes the
// connection.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Run pumps queued frames to the connection and pings it until ctx ends, the
// peer disconnects, a write fails or the client is closed. Incoming messages
// are discarded.
func (c *Client) Run(ctx context.Context) error {
	ctx = c.conn.CloseRead(ctx)

	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.conn.CloseNow()
			return ctx.Err()

		case <-c.done:
			c.mu.Lock()
			dropped := c.dropped
			c.mu.Unlock()
			if dropped {
				return c.conn.Close(websocket.StatusPolicyViolation, "subscriber too slow")
			}
			return c.conn.Close(websocket.StatusGoingAway, "meeting room closed")

		case msg := <-c.send:
			writeCtx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
			err := c.conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				c.conn.CloseNow()
				return fmt.Errorf("realtime: write: %w", err)
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				slog.Debug("realtime: ping failed", "err", err)
				c.conn.CloseNow()
				return fmt.Errorf("realtime: ping: %w", err)
			}
		}
	}
}
