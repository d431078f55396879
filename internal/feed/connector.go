// Package feed consumes the upstream Jetstream websocket and turns post
// creation events into model.Post values.
//
// The Connector is a supervised loop with an explicit state machine:
//
//	Connecting -> Connected -> Disconnected -> Connecting -> ...
//
// Every disconnect, clean or not, is followed by exactly one reconnect
// attempt after a fixed delay. The loop never gives up and never escalates
// the delay; it stops only when its context is cancelled.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alfredjeanlab/skyfeed/internal/metrics"
	"github.com/alfredjeanlab/skyfeed/internal/model"
)

// DefaultURL subscribes to post records only.
const DefaultURL = "wss://jetstream2.us-east.bsky.network/subscribe?wantedCollections=app.bsky.feed.post"

const (
	defaultReconnectDelay   = 5 * time.Second
	defaultReadTimeout      = 60 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
)

// State is the connector's position in its connection lifecycle.
type State int32

const (
	StateConnecting State = iota
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Sink receives decoded posts. Submit must not block for long; the read loop
// calls it inline.
type Sink interface {
	Submit(p *model.Post)
}

// Config configures a Connector. Zero values select the defaults.
type Config struct {
	URL            string
	ReconnectDelay time.Duration

	// ReadTimeout bounds the wait for a single frame. A silent upstream is
	// treated as a dropped connection.
	ReadTimeout time.Duration
}

// Connector owns the upstream connection.
type Connector struct {
	cfg    Config
	sink   Sink
	logger *slog.Logger
	dialer websocket.Dialer
	now    func() time.Time

	state      atomic.Int32
	reconnects atomic.Int64
}

// New creates a Connector that delivers posts to sink.
func New(cfg Config, sink Sink, logger *slog.Logger) *Connector {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Connector{
		cfg:    cfg,
		sink:   sink,
		logger: logger,
		dialer: websocket.Dialer{HandshakeTimeout: defaultHandshakeTimeout},
		now:    time.Now,
	}
	c.state.Store(int32(StateDisconnected))
	return c
}

// State returns the current connection state.
func (c *Connector) State() State {
	return State(c.state.Load())
}

// Reconnects returns how many times the connector has re-entered Connecting
// after its first attempt.
func (c *Connector) Reconnects() int64 {
	return c.reconnects.Load()
}

// Serve implements suture.Service.
func (c *Connector) Serve(ctx context.Context) error {
	return c.Run(ctx)
}

func (c *Connector) String() string { return "feed-connector" }

// Run connects, reads until the connection drops, waits ReconnectDelay, and
// repeats until ctx is cancelled. It returns ctx.Err().
func (c *Connector) Run(ctx context.Context) error {
	first := true
	for {
		if !first {
			c.reconnects.Add(1)
		}
		first = false

		c.setState(StateConnecting)
		err := c.connectAndRead(ctx)
		c.setState(StateDisconnected)

		if ctx.Err() != nil {
			c.logger.Info("feed: stopped")
			return ctx.Err()
		}
		c.logger.Warn("feed: disconnected, reconnecting",
			"err", err, "delay", c.cfg.ReconnectDelay)

		timer := time.NewTimer(c.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.logger.Info("feed: stopped")
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Connector) connectAndRead(ctx context.Context) error {
	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		metrics.FeedConnects.WithLabelValues("error").Inc()
		if resp != nil {
			return fmt.Errorf("dial %s (status %d): %w", c.cfg.URL, resp.StatusCode, err)
		}
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}
	metrics.FeedConnects.WithLabelValues("success").Inc()

	c.setState(StateConnected)
	c.logger.Info("feed: connected", "url", c.cfg.URL)

	// ReadMessage does not observe ctx; closing the conn unblocks it.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return errors.New("upstream closed the connection")
			}
			return fmt.Errorf("read: %w", err)
		}
		c.handleFrame(msgType, data)
	}
}

func (c *Connector) handleFrame(msgType int, data []byte) {
	metrics.FeedFrames.Inc()
	if msgType != websocket.TextMessage {
		metrics.FeedDropped.WithLabelValues("binary").Inc()
		return
	}
	post, err := Decode(data, c.now)
	if err != nil {
		metrics.FeedDropped.WithLabelValues(dropReason(err)).Inc()
		return
	}
	c.sink.Submit(post)
}

func (c *Connector) setState(s State) {
	c.state.Store(int32(s))
	if s == StateConnected {
		metrics.FeedConnected.Set(1)
	} else {
		metrics.FeedConnected.Set(0)
	}
}
