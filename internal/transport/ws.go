package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/eleven-am/signstream/internal/frame"
	"github.com/eleven-am/signstream/internal/shared"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
)

type WSConfig struct {
	URL       string
	ClientID  string
	Header    http.Header
	QueueSize int
	Backoff   shared.BackoffConfig
	Dialer    *websocket.Dialer
	Logger    *slog.Logger
}

// WSChannel talks to the inference service over a single websocket,
// redialing with backoff whenever the connection drops.
type WSChannel struct {
	dispatcher

	cfg    WSConfig
	dialer *websocket.Dialer
	out    outbox

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

func NewWSChannel(cfg WSConfig) *WSChannel {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.Backoff = cfg.Backoff.Normalize()
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			HandshakeTimeout: 5 * time.Second,
			ReadBufferSize:   1024,
			WriteBufferSize:  64 * 1024,
		}
	}

	return &WSChannel{
		dispatcher: dispatcher{logger: cfg.Logger.With("component", "ws-channel", "url", cfg.URL)},
		cfg:        cfg,
		dialer:     dialer,
		out:        newOutbox(cfg.QueueSize),
	}
}

func (c *WSChannel) Open(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return shared.ErrClosed
	}
	if c.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(ctx, c.done)
	return nil
}

func (c *WSChannel) Send(_ context.Context, unit frame.Unit) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return c.failSend(shared.ErrClosed)
	}
	if c.State() != StateConnected {
		return c.failSend(errOffline)
	}

	data, err := EncodeFrame(c.cfg.ClientID, "", unit)
	if err != nil {
		return c.failSend(err)
	}
	if err := c.out.push(data); err != nil {
		return c.failSend(err)
	}
	c.sent.Add(1)
	return nil
}

func (c *WSChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	c.setState(StateDisconnected)
	return nil
}

func (c *WSChannel) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	backoff := c.cfg.Backoff.Initial
	attempts := 0

	for {
		c.setState(StateConnecting)
		ws, _, err := c.dialer.DialContext(ctx, c.cfg.URL, c.cfg.Header)
		if err != nil {
			c.setState(StateDisconnected)
			if ctx.Err() != nil {
				return
			}
			attempts++
			if c.cfg.Backoff.MaxAttempts > 0 && attempts >= c.cfg.Backoff.MaxAttempts {
				c.logger.Error("giving up on inference service", "attempts", attempts, "error", err)
				return
			}
			c.logger.Warn("dial failed", "attempt", attempts, "retry_in", backoff, "error", err)

			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = c.cfg.Backoff.Next(backoff)
			continue
		}

		backoff = c.cfg.Backoff.Initial
		attempts = 0
		if n := c.out.drain(); n > 0 {
			c.logger.Debug("dropped stale frames", "count", n)
		}
		c.setState(StateConnected)

		c.serve(ctx, ws)

		c.setState(StateDisconnected)
		if ctx.Err() != nil {
			return
		}
	}
}

func (c *WSChannel) serve(ctx context.Context, ws *websocket.Conn) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		c.writePump(connCtx, ws)
	}()

	c.readPump(ws)
	cancel()
	<-writeDone
}

// readPump returns once the connection fails or writePump closes it.
func (c *WSChannel) readPump(ws *websocket.Conn) {
	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		c.deliver(message, time.Now())
	}
}

func (c *WSChannel) writePump(ctx context.Context, ws *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case data := <-c.out.ch:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.sendFailures.Add(1)
				c.logger.Warn("websocket write error", "error", err)
				return
			}

		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSChannel) String() string {
	return fmt.Sprintf("websocket(%s)", c.cfg.URL)
}
