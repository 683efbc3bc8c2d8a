package viewer

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/eleven-am/signstream/internal/mode"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ClientMessage is what a websocket viewer may send back.
type ClientMessage struct {
	Type string `json:"type"`
	Mode string `json:"mode,omitempty"`
}

const clientMessageSetMode = "set_mode"

type WSConn struct {
	ws      *websocket.Conn
	setMode func(mode.Mode) (bool, error)
	logger  *slog.Logger
}

func NewWSConn(ws *websocket.Conn, setMode func(mode.Mode) (bool, error), logger *slog.Logger) *WSConn {
	return &WSConn{ws: ws, setMode: setMode, logger: logger}
}

// Run pumps events out and client messages in until either side stops.
func (c *WSConn) Run(ctx context.Context, events <-chan Event) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		c.readPump()
		cancel()
	}()
	c.writePump(ctx, events)
}

func (c *WSConn) readPump() {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("viewer read error", "error", err)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Debug("invalid viewer message", "error", err)
			continue
		}
		if msg.Type != clientMessageSetMode {
			continue
		}
		m, err := mode.Parse(msg.Mode)
		if err != nil {
			c.logger.Debug("invalid mode from viewer", "mode", msg.Mode)
			continue
		}
		if _, err := c.setMode(m); err != nil {
			c.logger.Warn("set mode failed", "error", err)
		}
	}
}

func (c *WSConn) writePump(ctx context.Context, events <-chan Event) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case ev, ok := <-events:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				c.logger.Error("failed to marshal event", "error", err)
				continue
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
