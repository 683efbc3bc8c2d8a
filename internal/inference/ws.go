package inference

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 16 * 1024 * 1024
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 4 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type WSHandler struct {
	responder *Responder
	logger    *slog.Logger
}

func NewWSHandler(responder *Responder, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		responder: responder,
		logger:    logger.With("component", "mock-ws"),
	}
}

func (h *WSHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", h.HandleConnect)
}

// HandleConnect answers every frame on the socket in order. The client
// sends pings; replies to them are handled by gorilla's default handler.
func (h *WSHandler) HandleConnect(c echo.Context) error {
	ws, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return err
	}
	defer ws.Close()

	clientID := c.QueryParam("client_id")
	h.logger.Info("client connected", "client_id", clientID, "remote", c.RealIP())

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPingHandler(func(data string) error {
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		return ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("read error", "client_id", clientID, "error", err)
			}
			break
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))

		reply, _ := h.responder.Respond(data)
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := ws.WriteMessage(websocket.TextMessage, reply); err != nil {
			h.logger.Warn("write error", "client_id", clientID, "error", err)
			break
		}
	}

	h.logger.Info("client disconnected", "client_id", clientID)
	return nil
}
