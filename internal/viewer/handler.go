package viewer

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/eleven-am/signstream/internal/frame"
	"github.com/eleven-am/signstream/internal/mode"
	"github.com/eleven-am/signstream/internal/overlay"
	"github.com/eleven-am/signstream/internal/pipeline"
	"github.com/eleven-am/signstream/internal/shared"
)

const EventSnapshot = "snapshot"

// Pipeline is the part of the coordinator the viewer drives.
type Pipeline interface {
	Start(ctx context.Context) error
	Stop() error
	SetMode(m mode.Mode) (bool, error)
	Snapshot() pipeline.Snapshot
	Stats() pipeline.Stats
}

type ResultsResponse struct {
	pipeline.Snapshot
	Placeholder string   `json:"placeholder,omitempty"`
	Labels      []string `json:"labels"`
}

type SetModeRequest struct {
	Mode string `json:"mode"`
}

type SetModeResponse struct {
	Mode    mode.Mode `json:"mode"`
	Changed bool      `json:"changed"`
}

type StateResponse struct {
	State pipeline.State `json:"state"`
}

type Handler struct {
	pipeline Pipeline
	hub      *Hub
	preview  frame.Source
	logger   *slog.Logger
}

// NewHandler builds the viewer API. preview may be nil, in which case the
// live preview route reports 404.
func NewHandler(p Pipeline, hub *Hub, preview frame.Source, logger *slog.Logger) *Handler {
	return &Handler{
		pipeline: p,
		hub:      hub,
		preview:  preview,
		logger:   logger.With("component", "viewer-handler"),
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/results", h.Results)
	g.PUT("/mode", h.SetMode)
	g.POST("/pipeline/start", h.Start)
	g.POST("/pipeline/stop", h.Stop)
	g.GET("/stats", h.Stats)
	g.GET("/events", h.HandleConnect)
	g.GET("/preview", h.Preview)
}

func (h *Handler) Results(c echo.Context) error {
	return c.JSON(http.StatusOK, buildResults(h.pipeline.Snapshot()))
}

func buildResults(snap pipeline.Snapshot) ResultsResponse {
	resp := ResultsResponse{Snapshot: snap, Labels: make([]string, len(snap.Results))}
	for i, a := range snap.Results {
		resp.Labels[i] = overlay.Label(a)
	}
	if len(snap.Results) == 0 {
		resp.Placeholder = overlay.Placeholder(snap.Mode)
	}
	return resp
}

func (h *Handler) SetMode(c echo.Context) error {
	var req SetModeRequest
	if err := c.Bind(&req); err != nil {
		return shared.BadRequest("invalid_request", "Invalid request body")
	}

	m, err := mode.Parse(req.Mode)
	if err != nil {
		return shared.BadRequest("invalid_mode", err.Error())
	}

	changed, err := h.pipeline.SetMode(m)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidMode) {
			return shared.BadRequest("invalid_mode", err.Error())
		}
		h.logger.Error("set mode failed", "error", err)
		return shared.InternalError("set_mode_failed", "Failed to change mode")
	}

	return c.JSON(http.StatusOK, SetModeResponse{Mode: m, Changed: changed})
}

func (h *Handler) Start(c echo.Context) error {
	if err := h.pipeline.Start(c.Request().Context()); err != nil {
		if errors.Is(err, shared.ErrSourceNotReady) {
			return shared.Conflict("source_not_ready", err.Error())
		}
		h.logger.Error("pipeline start failed", "error", err)
		return shared.InternalError("start_failed", "Failed to start pipeline")
	}
	return c.JSON(http.StatusOK, StateResponse{State: h.pipeline.Snapshot().State})
}

func (h *Handler) Stop(c echo.Context) error {
	if err := h.pipeline.Stop(); err != nil {
		h.logger.Error("pipeline stop failed", "error", err)
		return shared.InternalError("stop_failed", "Failed to stop pipeline")
	}
	return c.JSON(http.StatusOK, StateResponse{State: h.pipeline.Snapshot().State})
}

func (h *Handler) Stats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.pipeline.Stats())
}

func (h *Handler) Preview(c echo.Context) error {
	if h.preview == nil {
		return echo.NewHTTPError(http.StatusNotFound, "preview not available")
	}
	return servePreview(c.Request().Context(), c, h.preview, previewInterval)
}

// HandleConnect streams viewer events over SSE when the client asks for
// text/event-stream, and over a websocket otherwise.
func (h *Handler) HandleConnect(c echo.Context) error {
	accept := c.Request().Header.Get("Accept")
	if !strings.Contains(accept, "text/event-stream") {
		return h.handleWebSocket(c)
	}
	return h.handleSSE(c)
}

func (h *Handler) snapshotEvent() Event {
	return Event{Type: EventSnapshot, Data: buildResults(h.pipeline.Snapshot()), At: time.Now()}
}

func (h *Handler) handleWebSocket(c echo.Context) error {
	id, events, cancel, err := h.hub.Subscribe()
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	defer cancel()

	ws, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return err
	}

	h.logger.Info("viewer connected (WebSocket)", "subscriber_id", id)

	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteJSON(h.snapshotEvent()); err != nil {
		_ = ws.Close()
		return nil
	}

	NewWSConn(ws, h.pipeline.SetMode, h.logger).Run(c.Request().Context(), events)

	h.logger.Info("viewer disconnected (WebSocket)", "subscriber_id", id)
	return nil
}

func (h *Handler) handleSSE(c echo.Context) error {
	id, events, cancel, err := h.hub.Subscribe()
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	defer cancel()

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	conn, err := NewSSEConn(c.Response())
	if err != nil {
		h.logger.Error("failed to create SSE connection", "error", err)
		return nil
	}

	h.logger.Info("viewer connected (SSE)", "subscriber_id", id)

	if err := conn.writeEvent(h.snapshotEvent()); err == nil {
		_ = conn.Run(c.Request().Context(), events)
	}

	h.logger.Info("viewer disconnected (SSE)", "subscriber_id", id)
	return nil
}
