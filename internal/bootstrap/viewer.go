package bootstrap

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/eleven-am/signstream/internal/frame"
	"github.com/eleven-am/signstream/internal/pipeline"
	"github.com/eleven-am/signstream/internal/viewer"
)

func ProvideViewerHandler(coord *pipeline.Coordinator, hub *viewer.Hub, src frame.Source, logger *slog.Logger) *viewer.Handler {
	return viewer.NewHandler(coord, hub, src, logger.With("handler", "viewer"))
}

func RegisterRoutes(e *echo.Echo, h *viewer.Handler) {
	h.RegisterRoutes(e.Group("/api/v1"))
}

var ViewerModule = fx.Options(
	fx.Provide(ProvideViewerHandler),
	fx.Invoke(RegisterRoutes),
	HealthModule,
)
