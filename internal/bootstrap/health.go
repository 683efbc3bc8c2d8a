package bootstrap

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/eleven-am/signstream/internal/health"
	"github.com/eleven-am/signstream/internal/pipeline"
	"github.com/eleven-am/signstream/internal/viewer"
)

const version = "1.0.0"

func ProvideHealthHandler(coord *pipeline.Coordinator, hub *viewer.Hub, redisClient *redis.Client) *health.Handler {
	return health.NewHandler(coord, hub, redisClient, version)
}

func metricsMiddleware(h *health.Handler) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h.IncrementRequests()
			h.IncrementConnections()
			defer h.DecrementConnections()
			return next(c)
		}
	}
}

func RegisterHealthRoutes(e *echo.Echo, h *health.Handler) {
	e.Use(metricsMiddleware(h))
	h.RegisterRoutes(e)
}

var HealthModule = fx.Options(
	fx.Provide(ProvideHealthHandler),
	fx.Invoke(RegisterHealthRoutes),
)
