package health

import (
	"context"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/eleven-am/signstream/internal/pipeline"
	"github.com/eleven-am/signstream/internal/transport"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

type ComponentStatus struct {
	Status    Status `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

type RuntimeStats struct {
	Goroutines         int    `json:"goroutines"`
	MemoryAllocMB      uint64 `json:"memory_alloc_mb"`
	MemoryTotalAllocMB uint64 `json:"memory_total_alloc_mb"`
	MemorySysMB        uint64 `json:"memory_sys_mb"`
	NumGC              uint32 `json:"num_gc"`
}

type RequestStats struct {
	TotalRequests     uint64 `json:"total_requests"`
	ActiveConnections int64  `json:"active_connections"`
}

type Stats struct {
	Pipeline pipeline.Stats `json:"pipeline"`
	Viewers  int            `json:"viewers"`
	Requests RequestStats   `json:"requests"`
	Runtime  RuntimeStats   `json:"runtime"`
}

type HealthResponse struct {
	Status        Status                     `json:"status"`
	Timestamp     time.Time                  `json:"timestamp"`
	Version       string                     `json:"version"`
	UptimeSeconds int64                      `json:"uptime_seconds"`
	State         pipeline.State             `json:"state"`
	Stats         Stats                      `json:"stats"`
	Components    map[string]ComponentStatus `json:"components"`
}

type componentCheck struct {
	name  string
	check func(context.Context) ComponentStatus
}

type Pipeline interface {
	Snapshot() pipeline.Snapshot
	Stats() pipeline.Stats
}

type ViewerCounter interface {
	SubscriberCount() int
}

type Handler struct {
	pipeline  Pipeline
	viewers   ViewerCounter
	redis     *redis.Client
	version   string
	startTime time.Time

	totalRequests     uint64
	activeConnections int64
}

// NewHandler builds the health endpoints. redis may be nil when no
// component of the running configuration talks to Redis.
func NewHandler(p Pipeline, viewers ViewerCounter, redis *redis.Client, version string) *Handler {
	return &Handler{
		pipeline:  p,
		viewers:   viewers,
		redis:     redis,
		version:   version,
		startTime: time.Now(),
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Liveness)
	e.GET("/health/ready", h.Readiness)
}

func (h *Handler) IncrementRequests() {
	atomic.AddUint64(&h.totalRequests, 1)
}

func (h *Handler) IncrementConnections() {
	atomic.AddInt64(&h.activeConnections, 1)
}

func (h *Handler) DecrementConnections() {
	atomic.AddInt64(&h.activeConnections, -1)
}

func (h *Handler) Liveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (h *Handler) Readiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	snap := h.pipeline.Snapshot()

	components := make(map[string]ComponentStatus)
	var mu sync.Mutex
	var wg sync.WaitGroup

	checks := []componentCheck{
		{"transport", func(context.Context) ComponentStatus { return checkTransport(snap.Connection) }},
		{"pipeline", func(context.Context) ComponentStatus { return checkPipeline(snap.State) }},
	}
	if h.redis != nil {
		checks = append(checks, componentCheck{"redis", h.checkRedis})
	}

	wg.Add(len(checks))
	for _, check := range checks {
		go func(name string, fn func(context.Context) ComponentStatus) {
			defer wg.Done()
			status := fn(ctx)
			mu.Lock()
			components[name] = status
			mu.Unlock()
		}(check.name, check.check)
	}
	wg.Wait()

	overallStatus := computeOverallStatus(components)

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	viewers := 0
	if h.viewers != nil {
		viewers = h.viewers.SubscriberCount()
	}

	resp := HealthResponse{
		Status:        overallStatus,
		Timestamp:     time.Now().UTC(),
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		State:         snap.State,
		Stats: Stats{
			Pipeline: h.pipeline.Stats(),
			Viewers:  viewers,
			Requests: RequestStats{
				TotalRequests:     atomic.LoadUint64(&h.totalRequests),
				ActiveConnections: atomic.LoadInt64(&h.activeConnections),
			},
			Runtime: RuntimeStats{
				Goroutines:         runtime.NumGoroutine(),
				MemoryAllocMB:      memStats.Alloc / 1024 / 1024,
				MemoryTotalAllocMB: memStats.TotalAlloc / 1024 / 1024,
				MemorySysMB:        memStats.Sys / 1024 / 1024,
				NumGC:              memStats.NumGC,
			},
		},
		Components: components,
	}

	statusCode := http.StatusOK
	if overallStatus == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	return c.JSON(statusCode, resp)
}

func checkTransport(s transport.State) ComponentStatus {
	switch s {
	case transport.StateConnected:
		return ComponentStatus{Status: StatusHealthy}
	case transport.StateConnecting:
		return ComponentStatus{Status: StatusDegraded, Error: "connecting"}
	default:
		return ComponentStatus{Status: StatusUnhealthy, Error: "disconnected"}
	}
}

// An idle or stopped pipeline is a user choice, not a fault.
func checkPipeline(s pipeline.State) ComponentStatus {
	if s == pipeline.StateSampling {
		return ComponentStatus{Status: StatusHealthy}
	}
	return ComponentStatus{Status: StatusDegraded, Error: "not sampling"}
}

func (h *Handler) checkRedis(ctx context.Context) ComponentStatus {
	start := time.Now()
	if err := h.redis.Ping(ctx).Err(); err != nil {
		return ComponentStatus{
			Status:    StatusUnhealthy,
			LatencyMs: time.Since(start).Milliseconds(),
			Error:     "ping failed",
		}
	}

	return ComponentStatus{
		Status:    StatusHealthy,
		LatencyMs: time.Since(start).Milliseconds(),
	}
}

func computeOverallStatus(components map[string]ComponentStatus) Status {
	criticalComponents := []string{"transport", "redis"}

	for _, name := range criticalComponents {
		if status, ok := components[name]; ok && status.Status == StatusUnhealthy {
			return StatusUnhealthy
		}
	}

	for _, status := range components {
		if status.Status != StatusHealthy {
			return StatusDegraded
		}
	}

	return StatusHealthy
}
