package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/eleven-am/signstream/internal/pipeline"
	"github.com/eleven-am/signstream/internal/transport"
)

type stubPipeline struct {
	snap  pipeline.Snapshot
	stats pipeline.Stats
}

func (s stubPipeline) Snapshot() pipeline.Snapshot { return s.snap }
func (s stubPipeline) Stats() pipeline.Stats       { return s.stats }

type stubViewers int

func (s stubViewers) SubscriberCount() int { return int(s) }

func readiness(t *testing.T, h *Handler) (int, HealthResponse) {
	t.Helper()
	e := echo.New()
	h.RegisterRoutes(e)

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	return rec.Code, resp
}

func TestLiveness(t *testing.T) {
	e := echo.New()
	NewHandler(stubPipeline{}, nil, nil, "test").RegisterRoutes(e)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestReadiness_Healthy(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	p := stubPipeline{
		snap:  pipeline.Snapshot{State: pipeline.StateSampling, Connection: transport.StateConnected},
		stats: pipeline.Stats{Accepted: 4},
	}
	code, resp := readiness(t, NewHandler(p, stubViewers(2), client, "test"))

	if code != http.StatusOK {
		t.Errorf("expected 200, got %d", code)
	}
	if resp.Status != StatusHealthy {
		t.Errorf("expected healthy, got %s (%+v)", resp.Status, resp.Components)
	}
	if len(resp.Components) != 3 {
		t.Errorf("expected 3 components, got %d", len(resp.Components))
	}
	if resp.Stats.Pipeline.Accepted != 4 || resp.Stats.Viewers != 2 {
		t.Errorf("unexpected stats: %+v", resp.Stats)
	}
	if resp.Version != "test" {
		t.Errorf("unexpected version %q", resp.Version)
	}
}

func TestReadiness_Statuses(t *testing.T) {
	tests := []struct {
		name     string
		state    pipeline.State
		conn     transport.State
		wantCode int
		want     Status
	}{
		{"idle but connected", pipeline.StateIdle, transport.StateConnected, http.StatusOK, StatusDegraded},
		{"connecting", pipeline.StateSampling, transport.StateConnecting, http.StatusOK, StatusDegraded},
		{"disconnected", pipeline.StateSampling, transport.StateDisconnected, http.StatusServiceUnavailable, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := stubPipeline{snap: pipeline.Snapshot{State: tt.state, Connection: tt.conn}}
			code, resp := readiness(t, NewHandler(p, nil, nil, "test"))
			if code != tt.wantCode {
				t.Errorf("expected %d, got %d", tt.wantCode, code)
			}
			if resp.Status != tt.want {
				t.Errorf("expected %s, got %s", tt.want, resp.Status)
			}
			if _, ok := resp.Components["redis"]; ok {
				t.Error("redis should not be checked when not configured")
			}
		})
	}
}

func TestReadiness_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	p := stubPipeline{snap: pipeline.Snapshot{State: pipeline.StateSampling, Connection: transport.StateConnected}}
	code, resp := readiness(t, NewHandler(p, nil, client, "test"))

	if code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", code)
	}
	if resp.Components["redis"].Status != StatusUnhealthy {
		t.Errorf("expected unhealthy redis, got %+v", resp.Components["redis"])
	}
}

func TestIncrementCounters(t *testing.T) {
	h := NewHandler(stubPipeline{}, nil, nil, "test")
	h.IncrementRequests()
	h.IncrementConnections()
	h.IncrementConnections()
	h.DecrementConnections()

	if h.totalRequests != 1 || h.activeConnections != 1 {
		t.Errorf("unexpected counters: %d %d", h.totalRequests, h.activeConnections)
	}
}
