package bootstrap

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/eleven-am/signstream/internal/frame"
	"github.com/eleven-am/signstream/internal/transport"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProvideFrameSource(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	tests := []struct {
		source string
		check  func(frame.Source) bool
	}{
		{SourceSpool, func(s frame.Source) bool { _, ok := s.(*frame.SpoolSource); return ok }},
		{SourceRedis, func(s frame.Source) bool { _, ok := s.(*frame.RedisSource); return ok }},
		{SourceCamera, func(s frame.Source) bool { return s != nil }},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			cfg := &Config{Source: tt.source, SpoolDir: t.TempDir(), RedisFrameKey: "k", FrameMaxAge: time.Second}
			src, err := ProvideFrameSource(cfg, client, testLogger())
			if err != nil {
				t.Fatalf("ProvideFrameSource error: %v", err)
			}
			if !tt.check(src) {
				t.Errorf("unexpected source type %T", src)
			}
		})
	}

	if _, err := ProvideFrameSource(&Config{Source: "screen"}, nil, testLogger()); err == nil {
		t.Error("expected error for unknown source")
	}
}

func TestProvideChannel(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	tests := []struct {
		transport string
		check     func(transport.Channel) bool
	}{
		{TransportWebSocket, func(c transport.Channel) bool { _, ok := c.(*transport.WSChannel); return ok }},
		{TransportRedis, func(c transport.Channel) bool { _, ok := c.(*transport.RedisChannel); return ok }},
		{TransportGRPC, func(c transport.Channel) bool { _, ok := c.(*transport.GRPCChannel); return ok }},
	}

	for _, tt := range tests {
		t.Run(tt.transport, func(t *testing.T) {
			cfg := &Config{
				Transport:         tt.transport,
				ClientID:          "c1",
				InferenceURL:      "ws://localhost:1/ws",
				InferenceGRPCAddr: "localhost:1",
				RedisFrameChannel: transport.DefaultFrameChannel,
			}
			ch, err := ProvideChannel(cfg, client, testLogger())
			if err != nil {
				t.Fatalf("ProvideChannel error: %v", err)
			}
			if !tt.check(ch) {
				t.Errorf("unexpected channel type %T", ch)
			}
			if ch.State() != transport.StateDisconnected {
				t.Errorf("unopened channel should be disconnected, got %s", ch.State())
			}
		})
	}
}

func TestProvideCadence(t *testing.T) {
	src := frame.NewSpoolSource(frame.SpoolConfig{Dir: t.TempDir(), Logger: testLogger()})

	if _, err := ProvideCadence(&Config{Cadence: CadenceInterval, SamplingInterval: time.Second}, src); err != nil {
		t.Errorf("interval cadence error: %v", err)
	}
	if _, err := ProvideCadence(&Config{Cadence: CadencePaint, SamplingInterval: time.Second}, src); err != nil {
		t.Errorf("paint cadence error: %v", err)
	}
}

func TestProvideCoordinator(t *testing.T) {
	cfg := &Config{
		MaxResults:      3,
		ConfidenceDelta: 0.05,
		ReadyTimeout:    time.Second,
		NoticeRate:      1,
		InitialMode:     "letter",
	}
	src := frame.NewSpoolSource(frame.SpoolConfig{Dir: t.TempDir(), Logger: testLogger()})
	ch := transport.NewWSChannel(transport.WSConfig{URL: "ws://localhost:1/ws", ClientID: "c1", Logger: testLogger()})
	hub := ProvideHub(testLogger())

	coord, err := ProvideCoordinator(CoordinatorParams{
		Config:  cfg,
		Source:  src,
		Cadence: frame.NewIntervalCadence(time.Second),
		Channel: ch,
		Modes:   ProvideModeController(cfg),
		Sink:    ProvideSink(cfg, hub, testLogger()),
		Logger:  testLogger(),
	})
	if err != nil {
		t.Fatalf("ProvideCoordinator error: %v", err)
	}
	if coord.Mode() != "letter" {
		t.Errorf("expected letter mode, got %s", coord.Mode())
	}
}
