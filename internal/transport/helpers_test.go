package transport

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/eleven-am/signstream/internal/frame"
	"github.com/eleven-am/signstream/internal/mode"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func testUnit(m mode.Mode) frame.Unit {
	return frame.Unit{Payload: []byte("jpeg-bytes"), CapturedAt: time.Now(), Mode: m}
}
