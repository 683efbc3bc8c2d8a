package inference

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/eleven-am/signstream/internal/frame"
	"github.com/eleven-am/signstream/internal/mode"
	"github.com/eleven-am/signstream/internal/transport"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func jpegFrame(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	img.Set(0, 0, color.White)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func frameEnvelope(t *testing.T, m mode.Mode, replyTo string) []byte {
	t.Helper()
	unit := frame.Unit{Payload: jpegFrame(t, 64, 48), CapturedAt: time.Now(), Mode: m}
	data, err := transport.EncodeFrame("client-1", replyTo, unit)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	return data
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
