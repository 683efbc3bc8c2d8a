// Package inference is a stand-in inference service for local development.
// It answers frames with canned signs instead of running a model.
package inference

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	"sync"
	"time"

	"github.com/eleven-am/signstream/internal/detection"
	"github.com/eleven-am/signstream/internal/mode"
	"github.com/eleven-am/signstream/internal/transport"
)

// handLandmarks is the number of points in a hand skeleton.
const handLandmarks = 21

var (
	defaultLetters     = []string{"A", "B", "C", "L", "O", "V", "Y"}
	defaultSentences   = []string{"HELLO", "THANK YOU", "HOW ARE YOU", "NICE TO MEET YOU"}
	defaultConfidences = []float64{0.93, 0.88, 0.91, 0.76, 0.97}
)

type Config struct {
	Letters     []string
	Sentences   []string
	Confidences []float64
	// Repeat is how many consecutive frames get the same label before the
	// responder moves on to the next one.
	Repeat int
}

// Responder turns a frame envelope into a result envelope, cycling through
// labels per mode.
type Responder struct {
	cfg Config
	now func() time.Time

	mu    sync.Mutex
	count map[mode.Mode]int
}

func NewResponder(cfg Config) *Responder {
	if len(cfg.Letters) == 0 {
		cfg.Letters = defaultLetters
	}
	if len(cfg.Sentences) == 0 {
		cfg.Sentences = defaultSentences
	}
	if len(cfg.Confidences) == 0 {
		cfg.Confidences = defaultConfidences
	}
	if cfg.Repeat <= 0 {
		cfg.Repeat = 1
	}
	return &Responder{
		cfg:   cfg,
		now:   time.Now,
		count: make(map[mode.Mode]int),
	}
}

// Respond answers one frame envelope. Frames that cannot be read produce an
// error envelope rather than a Go error, so the caller can always reply.
func (r *Responder) Respond(data []byte) (reply []byte, replyTo string) {
	env, payload, err := transport.DecodeFrame(data)
	if err != nil {
		return errorEnvelope(err), ""
	}

	m, err := mode.Parse(env.Mode)
	if err != nil {
		return errorEnvelope(err), env.ReplyTo
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(payload))
	if err != nil {
		return errorEnvelope(fmt.Errorf("decode frame: %w", err)), env.ReplyTo
	}

	out, err := transport.EncodeResult(r.classify(m, cfg.Width, cfg.Height))
	if err != nil {
		return errorEnvelope(err), env.ReplyTo
	}
	return out, env.ReplyTo
}

func (r *Responder) classify(m mode.Mode, width, height int) detection.Result {
	r.mu.Lock()
	n := r.count[m]
	r.count[m] = n + 1
	r.mu.Unlock()

	labels := r.cfg.Letters
	if m == mode.ModeSentence {
		labels = r.cfg.Sentences
	}
	step := n / r.cfg.Repeat

	box := handBox(width, height)
	return detection.Result{
		Sign:        labels[step%len(labels)],
		Confidence:  r.cfg.Confidences[n%len(r.cfg.Confidences)],
		Mode:        m,
		BoundingBox: &box,
		Landmarks:   handSkeleton(box),
		ReceivedAt:  r.now(),
	}
}

// handBox places a square box in the middle of the frame, in normalized
// coordinates.
func handBox(width, height int) detection.BoundingBox {
	w, h := 0.4, 0.4
	if width > 0 && height > 0 && width != height {
		if width > height {
			w = h * float64(height) / float64(width)
		} else {
			h = w * float64(width) / float64(height)
		}
	}
	return detection.BoundingBox{X: (1 - w) / 2, Y: (1 - h) / 2, Width: w, Height: h}
}

// handSkeleton fans five fingers of four joints out from a wrist point at
// the bottom of the box.
func handSkeleton(box detection.BoundingBox) []detection.Point {
	points := make([]detection.Point, 0, handLandmarks)
	wrist := detection.Point{X: box.X + box.Width/2, Y: box.Y + box.Height}
	points = append(points, wrist)

	for finger := 0; finger < 5; finger++ {
		x := box.X + box.Width*(0.1+0.2*float64(finger))
		for joint := 1; joint <= 4; joint++ {
			t := float64(joint) / 4
			points = append(points, detection.Point{
				X: wrist.X + (x-wrist.X)*t,
				Y: wrist.Y - box.Height*t,
			})
		}
	}
	return points
}

func errorEnvelope(err error) []byte {
	data, _ := json.Marshal(transport.ResultEnvelope{
		Type:    transport.MessageTypeError,
		Message: err.Error(),
	})
	return data
}
