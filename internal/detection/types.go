package detection

import (
	"fmt"
	"time"

	"github.com/eleven-am/signstream/internal/mode"
	"github.com/eleven-am/signstream/internal/shared"
)

// BoundingBox is normalized to the frame: every field is in [0,1].
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Result is one inference output as received from the service. It is never
// mutated after decoding.
type Result struct {
	Sign        string       `json:"sign"`
	Confidence  float64      `json:"confidence"`
	Mode        mode.Mode    `json:"mode"`
	BoundingBox *BoundingBox `json:"boundingBox,omitempty"`
	Landmarks   []Point      `json:"landmarks,omitempty"`
	ReceivedAt  time.Time    `json:"receivedAt"`
}

// Accepted is a Result admitted into the visible log.
type Accepted struct {
	ID       string `json:"id"`
	Sequence uint64 `json:"sequence"`
	Result
}

func (r Result) Validate() error {
	if r.Sign == "" {
		return fmt.Errorf("%w: missing sign", shared.ErrMalformedResult)
	}
	if !unit(r.Confidence) {
		return fmt.Errorf("%w: confidence %v out of range", shared.ErrMalformedResult, r.Confidence)
	}
	if !r.Mode.Valid() {
		return fmt.Errorf("%w: mode %q", shared.ErrMalformedResult, r.Mode)
	}
	if b := r.BoundingBox; b != nil {
		if !unit(b.X) || !unit(b.Y) || !unit(b.Width) || !unit(b.Height) {
			return fmt.Errorf("%w: bounding box not normalized", shared.ErrMalformedResult)
		}
	}
	for i, p := range r.Landmarks {
		if !unit(p.X) || !unit(p.Y) {
			return fmt.Errorf("%w: landmark %d not normalized", shared.ErrMalformedResult, i)
		}
	}
	return nil
}

func unit(v float64) bool {
	return v >= 0 && v <= 1
}
