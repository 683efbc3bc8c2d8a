package frame

import (
	"context"
	"fmt"
	"time"

	"github.com/eleven-am/signstream/internal/mode"
	"github.com/eleven-am/signstream/internal/shared"
)

type Sampler struct {
	now func() time.Time
}

func NewSampler() *Sampler {
	return &Sampler{now: time.Now}
}

// Sample captures one frame tagged with m. A source that is not ready, or
// that fails to produce a frame, yields ErrSourceUnavailable; callers treat
// that as a skip for the current tick.
func (s *Sampler) Sample(ctx context.Context, src Source, m mode.Mode) (*Unit, error) {
	if src == nil || !src.IsReady() {
		return nil, shared.ErrSourceUnavailable
	}

	payload, err := src.CaptureFrame(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrSourceUnavailable, err)
	}
	if len(payload) == 0 {
		return nil, shared.ErrSourceUnavailable
	}

	return &Unit{
		Payload:    payload,
		CapturedAt: s.now(),
		Mode:       m,
	}, nil
}
