//go:build !gocv

package camera

import (
	"context"
	"errors"

	"github.com/eleven-am/signstream/internal/frame"
)

var ErrUnsupported = errors.New("camera support requires building with -tags gocv")

// Source is a placeholder used when the binary is built without OpenCV.
type Source struct {
	frame.PaintNotifier
	cfg Config
}

func New(cfg Config) *Source {
	cfg.normalize()
	return &Source{cfg: cfg}
}

func (s *Source) Acquire(ctx context.Context) error {
	return ErrUnsupported
}

func (s *Source) Release() error {
	return nil
}

func (s *Source) IsReady() bool {
	return false
}

func (s *Source) CaptureFrame(ctx context.Context) ([]byte, error) {
	return nil, ErrUnsupported
}
