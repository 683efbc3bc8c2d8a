//go:build gocv

package camera

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/eleven-am/signstream/internal/frame"
)

type Source struct {
	frame.PaintNotifier

	cfg    Config
	logger *slog.Logger

	mu      sync.RWMutex
	capture *gocv.VideoCapture
	latest  []byte
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(cfg Config) *Source {
	cfg.normalize()
	return &Source{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "camera-source", "device", cfg.Device),
	}
}

func (s *Source) Acquire(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capture != nil {
		return nil
	}

	capture, err := gocv.OpenVideoCapture(deviceID(s.cfg.Device))
	if err != nil {
		return fmt.Errorf("open camera %s: %w", s.cfg.Device, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("camera %s not opened", s.cfg.Device)
	}

	grabCtx, cancel := context.WithCancel(context.Background())
	s.capture = capture
	s.cancel = cancel
	s.done = make(chan struct{})
	s.latest = nil

	go s.grab(grabCtx, capture, s.done)

	s.logger.Info("camera acquired")
	return nil
}

func (s *Source) Release() error {
	s.mu.Lock()
	capture := s.capture
	cancel := s.cancel
	done := s.done
	s.capture = nil
	s.cancel = nil
	s.done = nil
	s.latest = nil
	s.mu.Unlock()

	if capture == nil {
		return nil
	}
	cancel()
	<-done
	s.logger.Info("camera released")
	return capture.Close()
}

func (s *Source) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.capture != nil && len(s.latest) > 0
}

func (s *Source) CaptureFrame(ctx context.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.latest) == 0 {
		return nil, fmt.Errorf("camera %s has no frame", s.cfg.Device)
	}
	out := make([]byte, len(s.latest))
	copy(out, s.latest)
	return out, nil
}

func (s *Source) grab(ctx context.Context, capture *gocv.VideoCapture, done chan struct{}) {
	defer close(done)

	mat := gocv.NewMat()
	defer mat.Close()

	ticker := time.NewTicker(s.cfg.GrabInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if ok := capture.Read(&mat); !ok || mat.Empty() {
			continue
		}

		buf, err := gocv.IMEncode(".jpg", mat)
		if err != nil {
			s.logger.Debug("jpeg encode failed", "error", err)
			continue
		}
		data := make([]byte, buf.Len())
		copy(data, buf.GetBytes())
		buf.Close()

		s.mu.Lock()
		s.latest = data
		s.mu.Unlock()

		s.Notify(time.Now())
	}
}
