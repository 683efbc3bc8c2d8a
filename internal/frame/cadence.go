package frame

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const DefaultInterval = 100 * time.Millisecond

// Cadence decides when the pipeline samples. The returned channel is closed
// once ctx is done.
type Cadence interface {
	Ticks(ctx context.Context) <-chan time.Time
}

type IntervalCadence struct {
	Interval time.Duration
}

func NewIntervalCadence(interval time.Duration) *IntervalCadence {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &IntervalCadence{Interval: interval}
}

func (c *IntervalCadence) Ticks(ctx context.Context) <-chan time.Time {
	out := make(chan time.Time, 1)

	go func() {
		defer close(out)
		ticker := time.NewTicker(c.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				select {
				case out <- t:
				default:
				}
			}
		}
	}()

	return out
}

// PaintCadence ticks when the painter reports a new frame. Bursts collapse
// into at most one pending tick and ticks are never closer than MinInterval.
// A paint that arrives too early arms one trailing tick for the end of the
// interval, so the last frame of a burst is still sampled.
type PaintCadence struct {
	Painter     Painter
	MinInterval time.Duration
}

func NewPaintCadence(painter Painter, minInterval time.Duration) *PaintCadence {
	return &PaintCadence{Painter: painter, MinInterval: minInterval}
}

// NewCadence builds the cadence named by kind ("interval" or "paint").
func NewCadence(kind string, interval time.Duration, src Source) (Cadence, error) {
	switch kind {
	case "", "interval":
		return NewIntervalCadence(interval), nil
	case "paint":
		painter, ok := src.(Painter)
		if !ok {
			return nil, fmt.Errorf("source %T does not report paints", src)
		}
		return NewPaintCadence(painter, interval), nil
	default:
		return nil, fmt.Errorf("unknown cadence %q", kind)
	}
}

func (c *PaintCadence) Ticks(ctx context.Context) <-chan time.Time {
	out := make(chan time.Time, 1)

	var (
		mu       sync.Mutex
		last     time.Time
		pending  time.Time
		trailing *time.Timer
		closed   bool
	)

	emit := func(at time.Time) bool {
		select {
		case out <- at:
			return true
		default:
			return false
		}
	}

	cancel := c.Painter.OnPaint(func(at time.Time) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		if last.IsZero() || at.Sub(last) >= c.MinInterval {
			if emit(at) {
				last = at
				if trailing != nil {
					trailing.Stop()
					trailing = nil
				}
			}
			return
		}

		pending = at
		if trailing != nil {
			return
		}
		var timer *time.Timer
		timer = time.AfterFunc(c.MinInterval-at.Sub(last), func() {
			mu.Lock()
			defer mu.Unlock()
			if closed || trailing != timer {
				return
			}
			trailing = nil
			if emit(pending) {
				last = pending
			}
		})
		trailing = timer
	})

	go func() {
		<-ctx.Done()
		cancel()
		mu.Lock()
		closed = true
		if trailing != nil {
			trailing.Stop()
		}
		close(out)
		mu.Unlock()
	}()

	return out
}
