package frame

import (
	"context"
	"sync"
	"time"

	"github.com/eleven-am/signstream/internal/mode"
)

// Unit is one captured, mode-tagged frame. It is created per tick and
// discarded after send.
type Unit struct {
	Payload    []byte
	CapturedAt time.Time
	Mode       mode.Mode
}

// Source produces encoded frames. Implementations must be safe to call from
// the sampling goroutine while their own capture goroutine runs.
type Source interface {
	IsReady() bool
	CaptureFrame(ctx context.Context) ([]byte, error)
}

// Acquirer is implemented by sources that need to open a device or watcher
// before they can report ready.
type Acquirer interface {
	Acquire(ctx context.Context) error
}

type Releaser interface {
	Release() error
}

// Painter is implemented by sources that can signal when a new frame has
// been produced. PaintCadence turns those signals into sampling ticks.
type Painter interface {
	OnPaint(fn func(time.Time)) (cancel func())
}

// PaintNotifier is an embeddable Painter.
type PaintNotifier struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[int]func(time.Time)
}

func (p *PaintNotifier) OnPaint(fn func(time.Time)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listeners == nil {
		p.listeners = make(map[int]func(time.Time))
	}
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

func (p *PaintNotifier) Notify(at time.Time) {
	p.mu.RLock()
	fns := make([]func(time.Time), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.RUnlock()

	for _, fn := range fns {
		fn(at)
	}
}
