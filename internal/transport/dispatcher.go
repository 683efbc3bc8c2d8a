package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eleven-am/signstream/internal/detection"
	"github.com/eleven-am/signstream/internal/shared"
)

const defaultQueueSize = 8

// dispatcher carries the callback registry, connectivity state and counters
// shared by every Channel implementation.
type dispatcher struct {
	logger *slog.Logger

	mu             sync.RWMutex
	state          State
	resultHandlers []func(detection.Result)
	stateHandlers  []func(State)

	sent         atomic.Uint64
	sendFailures atomic.Uint64
	received     atomic.Uint64
	malformed    atomic.Uint64
	ignored      atomic.Uint64
}

func (d *dispatcher) OnResult(fn func(detection.Result)) {
	d.mu.Lock()
	d.resultHandlers = append(d.resultHandlers, fn)
	d.mu.Unlock()
}

func (d *dispatcher) OnConnectivity(fn func(State)) {
	d.mu.Lock()
	d.stateHandlers = append(d.stateHandlers, fn)
	d.mu.Unlock()
}

func (d *dispatcher) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

func (d *dispatcher) Stats() Stats {
	return Stats{
		Sent:         d.sent.Load(),
		SendFailures: d.sendFailures.Load(),
		Received:     d.received.Load(),
		Malformed:    d.malformed.Load(),
		Ignored:      d.ignored.Load(),
	}
}

func (d *dispatcher) setState(s State) {
	d.mu.Lock()
	if d.state == s {
		d.mu.Unlock()
		return
	}
	d.state = s
	handlers := append([]func(State){}, d.stateHandlers...)
	d.mu.Unlock()

	d.logger.Info("connectivity changed", "state", s.String())
	for _, fn := range handlers {
		fn(s)
	}
}

func (d *dispatcher) deliver(data []byte, receivedAt time.Time) {
	r, err := DecodeResult(data, receivedAt)
	if err != nil {
		d.malformed.Add(1)
		d.logger.Debug("discarding malformed result", "error", err)
		return
	}
	if r == nil {
		d.ignored.Add(1)
		return
	}
	d.dispatch(*r)
}

func (d *dispatcher) dispatch(r detection.Result) {
	d.received.Add(1)

	d.mu.RLock()
	handlers := d.resultHandlers
	d.mu.RUnlock()

	for _, fn := range handlers {
		fn(r)
	}
}

func (d *dispatcher) failSend(reason error) error {
	d.sendFailures.Add(1)
	return fmt.Errorf("%w: %w", shared.ErrSendFailed, reason)
}

var (
	errOffline   = errors.New("channel offline")
	errQueueFull = errors.New("send queue full")
)

// outbox is the bounded queue between Send and a channel's writer goroutine.
type outbox struct {
	ch chan []byte
}

func newOutbox(size int) outbox {
	if size <= 0 {
		size = defaultQueueSize
	}
	return outbox{ch: make(chan []byte, size)}
}

func (o outbox) push(data []byte) error {
	select {
	case o.ch <- data:
		return nil
	default:
		return errQueueFull
	}
}

// drain discards queued frames so a reconnect does not replay stale ones.
func (o outbox) drain() int {
	n := 0
	for {
		select {
		case <-o.ch:
			n++
		default:
			return n
		}
	}
}
