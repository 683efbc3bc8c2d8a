package mode

import (
	"fmt"
	"sync"

	"github.com/eleven-am/signstream/internal/shared"
)

// Change describes one mode transition. Generation increases by one on every
// real change, so consumers can detect a switch they have not applied yet.
type Change struct {
	From       Mode
	To         Mode
	Generation uint64
}

type Listener func(Change)

// Snapshot is the controller state as of one read.
type Snapshot struct {
	Mode       Mode
	Generation uint64
}

type Controller struct {
	mu         sync.RWMutex
	current    Mode
	generation uint64
	listeners  []Listener
}

func NewController(initial Mode) *Controller {
	if !initial.Valid() {
		initial = ModeLetter
	}
	return &Controller{current: initial}
}

func (c *Controller) Current() Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{Mode: c.current, Generation: c.generation}
}

// Subscribe registers fn for every future change. Listeners run on the
// goroutine that called Set, after the controller lock is released.
func (c *Controller) Subscribe(fn Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Set switches to m and notifies listeners. Setting the current mode is a
// no-op and returns false.
func (c *Controller) Set(m Mode) (bool, error) {
	if !m.Valid() {
		return false, fmt.Errorf("%w: %q", shared.ErrInvalidMode, m)
	}

	c.mu.Lock()
	if c.current == m {
		c.mu.Unlock()
		return false, nil
	}
	change := Change{From: c.current, To: m, Generation: c.generation + 1}
	c.current = m
	c.generation = change.Generation
	listeners := make([]Listener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(change)
	}
	return true, nil
}
