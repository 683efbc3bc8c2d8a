package detection

import (
	"sync"

	"github.com/google/uuid"
)

const DefaultMaxResults = 5

// Buffer is the bounded, newest-first log of accepted results. Eviction is
// strictly by insertion order.
type Buffer struct {
	maxResults int
	newID      func() string

	mu    sync.RWMutex
	items []Accepted
	next  uint64
}

func NewBuffer(maxResults int) *Buffer {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &Buffer{
		maxResults: maxResults,
		newID:      uuid.NewString,
		items:      make([]Accepted, 0, maxResults+1),
	}
}

func (b *Buffer) MaxResults() int {
	return b.maxResults
}

func (b *Buffer) Push(r Result) Accepted {
	b.mu.Lock()
	defer b.mu.Unlock()

	a := Accepted{
		ID:       b.newID(),
		Sequence: b.next,
		Result:   r,
	}
	b.next++

	b.items = append(b.items, Accepted{})
	copy(b.items[1:], b.items)
	b.items[0] = a

	if len(b.items) > b.maxResults {
		clear(b.items[b.maxResults:])
		b.items = b.items[:b.maxResults]
	}
	return a
}

// Clear drops every result and restarts sequence numbering at 0.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.items)
	b.items = b.items[:0]
	b.next = 0
}

func (b *Buffer) Snapshot() []Accepted {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Accepted, len(b.items))
	copy(out, b.items)
	return out
}

func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}
