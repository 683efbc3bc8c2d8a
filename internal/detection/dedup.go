package detection

import (
	"math"
	"sync"
)

const DefaultConfidenceDelta = 0.05

// epsilon absorbs float error so a delta that is exactly the threshold on
// paper (0.95 - 0.90) counts as a change.
const epsilon = 1e-9

// Deduplicator suppresses results that repeat the last accepted sign with
// only minor confidence jitter.
type Deduplicator struct {
	threshold float64

	mu   sync.Mutex
	last *Accepted
}

func NewDeduplicator(threshold float64) *Deduplicator {
	if threshold <= 0 {
		threshold = DefaultConfidenceDelta
	}
	return &Deduplicator{threshold: threshold}
}

func (d *Deduplicator) Threshold() float64 {
	return d.threshold
}

// Accept reports whether r is materially new relative to last.
func (d *Deduplicator) Accept(r Result, last *Accepted) bool {
	if last == nil {
		return true
	}
	if r.Sign != last.Sign {
		return true
	}
	return math.Abs(r.Confidence-last.Confidence) >= d.threshold-epsilon
}

// Check runs Accept against the remembered last accepted result.
func (d *Deduplicator) Check(r Result) bool {
	d.mu.Lock()
	last := d.last
	d.mu.Unlock()
	return d.Accept(r, last)
}

func (d *Deduplicator) Remember(a Accepted) {
	d.mu.Lock()
	d.last = &a
	d.mu.Unlock()
}

func (d *Deduplicator) Last() *Accepted {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		return nil
	}
	last := *d.last
	return &last
}

func (d *Deduplicator) Reset() {
	d.mu.Lock()
	d.last = nil
	d.mu.Unlock()
}
