package shared

import "time"

type BackoffConfig struct {
	Initial     time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// Normalize fills zero fields with defaults. MaxAttempts < 0 means retry forever.
func (b BackoffConfig) Normalize() BackoffConfig {
	if b.Initial <= 0 {
		b.Initial = 100 * time.Millisecond
	}
	if b.MaxDelay <= 0 {
		b.MaxDelay = 5 * time.Second
	}
	if b.MaxAttempts == 0 {
		b.MaxAttempts = -1
	}
	return b
}

// Next doubles d, capped at MaxDelay.
func (b BackoffConfig) Next(d time.Duration) time.Duration {
	d *= 2
	if d > b.MaxDelay {
		return b.MaxDelay
	}
	return d
}
