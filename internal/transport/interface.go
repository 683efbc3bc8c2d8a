package transport

import (
	"context"

	"github.com/eleven-am/signstream/internal/detection"
	"github.com/eleven-am/signstream/internal/frame"
)

// Channel is a duplex link to the inference service. Send is fire-and-forget:
// it only enqueues. Results arrive on the OnResult callbacks in whatever
// order the service produces them, possibly for frames of an older mode.
type Channel interface {
	Open(ctx context.Context) error
	Send(ctx context.Context, unit frame.Unit) error
	OnResult(fn func(detection.Result))
	OnConnectivity(fn func(State))
	State() State
	Stats() Stats
	Close() error
}
