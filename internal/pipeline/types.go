package pipeline

import (
	"time"

	"github.com/eleven-am/signstream/internal/detection"
	"github.com/eleven-am/signstream/internal/mode"
	"github.com/eleven-am/signstream/internal/transport"
)

type State int

const (
	StateIdle State = iota
	StateSampling
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateSampling:
		return "sampling"
	case StateStopped:
		return "stopped"
	default:
		return "idle"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type Stats struct {
	Ticks        uint64          `json:"ticks"`
	Sent         uint64          `json:"sent"`
	SourceSkips  uint64          `json:"source_skips"`
	SendFailures uint64          `json:"send_failures"`
	Stale        uint64          `json:"stale"`
	Duplicates   uint64          `json:"duplicates"`
	Accepted     uint64          `json:"accepted"`
	Dropped      uint64          `json:"dropped"`
	Transport    transport.Stats `json:"transport"`
}

// Snapshot is a consistent view of the visible results and the mode they
// belong to.
type Snapshot struct {
	State      State                `json:"state"`
	Mode       mode.Mode            `json:"mode"`
	Connection transport.State      `json:"connection"`
	Results    []detection.Accepted `json:"results"`
	TakenAt    time.Time            `json:"taken_at"`
}
