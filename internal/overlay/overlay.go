// Package overlay defines what the pipeline reports to whatever is showing
// results to the user.
package overlay

import (
	"fmt"
	"time"

	"github.com/eleven-am/signstream/internal/detection"
	"github.com/eleven-am/signstream/internal/mode"
	"github.com/eleven-am/signstream/internal/transport"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is a transient advisory, never a state change.
type Notice struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

func NewNotice(level Level, format string, args ...any) Notice {
	return Notice{Level: level, Message: fmt.Sprintf(format, args...), At: time.Now()}
}

// Sink receives pipeline events. Implementations must not block: they are
// called from the pipeline loop and from mode-change callers.
type Sink interface {
	ResultAccepted(a detection.Accepted)
	ModeReset(m mode.Mode)
	Connectivity(s transport.State)
	Notice(n Notice)
}

// Placeholder is what a view shows after a mode switch, before any result.
func Placeholder(m mode.Mode) string {
	return fmt.Sprintf("Waiting for %s detection...", m)
}

func Label(a detection.Accepted) string {
	kind := "Letter"
	if a.Mode == mode.ModeSentence {
		kind = "Sentence"
	}
	return fmt.Sprintf("%s: %s (%.1f%%)", kind, a.Sign, a.Confidence*100)
}

// ConnectivityNotice maps a connectivity change to the advisory shown for it.
func ConnectivityNotice(s transport.State) (Notice, bool) {
	switch s {
	case transport.StateConnected:
		return NewNotice(LevelSuccess, "Connected to inference service"), true
	case transport.StateDisconnected:
		return NewNotice(LevelError, "Lost connection to inference service"), true
	default:
		return Notice{}, false
	}
}

type Nop struct{}

func (Nop) ResultAccepted(detection.Accepted) {}
func (Nop) ModeReset(mode.Mode)               {}
func (Nop) Connectivity(transport.State)      {}
func (Nop) Notice(Notice)                     {}
