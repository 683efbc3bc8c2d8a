package transport

import (
	"github.com/eleven-am/signstream/internal/detection"
)

type MessageType string

const (
	MessageTypeFrame  MessageType = "detection_frame"
	MessageTypeResult MessageType = "detection_result"
	MessageTypeError  MessageType = "error"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// FrameEnvelope is the outbound wire form of a frame.Unit.
type FrameEnvelope struct {
	Type       MessageType `json:"type"`
	ClientID   string      `json:"client_id,omitempty"`
	ReplyTo    string      `json:"reply_to,omitempty"`
	Frame      string      `json:"frame"`
	Mode       string      `json:"mode"`
	CapturedAt int64       `json:"captured_at"`
}

// ResultEnvelope is the inbound wire form of a detection.Result.
type ResultEnvelope struct {
	Type        MessageType            `json:"type"`
	Sign        string                 `json:"sign,omitempty"`
	Confidence  *float64               `json:"confidence,omitempty"`
	Mode        string                 `json:"mode,omitempty"`
	BoundingBox *detection.BoundingBox `json:"boundingBox,omitempty"`
	Landmarks   []detection.Point      `json:"landmarks,omitempty"`
	Message     string                 `json:"message,omitempty"`
}

type Stats struct {
	Sent         uint64 `json:"sent"`
	SendFailures uint64 `json:"send_failures"`
	Received     uint64 `json:"received"`
	Malformed    uint64 `json:"malformed"`
	Ignored      uint64 `json:"ignored"`
}
