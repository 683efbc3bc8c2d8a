package transport

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/eleven-am/signstream/internal/detection"
	"github.com/eleven-am/signstream/internal/frame"
	"github.com/eleven-am/signstream/internal/mode"
	"github.com/eleven-am/signstream/internal/shared"
)

const jpegDataURLPrefix = "data:image/jpeg;base64,"

func NewFrameEnvelope(clientID, replyTo string, unit frame.Unit) FrameEnvelope {
	return FrameEnvelope{
		Type:       MessageTypeFrame,
		ClientID:   clientID,
		ReplyTo:    replyTo,
		Frame:      jpegDataURLPrefix + base64.StdEncoding.EncodeToString(unit.Payload),
		Mode:       unit.Mode.String(),
		CapturedAt: unit.CapturedAt.UnixMilli(),
	}
}

func EncodeFrame(clientID, replyTo string, unit frame.Unit) ([]byte, error) {
	data, err := json.Marshal(NewFrameEnvelope(clientID, replyTo, unit))
	if err != nil {
		return nil, fmt.Errorf("marshal frame: %w", err)
	}
	return data, nil
}

// DecodeFrame parses an outbound frame envelope back into its parts. It is
// what an inference service sees.
func DecodeFrame(data []byte) (*FrameEnvelope, []byte, error) {
	var env FrameEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, nil, fmt.Errorf("unmarshal frame: %w", err)
	}
	if env.Type != MessageTypeFrame {
		return nil, nil, fmt.Errorf("unexpected message type %q", env.Type)
	}

	encoded := env.Frame
	if i := strings.Index(encoded, ";base64,"); strings.HasPrefix(encoded, "data:") && i >= 0 {
		encoded = encoded[i+len(";base64,"):]
	}
	payload, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, nil, fmt.Errorf("decode frame payload: %w", err)
	}
	return &env, payload, nil
}

func NewResultEnvelope(r detection.Result) ResultEnvelope {
	conf := r.Confidence
	return ResultEnvelope{
		Type:        MessageTypeResult,
		Sign:        r.Sign,
		Confidence:  &conf,
		Mode:        r.Mode.String(),
		BoundingBox: r.BoundingBox,
		Landmarks:   r.Landmarks,
	}
}

func EncodeResult(r detection.Result) ([]byte, error) {
	data, err := json.Marshal(NewResultEnvelope(r))
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return data, nil
}

// DecodeResult returns (nil, nil) for messages that are not detection
// results. Anything that claims to be a result but fails validation wraps
// shared.ErrMalformedResult.
func DecodeResult(data []byte, receivedAt time.Time) (*detection.Result, error) {
	var env ResultEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrMalformedResult, err)
	}
	if env.Type != MessageTypeResult {
		return nil, nil
	}
	return resultFromEnvelope(env, receivedAt)
}

func resultFromEnvelope(env ResultEnvelope, receivedAt time.Time) (*detection.Result, error) {
	if env.Confidence == nil {
		return nil, fmt.Errorf("%w: missing confidence", shared.ErrMalformedResult)
	}
	m, err := mode.Parse(env.Mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrMalformedResult, err)
	}

	r := detection.Result{
		Sign:        env.Sign,
		Confidence:  *env.Confidence,
		Mode:        m,
		BoundingBox: env.BoundingBox,
		Landmarks:   env.Landmarks,
		ReceivedAt:  receivedAt,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}
