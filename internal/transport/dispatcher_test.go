package transport

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/eleven-am/signstream/internal/detection"
	"github.com/eleven-am/signstream/internal/shared"
)

func newTestDispatcher() *dispatcher {
	return &dispatcher{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestDispatcher_Deliver(t *testing.T) {
	d := newTestDispatcher()
	var got []detection.Result
	d.OnResult(func(r detection.Result) { got = append(got, r) })

	d.deliver([]byte(`{"type":"detection_result","sign":"A","confidence":0.9,"mode":"letter"}`), time.Now())
	d.deliver([]byte(`{"type":"detection_result","sign":"","confidence":0.9,"mode":"letter"}`), time.Now())
	d.deliver([]byte(`{"type":"error","message":"no hand"}`), time.Now())

	if len(got) != 1 || got[0].Sign != "A" {
		t.Fatalf("expected one result A, got %+v", got)
	}
	stats := d.Stats()
	if stats.Received != 1 || stats.Malformed != 1 || stats.Ignored != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestDispatcher_SetStateNotifiesOnChange(t *testing.T) {
	d := newTestDispatcher()
	var states []State
	d.OnConnectivity(func(s State) { states = append(states, s) })

	d.setState(StateConnecting)
	d.setState(StateConnecting)
	d.setState(StateConnected)

	if len(states) != 2 || states[0] != StateConnecting || states[1] != StateConnected {
		t.Errorf("unexpected transitions %v", states)
	}
	if d.State() != StateConnected {
		t.Errorf("expected connected, got %s", d.State())
	}
}

func TestDispatcher_FailSend(t *testing.T) {
	d := newTestDispatcher()
	err := d.failSend(errQueueFull)
	if !errors.Is(err, shared.ErrSendFailed) || !errors.Is(err, errQueueFull) {
		t.Errorf("expected wrapped send failure, got %v", err)
	}
	if d.Stats().SendFailures != 1 {
		t.Errorf("expected 1 send failure, got %d", d.Stats().SendFailures)
	}
}

func TestOutbox(t *testing.T) {
	o := newOutbox(2)
	if err := o.push([]byte("a")); err != nil {
		t.Fatal(err)
	}
	if err := o.push([]byte("b")); err != nil {
		t.Fatal(err)
	}
	if err := o.push([]byte("c")); !errors.Is(err, errQueueFull) {
		t.Errorf("expected errQueueFull, got %v", err)
	}
	if n := o.drain(); n != 2 {
		t.Errorf("expected 2 drained, got %d", n)
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateDisconnected: "disconnected",
		StateConnecting:   "connecting",
		StateConnected:    "connected",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("expected %s, got %s", want, s.String())
		}
	}
}
