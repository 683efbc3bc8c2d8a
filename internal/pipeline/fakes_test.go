package pipeline

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eleven-am/signstream/internal/detection"
	"github.com/eleven-am/signstream/internal/frame"
	"github.com/eleven-am/signstream/internal/mode"
	"github.com/eleven-am/signstream/internal/overlay"
	"github.com/eleven-am/signstream/internal/transport"
)

type fakeSource struct {
	ready    atomic.Bool
	acquired atomic.Int32
	released atomic.Int32
}

func (f *fakeSource) IsReady() bool { return f.ready.Load() }

func (f *fakeSource) CaptureFrame(ctx context.Context) ([]byte, error) {
	return []byte("jpeg"), nil
}

func (f *fakeSource) Acquire(ctx context.Context) error {
	f.acquired.Add(1)
	return nil
}

func (f *fakeSource) Release() error {
	f.released.Add(1)
	return nil
}

type manualCadence struct {
	ch chan time.Time
}

func newManualCadence() *manualCadence {
	return &manualCadence{ch: make(chan time.Time)}
}

func (m *manualCadence) Ticks(ctx context.Context) <-chan time.Time {
	out := make(chan time.Time)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-m.ch:
				select {
				case out <- t:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

type fakeChannel struct {
	mu             sync.Mutex
	sent           []frame.Unit
	sendErr        error
	state          transport.State
	onResult       []func(detection.Result)
	onConnectivity []func(transport.State)
}

func (f *fakeChannel) Open(ctx context.Context) error { return nil }

func (f *fakeChannel) Send(ctx context.Context, unit frame.Unit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, unit)
	return nil
}

func (f *fakeChannel) OnResult(fn func(detection.Result)) {
	f.mu.Lock()
	f.onResult = append(f.onResult, fn)
	f.mu.Unlock()
}

func (f *fakeChannel) OnConnectivity(fn func(transport.State)) {
	f.mu.Lock()
	f.onConnectivity = append(f.onConnectivity, fn)
	f.mu.Unlock()
}

func (f *fakeChannel) State() transport.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeChannel) Stats() transport.Stats { return transport.Stats{} }

func (f *fakeChannel) Close() error { return nil }

func (f *fakeChannel) emit(r detection.Result) {
	f.mu.Lock()
	handlers := f.onResult
	f.mu.Unlock()
	for _, fn := range handlers {
		fn(r)
	}
}

func (f *fakeChannel) setState(s transport.State) {
	f.mu.Lock()
	f.state = s
	handlers := f.onConnectivity
	f.mu.Unlock()
	for _, fn := range handlers {
		fn(s)
	}
}

func (f *fakeChannel) sentUnits() []frame.Unit {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]frame.Unit(nil), f.sent...)
}

func (f *fakeChannel) setSendErr(err error) {
	f.mu.Lock()
	f.sendErr = err
	f.mu.Unlock()
}

type recordingSink struct {
	mu       sync.Mutex
	accepted []detection.Accepted
	resets   []mode.Mode
	states   []transport.State
	notices  []overlay.Notice
}

func (r *recordingSink) ResultAccepted(a detection.Accepted) {
	r.mu.Lock()
	r.accepted = append(r.accepted, a)
	r.mu.Unlock()
}

func (r *recordingSink) ModeReset(m mode.Mode) {
	r.mu.Lock()
	r.resets = append(r.resets, m)
	r.mu.Unlock()
}

func (r *recordingSink) Connectivity(s transport.State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *recordingSink) Notice(n overlay.Notice) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
}

func (r *recordingSink) counts() (accepted, resets, notices int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.accepted), len(r.resets), len(r.notices)
}

type harness struct {
	coord   *Coordinator
	source  *fakeSource
	cadence *manualCadence
	channel *fakeChannel
	modes   *mode.Controller
	sink    *recordingSink
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithModes(t, mode.NewController(mode.ModeLetter))
}

// newHarnessWithModes lets a test subscribe to modes before the coordinator
// does, so its listener runs first.
func newHarnessWithModes(t *testing.T, modes *mode.Controller) *harness {
	t.Helper()
	h := &harness{
		source:  &fakeSource{},
		cadence: newManualCadence(),
		channel: &fakeChannel{},
		modes:   modes,
		sink:    &recordingSink{},
	}
	h.source.ready.Store(true)

	coord, err := NewCoordinator(Config{
		Source:       h.source,
		Cadence:      h.cadence,
		Channel:      h.channel,
		Modes:        h.modes,
		Dedup:        detection.NewDeduplicator(0.05),
		Buffer:       detection.NewBuffer(5),
		Sink:         h.sink,
		ReadyTimeout: 50 * time.Millisecond,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewCoordinator failed: %v", err)
	}
	h.coord = coord
	t.Cleanup(func() { coord.Stop() })
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.coord.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
}

func (h *harness) tick(t *testing.T) {
	t.Helper()
	before := h.coord.Stats().Ticks
	select {
	case h.cadence.ch <- time.Now():
	case <-time.After(time.Second):
		t.Fatal("cadence tick not consumed")
	}
	waitFor(t, func() bool { return h.coord.Stats().Ticks > before })
}

// result emits r and waits until the loop has processed it.
func (h *harness) result(t *testing.T, r detection.Result) {
	t.Helper()
	before := processed(h.coord.Stats())
	h.channel.emit(r)
	waitFor(t, func() bool { return processed(h.coord.Stats()) > before })
}

func processed(s Stats) uint64 {
	return s.Accepted + s.Duplicates + s.Stale + s.Dropped
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func res(sign string, conf float64, m mode.Mode) detection.Result {
	return detection.Result{Sign: sign, Confidence: conf, Mode: m, ReceivedAt: time.Now()}
}
