package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eleven-am/signstream/internal/detection"
	"github.com/eleven-am/signstream/internal/frame"
	"github.com/eleven-am/signstream/internal/mode"
	"github.com/eleven-am/signstream/internal/overlay"
	"github.com/eleven-am/signstream/internal/shared"
	"github.com/eleven-am/signstream/internal/transport"
)

const (
	defaultResultQueue  = 64
	defaultReadyTimeout = 2 * time.Second
	readyPollInterval   = 20 * time.Millisecond
)

type Config struct {
	Source  frame.Source
	Cadence frame.Cadence
	Channel transport.Channel
	Modes   *mode.Controller
	Dedup   *detection.Deduplicator
	Buffer  *detection.Buffer
	Sink    overlay.Sink
	// ReadyTimeout bounds how long Start waits for the source to report ready.
	ReadyTimeout time.Duration
	ResultQueue  int
	Logger       *slog.Logger
}

// Coordinator drives sampling and result reconciliation. Ticks and results
// are both consumed on one loop goroutine; mode resets come from SetMode
// callers and are serialized with result handling by mu.
type Coordinator struct {
	source  frame.Source
	sampler *frame.Sampler
	cadence frame.Cadence
	channel transport.Channel
	modes   *mode.Controller
	dedup   *detection.Deduplicator
	buffer  *detection.Buffer
	sink    overlay.Sink
	logger  *slog.Logger

	readyTimeout time.Duration
	results      chan detection.Result
	running      atomic.Bool

	lifecycle sync.Mutex

	mu         sync.Mutex
	state      State
	appliedGen uint64
	cancel     context.CancelFunc
	done       chan struct{}

	ticks        atomic.Uint64
	sent         atomic.Uint64
	sourceSkips  atomic.Uint64
	sendFailures atomic.Uint64
	stale        atomic.Uint64
	duplicates   atomic.Uint64
	accepted     atomic.Uint64
	dropped      atomic.Uint64
}

func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.Source == nil {
		return nil, errors.New("pipeline: source is required")
	}
	if cfg.Channel == nil {
		return nil, errors.New("pipeline: channel is required")
	}
	if cfg.Modes == nil {
		cfg.Modes = mode.NewController(mode.ModeLetter)
	}
	if cfg.Cadence == nil {
		cfg.Cadence = frame.NewIntervalCadence(frame.DefaultInterval)
	}
	if cfg.Dedup == nil {
		cfg.Dedup = detection.NewDeduplicator(detection.DefaultConfidenceDelta)
	}
	if cfg.Buffer == nil {
		cfg.Buffer = detection.NewBuffer(detection.DefaultMaxResults)
	}
	if cfg.Sink == nil {
		cfg.Sink = overlay.Nop{}
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = defaultReadyTimeout
	}
	if cfg.ResultQueue <= 0 {
		cfg.ResultQueue = defaultResultQueue
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &Coordinator{
		source:       cfg.Source,
		sampler:      frame.NewSampler(),
		cadence:      cfg.Cadence,
		channel:      cfg.Channel,
		modes:        cfg.Modes,
		dedup:        cfg.Dedup,
		buffer:       cfg.Buffer,
		sink:         cfg.Sink,
		logger:       cfg.Logger.With("component", "pipeline"),
		readyTimeout: cfg.ReadyTimeout,
		results:      make(chan detection.Result, cfg.ResultQueue),
		appliedGen:   cfg.Modes.Snapshot().Generation,
	}

	c.modes.Subscribe(c.onModeChange)
	c.channel.OnResult(c.enqueueResult)
	c.channel.OnConnectivity(c.onConnectivity)

	return c, nil
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) Mode() mode.Mode {
	return c.modes.Current()
}

// SetMode switches the recognition mode. It reports whether the mode
// actually changed; a change clears the visible results before returning.
func (c *Coordinator) SetMode(m mode.Mode) (bool, error) {
	return c.modes.Set(m)
}

// Start moves Idle or Stopped to Sampling. It is a no-op while Sampling.
func (c *Coordinator) Start(ctx context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.State() == StateSampling {
		return nil
	}

	if acq, ok := c.source.(frame.Acquirer); ok {
		if err := acq.Acquire(ctx); err != nil {
			return fmt.Errorf("%w: %v", shared.ErrSourceNotReady, err)
		}
	}
	if err := c.waitReady(ctx); err != nil {
		c.release()
		return err
	}

	if n := c.drainResults(); n > 0 {
		c.logger.Debug("discarded results from previous run", "count", n)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	ticks := c.cadence.Ticks(loopCtx)
	done := make(chan struct{})

	c.mu.Lock()
	c.state = StateSampling
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()
	c.running.Store(true)

	go c.loop(loopCtx, ticks, done)

	c.logger.Info("pipeline started", "mode", c.modes.Current())
	return nil
}

// Stop moves Sampling to Stopped. The cadence is cancelled and the loop has
// exited by the time Stop returns; results arriving later are ignored.
func (c *Coordinator) Stop() error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	if c.state != StateSampling {
		c.mu.Unlock()
		return nil
	}
	c.state = StateStopped
	cancel := c.cancel
	done := c.done
	c.cancel = nil
	c.done = nil
	c.mu.Unlock()

	c.running.Store(false)
	cancel()
	<-done

	c.release()
	c.logger.Info("pipeline stopped")
	return nil
}

func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := c.syncModeLocked()
	return Snapshot{
		State:      c.state,
		Mode:       snap.Mode,
		Connection: c.channel.State(),
		Results:    c.buffer.Snapshot(),
		TakenAt:    time.Now(),
	}
}

func (c *Coordinator) Stats() Stats {
	return Stats{
		Ticks:        c.ticks.Load(),
		Sent:         c.sent.Load(),
		SourceSkips:  c.sourceSkips.Load(),
		SendFailures: c.sendFailures.Load(),
		Stale:        c.stale.Load(),
		Duplicates:   c.duplicates.Load(),
		Accepted:     c.accepted.Load(),
		Dropped:      c.dropped.Load(),
		Transport:    c.channel.Stats(),
	}
}

func (c *Coordinator) waitReady(ctx context.Context) error {
	if c.source.IsReady() {
		return nil
	}

	timer := time.NewTimer(c.readyTimeout)
	defer timer.Stop()
	poll := time.NewTicker(readyPollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return shared.ErrSourceNotReady
		case <-poll.C:
			if c.source.IsReady() {
				return nil
			}
		}
	}
}

func (c *Coordinator) release() {
	rel, ok := c.source.(frame.Releaser)
	if !ok {
		return
	}
	if err := rel.Release(); err != nil {
		c.logger.Warn("source release failed", "error", err)
	}
}

func (c *Coordinator) drainResults() int {
	n := 0
	for {
		select {
		case <-c.results:
			n++
		default:
			return n
		}
	}
}

func (c *Coordinator) loop(ctx context.Context, ticks <-chan time.Time, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ticks:
			if !ok {
				return
			}
			c.tick(ctx)
		case r := <-c.results:
			c.handleResult(r)
		}
	}
}

func (c *Coordinator) tick(ctx context.Context) {
	defer c.ticks.Add(1)

	unit, err := c.sampler.Sample(ctx, c.source, c.modes.Current())
	if err != nil {
		c.sourceSkips.Add(1)
		c.logger.Debug("skipping tick", "error", err)
		return
	}

	if err := c.channel.Send(ctx, *unit); err != nil {
		c.sendFailures.Add(1)
		c.logger.Warn("frame send failed", "error", err)
		c.sink.Notice(overlay.NewNotice(overlay.LevelWarning, "Could not send frame: %v", err))
		return
	}
	c.sent.Add(1)
}

// enqueueResult runs on the transport's goroutine.
func (c *Coordinator) enqueueResult(r detection.Result) {
	if !c.running.Load() {
		c.dropped.Add(1)
		return
	}
	select {
	case c.results <- r:
	default:
		c.dropped.Add(1)
		c.logger.Debug("result queue full, dropping result", "sign", r.Sign)
	}
}

func (c *Coordinator) handleResult(r detection.Result) {
	if !c.running.Load() {
		c.dropped.Add(1)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	snap := c.syncModeLocked()
	if r.Mode != snap.Mode {
		c.stale.Add(1)
		return
	}

	if !c.dedup.Check(r) {
		c.duplicates.Add(1)
		return
	}

	a := c.buffer.Push(r)
	c.dedup.Remember(a)
	c.sink.ResultAccepted(a)
	c.accepted.Add(1)
}

// syncModeLocked applies a mode reset that the controller has published but
// whose listener has not run yet, so a result can never land in a buffer
// that still holds the previous mode's entries.
func (c *Coordinator) syncModeLocked() mode.Snapshot {
	snap := c.modes.Snapshot()
	if snap.Generation > c.appliedGen {
		c.resetLocked(snap)
	}
	return snap
}

func (c *Coordinator) resetLocked(snap mode.Snapshot) {
	c.dedup.Reset()
	c.buffer.Clear()
	c.appliedGen = snap.Generation
	c.sink.ModeReset(snap.Mode)
	c.logger.Debug("mode reset", "mode", snap.Mode, "generation", snap.Generation)
}

func (c *Coordinator) onModeChange(ch mode.Change) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.syncModeLocked()
}

func (c *Coordinator) onConnectivity(s transport.State) {
	c.sink.Connectivity(s)
	if n, ok := overlay.ConnectivityNotice(s); ok {
		c.sink.Notice(n)
	}
}
