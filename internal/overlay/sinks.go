package overlay

import (
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/eleven-am/signstream/internal/detection"
	"github.com/eleven-am/signstream/internal/mode"
	"github.com/eleven-am/signstream/internal/transport"
)

type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With("component", "overlay")}
}

func (s *LogSink) ResultAccepted(a detection.Accepted) {
	attrs := []any{
		"id", a.ID,
		"sequence", a.Sequence,
		"sign", a.Sign,
		"confidence", a.Confidence,
		"mode", a.Mode,
	}
	if a.BoundingBox != nil {
		attrs = append(attrs, "bbox", a.BoundingBox)
	}
	if len(a.Landmarks) > 0 {
		attrs = append(attrs, "landmarks", len(a.Landmarks))
	}
	s.logger.Info(Label(a), attrs...)
}

func (s *LogSink) ModeReset(m mode.Mode) {
	s.logger.Info(Placeholder(m), "mode", m)
}

func (s *LogSink) Connectivity(st transport.State) {
	s.logger.Debug("connectivity", "state", st.String())
}

func (s *LogSink) Notice(n Notice) {
	switch n.Level {
	case LevelError:
		s.logger.Error(n.Message)
	case LevelWarning:
		s.logger.Warn(n.Message)
	default:
		s.logger.Info(n.Message)
	}
}

type Fanout []Sink

func (f Fanout) ResultAccepted(a detection.Accepted) {
	for _, s := range f {
		s.ResultAccepted(a)
	}
}

func (f Fanout) ModeReset(m mode.Mode) {
	for _, s := range f {
		s.ModeReset(m)
	}
}

func (f Fanout) Connectivity(st transport.State) {
	for _, s := range f {
		s.Connectivity(st)
	}
}

func (f Fanout) Notice(n Notice) {
	for _, s := range f {
		s.Notice(n)
	}
}

// Throttled limits how often notices reach the wrapped sink. A dead
// inference service would otherwise produce one notice per tick.
type Throttled struct {
	Sink
	limiter *rate.Limiter
}

func NewThrottled(sink Sink, perSecond float64, burst int) *Throttled {
	if perSecond <= 0 {
		perSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &Throttled{
		Sink:    sink,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (t *Throttled) Notice(n Notice) {
	if !t.limiter.Allow() {
		return
	}
	t.Sink.Notice(n)
}
