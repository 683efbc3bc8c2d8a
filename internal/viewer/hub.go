package viewer

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/eleven-am/signstream/internal/detection"
	"github.com/eleven-am/signstream/internal/mode"
	"github.com/eleven-am/signstream/internal/overlay"
	"github.com/eleven-am/signstream/internal/transport"
)

const (
	EventResult       = "result"
	EventReset        = "reset"
	EventConnectivity = "connectivity"
	EventNotice       = "notice"

	defaultMaxSubscribers = 64
	defaultSubscriberBuf  = 32
)

var ErrTooManySubscribers = errors.New("too many viewer subscribers")

type Event struct {
	Type string    `json:"type"`
	Data any       `json:"data"`
	At   time.Time `json:"at"`
}

type ResetData struct {
	Mode        mode.Mode `json:"mode"`
	Placeholder string    `json:"placeholder"`
}

type ConnectivityData struct {
	State transport.State `json:"state"`
}

type subscriber struct {
	send    chan Event
	dropped atomic.Uint64
}

// Hub fans pipeline events out to connected viewers. A viewer that falls
// behind loses events rather than slowing the pipeline.
type Hub struct {
	logger  *slog.Logger
	maxSubs int
	bufSize int

	mu   sync.RWMutex
	subs map[string]*subscriber
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:  logger.With("component", "viewer-hub"),
		maxSubs: defaultMaxSubscribers,
		bufSize: defaultSubscriberBuf,
		subs:    make(map[string]*subscriber),
	}
}

// Subscribe registers a viewer. The returned cancel func must be called
// once the viewer goes away; it closes the event channel.
func (h *Hub) Subscribe() (string, <-chan Event, func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.subs) >= h.maxSubs {
		return "", nil, nil, ErrTooManySubscribers
	}

	id := uuid.NewString()
	sub := &subscriber{send: make(chan Event, h.bufSize)}
	h.subs[id] = sub
	h.logger.Debug("viewer subscribed", "subscriber_id", id)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(sub.send)
			h.logger.Debug("viewer unsubscribed", "subscriber_id", id, "dropped", sub.dropped.Load())
		})
	}
	return id, sub.send, cancel, nil
}

func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		select {
		case sub.send <- ev:
		default:
			sub.dropped.Add(1)
		}
	}
}

func (h *Hub) ResultAccepted(a detection.Accepted) {
	h.broadcast(Event{Type: EventResult, Data: a, At: time.Now()})
}

func (h *Hub) ModeReset(m mode.Mode) {
	h.broadcast(Event{Type: EventReset, Data: ResetData{Mode: m, Placeholder: overlay.Placeholder(m)}, At: time.Now()})
}

func (h *Hub) Connectivity(s transport.State) {
	h.broadcast(Event{Type: EventConnectivity, Data: ConnectivityData{State: s}, At: time.Now()})
}

func (h *Hub) Notice(n overlay.Notice) {
	h.broadcast(Event{Type: EventNotice, Data: n, At: n.At})
}
