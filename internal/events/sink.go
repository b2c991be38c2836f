package events

import (
	"log/slog"
	"sync"
)

// NopPusher discards every event. Used when the caller has no interest in
// observing negotiation progress.
type NopPusher struct{}

func (NopPusher) Push(Event)        {}
func (NopPusher) PushMany([]Event)  {}

// LogPusher logs each event at debug level via slog. The default when a
// caller wants visibility without wiring a transport.
type LogPusher struct {
	logger *slog.Logger
}

// NewLogPusher returns a LogPusher writing through logger (slog.Default()
// if nil).
func NewLogPusher(logger *slog.Logger) *LogPusher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPusher{logger: logger}
}

func (p *LogPusher) Push(e Event) {
	p.logger.Debug("negotiation event",
		"event_type", e.EventType,
		"negotiation_id", e.NegotiationID,
		"timestamp", e.Timestamp,
		"data", e.Data,
	)
}

func (p *LogPusher) PushMany(es []Event) {
	for _, e := range es {
		p.Push(e)
	}
}

// ChanPusher publishes each event onto a buffered channel for a test or a
// downstream consumer to drain. Non-blocking: a full channel drops the
// event rather than stalling the coordinator.
type ChanPusher struct {
	C chan Event
}

// NewChanPusher returns a ChanPusher with the given buffer size.
func NewChanPusher(buffer int) *ChanPusher {
	return &ChanPusher{C: make(chan Event, buffer)}
}

func (p *ChanPusher) Push(e Event) {
	select {
	case p.C <- e:
	default:
	}
}

func (p *ChanPusher) PushMany(es []Event) {
	for _, e := range es {
		p.Push(e)
	}
}

// MultiPusher fans a push out to every configured sink in order.
type MultiPusher struct {
	sinks []Pusher
}

// NewMultiPusher returns a MultiPusher wrapping sinks.
func NewMultiPusher(sinks ...Pusher) *MultiPusher {
	return &MultiPusher{sinks: sinks}
}

func (p *MultiPusher) Push(e Event) {
	for _, s := range p.sinks {
		s.Push(e)
	}
}

func (p *MultiPusher) PushMany(es []Event) {
	for _, e := range es {
		p.Push(e)
	}
}

// CallbackPusher invokes fn for every pushed event. Calls are serialized
// with a mutex since the coordinator is the only caller but fn itself may
// not be reentrant-safe.
type CallbackPusher struct {
	mu sync.Mutex
	fn func(Event)
}

// NewCallbackPusher returns a CallbackPusher invoking fn per event.
func NewCallbackPusher(fn func(Event)) *CallbackPusher {
	return &CallbackPusher{fn: fn}
}

func (p *CallbackPusher) Push(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fn(e)
}

func (p *CallbackPusher) PushMany(es []Event) {
	for _, e := range es {
		p.Push(e)
	}
}

// RecordingPusher accumulates every pushed event in order, for assertions
// in tests.
type RecordingPusher struct {
	mu     sync.Mutex
	events []Event
}

func NewRecordingPusher() *RecordingPusher { return &RecordingPusher{} }

func (p *RecordingPusher) Push(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *RecordingPusher) PushMany(es []Event) {
	for _, e := range es {
		p.Push(e)
	}
}

// Events returns a snapshot copy of the recorded events in push order.
func (p *RecordingPusher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}
