package observer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/bft-labs/dripfeed/internal/domain"
	"github.com/bft-labs/dripfeed/internal/ports"
)

// Defaults for Config.
const (
	DefaultBuffer        = 256
	DefaultTerminalGrace = 5 * time.Second
)

// Config bounds a Sink.
type Config struct {
	// Buffer is the number of events held for the observer.
	Buffer int

	// TerminalGrace is how long Emit waits to deliver a terminal event
	// into a full buffer before giving up.
	TerminalGrace time.Duration
}

// Sink is a bounded, ordered event buffer for one session. Emit never
// blocks on non-terminal events: when the buffer is full they are dropped
// and counted. A terminal event waits up to TerminalGrace, after which the
// channel returned by Events is closed.
type Sink struct {
	mu      sync.Mutex
	events  chan domain.Event
	grace   time.Duration
	closed  bool
	dropped atomic.Int64
	lost    atomic.Bool
}

var _ ports.EventSink = (*Sink)(nil)

// NewSink creates a sink. Zero config values take defaults.
func NewSink(cfg Config) *Sink {
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultBuffer
	}
	if cfg.TerminalGrace <= 0 {
		cfg.TerminalGrace = DefaultTerminalGrace
	}
	return &Sink{
		events: make(chan domain.Event, cfg.Buffer),
		grace:  cfg.TerminalGrace,
	}
}

// Emit implements ports.EventSink. Events after the terminal one are
// ignored.
func (s *Sink) Emit(ev domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	if !ev.Terminal() {
		select {
		case s.events <- ev:
		default:
			s.dropped.Add(1)
		}
		return
	}

	timer := time.NewTimer(s.grace)
	defer timer.Stop()
	select {
	case s.events <- ev:
	case <-timer.C:
		s.lost.Store(true)
	}
	s.closed = true
	close(s.events)
}

// Events returns the buffered event stream. It is closed after the
// terminal event.
func (s *Sink) Events() <-chan domain.Event { return s.events }

// Dropped returns the number of non-terminal events discarded because the
// buffer was full.
func (s *Sink) Dropped() int64 { return s.dropped.Load() }

// TerminalLost reports whether the terminal event could not be delivered
// within the grace period.
func (s *Sink) TerminalLost() bool { return s.lost.Load() }
