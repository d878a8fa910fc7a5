package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/bft-labs/dripfeed/internal/adapters/fs"
	"github.com/bft-labs/dripfeed/internal/domain"
	"github.com/bft-labs/dripfeed/internal/ports"
	"github.com/bft-labs/dripfeed/pkg/log"
)

// fakeChannel records writes and can fail on a chosen write.
type fakeChannel struct {
	mu       sync.Mutex
	writes   []string
	failOn   int // 1-based write index that fails; 0 never
	failErr  error
	writable bool
	closed   int
	closeErr error
	errs     chan error

	// inFlight is set while Write runs; overlapping writes are recorded.
	inFlight bool
	overlap  bool

	// blockOn is the 1-based write index that waits until ctx ends.
	blockOn int
	// onWrite runs inside Write before it returns.
	onWrite func(n int)
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{writable: true, errs: make(chan error, 1)}
}

func (c *fakeChannel) Write(ctx context.Context, p []byte) error {
	c.mu.Lock()
	if c.inFlight {
		c.overlap = true
	}
	c.inFlight = true
	n := len(c.writes) + 1
	block := c.blockOn == n
	hook := c.onWrite
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inFlight = false
		c.mu.Unlock()
	}()

	if hook != nil {
		hook(n)
	}
	if block {
		<-ctx.Done()
		return ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failOn == n {
		return c.failErr
	}
	c.writes = append(c.writes, string(p))
	return nil
}

func (c *fakeChannel) Writable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writable && c.closed == 0
}

func (c *fakeChannel) Errors() <-chan error { return c.errs }

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	if c.closed == 1 {
		return c.closeErr
	}
	return nil
}

func (c *fakeChannel) Writes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string{}, c.writes...)
}

func (c *fakeChannel) Closed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fakeDialer hands out one channel, or fails.
type fakeDialer struct {
	mu      sync.Mutex
	channel *fakeChannel
	err     error
	block   bool
	opened  int
	address string
	speed   int
}

func (d *fakeDialer) Open(ctx context.Context, address string, speed int) (ports.Channel, error) {
	d.mu.Lock()
	d.opened++
	d.address = address
	d.speed = speed
	d.mu.Unlock()

	if d.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if d.err != nil {
		return nil, d.err
	}
	return d.channel, nil
}

func (d *fakeDialer) Opened() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened
}

// eventRecorder collects events in order.
type eventRecorder struct {
	mu     sync.Mutex
	events []domain.Event
	// onEmit runs for every event after it is recorded.
	onEmit func(ev domain.Event)
}

func (r *eventRecorder) Emit(ev domain.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	hook := r.onEmit
	r.mu.Unlock()
	if hook != nil {
		hook(ev)
	}
}

func (r *eventRecorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event{}, r.events...)
}

func (r *eventRecorder) Kinds() []domain.EventKind {
	var kinds []domain.EventKind
	for _, ev := range r.Events() {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

func (r *eventRecorder) Count(kind domain.EventKind) int {
	n := 0
	for _, ev := range r.Events() {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// countingCounter wraps the real counter and records calls.
type countingCounter struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingCounter) CountLines(ctx context.Context, path string) (int, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	return fs.NewLineCounter().CountLines(ctx, path)
}

// trackingOpener wraps the real line source and records pause state at
// each Next call.
type trackingOpener struct {
	mu      sync.Mutex
	sources []*trackingSource
	err     error
}

func (o *trackingOpener) Open(path string) (ports.LineSource, error) {
	if o.err != nil {
		return nil, o.err
	}
	r, err := fs.OpenLineReader(path)
	if err != nil {
		return nil, err
	}
	src := &trackingSource{LineReader: r}
	o.mu.Lock()
	o.sources = append(o.sources, src)
	o.mu.Unlock()
	return src, nil
}

func (o *trackingOpener) Source() *trackingSource {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.sources) == 0 {
		return nil
	}
	return o.sources[0]
}

type trackingSource struct {
	*fs.LineReader
	mu     sync.Mutex
	closed bool
}

func (s *trackingSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.LineReader.Close()
}

func (s *trackingSource) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func writeProgram(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "program.gcode")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

type harness struct {
	dialer  *fakeDialer
	channel *fakeChannel
	counter *countingCounter
	opener  *trackingOpener
	sink    *eventRecorder
	tx      *Transmitter
}

func newHarness(cfg TransmitterConfig) *harness {
	ch := newFakeChannel()
	h := &harness{
		dialer:  &fakeDialer{channel: ch},
		channel: ch,
		counter: &countingCounter{},
		opener:  &trackingOpener{},
		sink:    &eventRecorder{},
	}
	h.tx = NewTransmitter(h.dialer, h.counter, h.opener, log.NewNop(), cfg)
	return h
}

func (h *harness) run(ctx context.Context, req domain.Request) (*domain.Session, error) {
	return h.tx.Send(ctx, req, h.sink)
}

var errTransport = errors.New("EIO: device write failed")
