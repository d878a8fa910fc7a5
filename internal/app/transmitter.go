package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/bft-labs/dripfeed/internal/domain"
	"github.com/bft-labs/dripfeed/internal/ports"
	"github.com/bft-labs/dripfeed/pkg/log"
)

// Observer-facing messages.
const (
	msgNoAddress     = "Please select a COM port before starting."
	msgBadSpeed      = "Invalid baud rate provided."
	msgNotAccessible = "G-code file is not accessible."
	msgEmptyFile     = "G-code file is empty."
	msgNotWritable   = "Port is not writable."
	msgCancelled     = "cancelled"
	lineTerminator   = "\n"
)

// TransmitterConfig holds optional transmitter settings.
type TransmitterConfig struct {
	// OpenTimeout bounds the serial open. Zero means no limit.
	OpenTimeout time.Duration

	// WriteTimeout bounds each acknowledged write. Zero means no limit.
	WriteTimeout time.Duration

	// Registry, when set, prevents two sessions from using one address.
	Registry *Registry
}

// Transmitter streams a program file to a serial channel one line at a
// time, waiting for each write to be acknowledged before reading the next
// line.
type Transmitter struct {
	dialer  ports.Dialer
	counter ports.LineCounter
	opener  ports.LineSourceOpener
	logger  ports.Logger
	cfg     TransmitterConfig
}

// NewTransmitter wires a transmitter to its adapters.
func NewTransmitter(dialer ports.Dialer, counter ports.LineCounter, opener ports.LineSourceOpener, logger ports.Logger, cfg TransmitterConfig) *Transmitter {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Transmitter{
		dialer:  dialer,
		counter: counter,
		opener:  opener,
		logger:  logger,
		cfg:     cfg,
	}
}

// Send creates a session for req and runs it.
func (t *Transmitter) Send(ctx context.Context, req domain.Request, sink ports.EventSink) (*domain.Session, error) {
	s := domain.NewSession(req)
	return s, t.Run(ctx, s, sink)
}

var discard = ports.EventSinkFunc(func(domain.Event) {})

// run holds the resources of one session.
type run struct {
	t       *Transmitter
	s       *domain.Session
	sink    ports.EventSink
	lc      *Lifecycle
	logger  ports.Logger
	release func()
	source  ports.LineSource
	channel ports.Channel
}

// Run drives s through the session state machine and reports to sink.
// Exactly one terminal event (completion or error) is emitted. The
// returned error is the one reported to sink.
//
// If sink also implements StateObserver it is told about every state
// change.
func (t *Transmitter) Run(ctx context.Context, s *domain.Session, sink ports.EventSink) error {
	if sink == nil {
		sink = discard
	}
	observer, _ := sink.(StateObserver)
	logger := t.logger.With(
		log.String("session", s.ID),
		log.String("port", s.Address),
	)
	r := &run{
		t:      t,
		s:      s,
		sink:   sink,
		lc:     NewLifecycle(s.ID, logger, observer),
		logger: logger,
	}
	return r.execute(ctx)
}

func (r *run) execute(ctx context.Context) error {
	if err := r.validate(); err != nil {
		return r.fail(err)
	}

	r.advance(domain.StateCounting, "validated")
	total, err := r.t.counter.CountLines(ctx, r.s.FilePath)
	if err != nil {
		return r.fail(r.classify(ctx, err, domain.ErrIO))
	}
	if total == 0 {
		return r.fail(domain.Errorf(domain.ErrInput, msgEmptyFile))
	}
	r.s.TotalLines = total

	r.advance(domain.StateOpening, fmt.Sprintf("%d lines", total))
	if err := r.open(ctx); err != nil {
		return r.fail(err)
	}

	r.advance(domain.StateStreaming, "port open")
	sctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go watchChannel(sctx, r.channel, cancel)

	if err := r.stream(sctx); err != nil {
		return r.fail(err)
	}

	r.advance(domain.StateCompleting, "end of file")
	r.cleanup()
	r.logger.Info("transmission complete", log.Int("lines", r.s.LinesSent))
	r.sink.Emit(domain.CompleteEvent(r.s.ID))
	r.advance(domain.StateCompleted, domain.CompletionMessage)
	return nil
}

func (r *run) validate() error {
	if r.s.Address == "" {
		return domain.Errorf(domain.ErrInput, msgNoAddress)
	}
	if r.s.Speed <= 0 {
		return domain.Errorf(domain.ErrInput, msgBadSpeed)
	}
	if r.s.FilePath == "" {
		return domain.Errorf(domain.ErrInput, msgNotAccessible)
	}
	info, err := os.Stat(r.s.FilePath)
	if err != nil || !info.Mode().IsRegular() {
		return domain.NewError(domain.ErrInput, msgNotAccessible, err)
	}
	if info.Size() == 0 {
		return domain.Errorf(domain.ErrInput, msgEmptyFile)
	}
	return nil
}

func (r *run) open(ctx context.Context) error {
	if reg := r.t.cfg.Registry; reg != nil {
		release, err := reg.Acquire(r.s.Address, r.s.ID)
		if err != nil {
			return err
		}
		r.release = release
	}

	openCtx := ctx
	if r.t.cfg.OpenTimeout > 0 {
		var cancel context.CancelFunc
		openCtx, cancel = context.WithTimeout(ctx, r.t.cfg.OpenTimeout)
		defer cancel()
	}
	ch, err := r.t.dialer.Open(openCtx, r.s.Address, r.s.Speed)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return domain.NewError(domain.ErrConnection,
				fmt.Sprintf("Failed to open port %s: timed out after %s", r.s.Address, r.t.cfg.OpenTimeout), err)
		}
		return r.classify(ctx, err, domain.ErrConnection)
	}
	r.channel = ch
	return nil
}

func (r *run) stream(ctx context.Context) error {
	src, err := r.t.opener.Open(r.s.FilePath)
	if err != nil {
		return r.classify(ctx, err, domain.ErrIO)
	}
	r.source = src

	for {
		if ctx.Err() != nil {
			return r.classify(ctx, ctx.Err(), domain.ErrWrite)
		}

		line, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return r.classify(ctx, err, domain.ErrIO)
		}

		// One line in flight: nothing more is read until the write
		// below is acknowledged.
		src.Pause()

		if !r.channel.Writable() {
			return domain.Errorf(domain.ErrWrite, msgNotWritable)
		}
		if err := r.write(ctx, line); err != nil {
			return err
		}

		r.s.LinesSent++
		r.sink.Emit(domain.ProgressEvent(r.s.ID, r.s.Percent()))
		r.sink.Emit(domain.LineEvent(r.s.ID, line))

		src.Resume()
	}
}

func (r *run) write(ctx context.Context, line string) error {
	wctx := ctx
	if r.t.cfg.WriteTimeout > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(ctx, r.t.cfg.WriteTimeout)
		defer cancel()
	}
	err := r.channel.Write(wctx, []byte(line+lineTerminator))
	if err == nil {
		return nil
	}
	if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return domain.NewError(domain.ErrWrite,
			fmt.Sprintf("Write to port %s not acknowledged within %s", r.s.Address, r.t.cfg.WriteTimeout), err)
	}
	return r.classify(ctx, err, domain.ErrWrite)
}

// classify maps err to a session error. A cancelled session context
// takes precedence: its cause is either an out-of-band channel failure or
// the caller's cancellation.
func (r *run) classify(ctx context.Context, err error, kind error) error {
	if ctx.Err() != nil {
		cause := context.Cause(ctx)
		if domain.KindOf(cause) != nil {
			return cause
		}
		return domain.NewError(domain.ErrCancelled, msgCancelled, cause)
	}
	if domain.KindOf(err) != nil {
		return err
	}
	return domain.NewError(kind, err.Error(), err)
}

func (r *run) advance(next domain.SessionState, reason string) {
	if err := r.lc.TransitionTo(next, reason); err != nil {
		r.logger.Error("state transition rejected",
			log.String("from", r.lc.State().String()),
			log.String("to", next.String()),
			log.Err(err),
		)
	}
}

// fail releases every resource, reports err and moves to Failed.
func (r *run) fail(err error) error {
	r.cleanup()
	r.logger.Warn("transmission failed",
		log.String("state", r.lc.State().String()),
		log.Int("lines_sent", r.s.LinesSent),
		log.Err(err),
	)
	r.sink.Emit(domain.ErrorEvent(r.s.ID, err))
	r.advance(domain.StateFailed, domain.MessageOf(err))
	return err
}

// cleanup closes the line source and the channel and releases the
// address. Close failures are logged only.
func (r *run) cleanup() {
	if r.source != nil {
		if err := r.source.Close(); err != nil {
			r.logger.Warn("close line source failed", log.Err(err))
		}
		r.source = nil
	}
	if r.channel != nil {
		if err := r.channel.Close(); err != nil {
			r.logger.Warn("close port failed", log.Err(err))
		}
		r.channel = nil
	}
	if r.release != nil {
		r.release()
		r.release = nil
	}
}

// watchChannel cancels the session with the channel's out-of-band error.
func watchChannel(ctx context.Context, ch ports.Channel, cancel context.CancelCauseFunc) {
	select {
	case err, ok := <-ch.Errors():
		if !ok {
			return
		}
		if domain.KindOf(err) == nil {
			err = domain.NewError(domain.ErrWrite, err.Error(), err)
		}
		cancel(err)
	case <-ctx.Done():
	}
}
