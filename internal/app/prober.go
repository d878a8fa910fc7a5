package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bft-labs/dripfeed/internal/domain"
	"github.com/bft-labs/dripfeed/internal/ports"
	"github.com/bft-labs/dripfeed/pkg/log"
)

const msgUndefinedPort = "COM port is undefined. Please select a valid COM port."

// Prober checks that a serial endpoint can be opened at a given speed.
type Prober struct {
	dialer      ports.Dialer
	logger      ports.Logger
	registry    *Registry
	openTimeout time.Duration
}

// NewProber creates a prober. registry may be nil.
func NewProber(dialer ports.Dialer, logger ports.Logger, registry *Registry, openTimeout time.Duration) *Prober {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Prober{
		dialer:      dialer,
		logger:      logger,
		registry:    registry,
		openTimeout: openTimeout,
	}
}

// Probe opens address at speed and closes it again, then emits exactly one
// result event. It never touches a file.
func (p *Prober) Probe(ctx context.Context, address string, speed int, sink ports.EventSink) error {
	if sink == nil {
		sink = discard
	}
	err := p.probe(ctx, address, speed)
	sink.Emit(domain.ProbeResultEvent(address, speed, err))
	return err
}

func (p *Prober) probe(ctx context.Context, address string, speed int) error {
	if address == "" {
		return domain.Errorf(domain.ErrInput, msgUndefinedPort)
	}
	if speed <= 0 {
		return domain.Errorf(domain.ErrInput, msgBadSpeed)
	}

	if p.registry != nil {
		release, err := p.registry.Acquire(address, "probe")
		if err != nil {
			return err
		}
		defer release()
	}

	openCtx := ctx
	if p.openTimeout > 0 {
		var cancel context.CancelFunc
		openCtx, cancel = context.WithTimeout(ctx, p.openTimeout)
		defer cancel()
	}

	ch, err := p.dialer.Open(openCtx, address, speed)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return domain.NewError(domain.ErrCancelled, msgCancelled, context.Cause(ctx))
		case errors.Is(err, context.DeadlineExceeded):
			return domain.NewError(domain.ErrConnection,
				fmt.Sprintf("Failed to open port %s: timed out after %s", address, p.openTimeout), err)
		case domain.KindOf(err) == nil:
			return domain.NewError(domain.ErrConnection, fmt.Sprintf("Failed to open port %s: %v", address, err), err)
		}
		p.logger.Debug("probe failed", log.String("port", address), log.Int("baud_rate", speed), log.Err(err))
		return err
	}

	if err := ch.Close(); err != nil {
		p.logger.Warn("probe close failed", log.String("port", address), log.Err(err))
	}
	p.logger.Info("probe succeeded", log.String("port", address), log.Int("baud_rate", speed))
	return nil
}
