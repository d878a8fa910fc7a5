//go:build linux

package serial

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bft-labs/dripfeed/internal/domain"
	"github.com/bft-labs/dripfeed/pkg/log"
)

// ErrPortClosed is the cause of writes attempted after Close.
var ErrPortClosed = errors.New("port closed")

// Drain polling bounds.
const (
	minDrainWait = time.Millisecond
	maxDrainWait = 50 * time.Millisecond
)

// Port is an open serial connection. Write and Close may be called from
// different goroutines; only one Write may be outstanding at a time.
type Port struct {
	address string
	speed   int
	fd      int
	file    *os.File

	pipeR int
	pipeW int

	open      atomic.Bool
	failed    atomic.Bool
	errs      chan error
	wg        sync.WaitGroup
	closeOnce sync.Once

	logger log.Logger
}

// Address returns the device path.
func (p *Port) Address() string { return p.address }

// Speed returns the configured baud rate.
func (p *Port) Speed() int { return p.speed }

// Writable reports whether the port is open and has not reported a
// connection failure.
func (p *Port) Writable() bool {
	return p.open.Load() && !p.failed.Load()
}

// Errors delivers at most one out-of-band failure such as a hang-up.
func (p *Port) Errors() <-chan error { return p.errs }

// Write writes b and waits until the kernel output queue has drained.
// A context deadline or cancellation aborts the write.
func (p *Port) Write(ctx context.Context, b []byte) error {
	if !p.open.Load() {
		return domain.NewError(domain.ErrWrite, "Port is not writable.", ErrPortClosed)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if dl, ok := ctx.Deadline(); ok {
		p.file.SetWriteDeadline(dl)
	} else {
		p.file.SetWriteDeadline(time.Time{})
	}
	stop := context.AfterFunc(ctx, func() {
		p.file.SetWriteDeadline(time.Now())
	})
	_, err := p.file.Write(b)
	stop()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(err, os.ErrClosed) {
			err = ErrPortClosed
		}
		return domain.NewError(domain.ErrWrite, fmt.Sprintf("Failed to write to port %s: %v", p.address, err), err)
	}

	if err := p.drain(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return domain.NewError(domain.ErrWrite, fmt.Sprintf("Failed to drain port %s: %v", p.address, err), err)
	}
	return nil
}

// drain waits for the output queue to empty, polling TIOCOUTQ so the wait
// stays cancellable.
func (p *Port) drain(ctx context.Context) error {
	for {
		if !p.open.Load() {
			return ErrPortClosed
		}
		var queued int
		var ioctlErr error
		rc, err := p.file.SyscallConn()
		if err != nil {
			return err
		}
		if err := rc.Control(func(fd uintptr) {
			queued, ioctlErr = unix.IoctlGetInt(int(fd), unix.TIOCOUTQ)
		}); err != nil {
			return err
		}
		if ioctlErr != nil {
			if errors.Is(ioctlErr, unix.ENOTTY) || errors.Is(ioctlErr, unix.EINVAL) {
				return nil
			}
			return ioctlErr
		}
		if queued <= 0 {
			return nil
		}

		// Ten bit times per byte at 8N1.
		wait := time.Duration(queued) * 10 * time.Second / time.Duration(p.speed)
		wait = min(max(wait, minDrainWait), maxDrainWait)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// watch polls the device for hang-up and error conditions until the port
// is closed.
func (p *Port) watch() {
	defer p.wg.Done()

	fds := []unix.PollFd{
		{Fd: int32(p.fd)},
		{Fd: int32(p.pipeR), Events: unix.POLLIN},
	}
	for {
		fds[0].Revents = 0
		fds[1].Revents = 0
		_, err := unix.Poll(fds, -1)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			p.report(fmt.Errorf("poll: %w", err))
			return
		}
		if fds[1].Revents != 0 {
			return
		}
		ev := fds[0].Revents
		switch {
		case ev&unix.POLLNVAL != 0:
			p.report(errors.New("device descriptor invalid"))
			return
		case ev&unix.POLLHUP != 0:
			p.report(errors.New("device disconnected"))
			return
		case ev&unix.POLLERR != 0:
			p.report(errors.New("device error"))
			return
		}
	}
}

func (p *Port) report(err error) {
	if !p.open.Load() {
		return
	}
	p.failed.Store(true)
	p.logger.Warn("port failure", log.Err(err))
	p.errs <- domain.NewError(domain.ErrWrite, fmt.Sprintf("Port %s failed: %v", p.address, err), err)
}

// Close stops the watcher and closes the device. The first call returns
// the close result; later calls return nil.
func (p *Port) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.open.Store(false)
		unix.Write(p.pipeW, []byte{1})
		p.wg.Wait()

		err = p.file.Close()
		unix.Close(p.pipeR)
		unix.Close(p.pipeW)
		p.logger.Debug("port closed")
	})
	return err
}
