//go:build linux

package serial

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/bft-labs/dripfeed/internal/domain"
	"github.com/bft-labs/dripfeed/internal/ports"
	"github.com/bft-labs/dripfeed/pkg/log"
)

// Dialer opens serial ports.
type Dialer struct {
	// Exclusive requests TIOCEXCL so other processes cannot open the
	// device while the port is held.
	Exclusive bool

	Logger log.Logger
}

var _ ports.Dialer = (*Dialer)(nil)

// Open implements ports.Dialer.
func (d *Dialer) Open(ctx context.Context, address string, speed int) (ports.Channel, error) {
	return d.OpenPort(ctx, address, speed)
}

// OpenPort opens address in raw mode at speed. Failures are reported as
// connection errors carrying the reason.
func (d *Dialer) OpenPort(ctx context.Context, address string, speed int) (*Port, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	baud, ok := toUnixBaud[speed]
	if !ok {
		return nil, openError(address, fmt.Errorf("unsupported baud rate %d", speed))
	}

	fd, err := unix.Open(address, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, openError(address, err)
	}
	if err := configure(fd, baud, d.Exclusive); err != nil {
		unix.Close(fd)
		return nil, openError(address, err)
	}

	var pipe [2]int
	if err := unix.Pipe2(pipe[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		unix.Close(fd)
		return nil, openError(address, fmt.Errorf("pipe: %w", err))
	}

	logger := d.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	// The descriptor stays non-blocking so the runtime poller can apply
	// write deadlines.
	p := &Port{
		address: address,
		speed:   speed,
		fd:      fd,
		file:    os.NewFile(uintptr(fd), address),
		pipeR:   pipe[0],
		pipeW:   pipe[1],
		errs:    make(chan error, 1),
		logger:  logger.With(log.String("port", address)),
	}
	p.open.Store(true)

	p.wg.Add(1)
	go p.watch()

	p.logger.Debug("port opened", log.Int("baud_rate", speed))
	return p, nil
}

func configure(fd int, baud uint32, exclusive bool) error {
	if exclusive {
		if err := unix.IoctlSetInt(fd, unix.TIOCEXCL, 0); err != nil {
			return fmt.Errorf("set exclusive: %w", err)
		}
	}

	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("get termios: %w", err)
	}

	// Raw 8N1, no flow control.
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF | unix.INPCK
	t.Oflag &^= unix.OPOST | unix.ONLCR | unix.OCRNL
	t.Lflag &^= unix.ECHO | unix.ECHOE | unix.ECHOK | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.PARODD | unix.CSTOPB | unix.CRTSCTS
	t.Cflag |= unix.CS8 | unix.CLOCAL | unix.CREAD

	t.Cflag &^= unix.CBAUD
	t.Cflag |= baud
	t.Ispeed = baud
	t.Ospeed = baud

	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		return fmt.Errorf("set termios: %w", err)
	}
	if err := unix.IoctlSetInt(fd, unix.TCFLSH, unix.TCIOFLUSH); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

func openError(address string, err error) error {
	return domain.NewError(domain.ErrConnection, fmt.Sprintf("Failed to open port %s: %v", address, err), err)
}
