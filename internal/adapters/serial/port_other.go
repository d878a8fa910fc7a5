//go:build !linux

package serial

import (
	"context"
	"errors"
	"fmt"

	"github.com/bft-labs/dripfeed/internal/domain"
	"github.com/bft-labs/dripfeed/internal/ports"
	"github.com/bft-labs/dripfeed/pkg/log"
)

// ErrUnsupported is returned on platforms without a serial backend.
var ErrUnsupported = errors.New("serial ports are only supported on linux")

// Dialer opens serial ports.
type Dialer struct {
	Exclusive bool
	Logger    log.Logger
}

// Open always fails on this platform.
func (d *Dialer) Open(ctx context.Context, address string, speed int) (ports.Channel, error) {
	return nil, domain.NewError(domain.ErrConnection, fmt.Sprintf("Failed to open port %s: %v", address, ErrUnsupported), ErrUnsupported)
}

// SupportedSpeed reports false for every speed on this platform.
func SupportedSpeed(speed int) bool { return false }
