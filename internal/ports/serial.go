package ports

import "context"

// Dialer opens serial connections.
type Dialer interface {
	// Open acquires the endpoint at address configured for speed.
	// Failures are classified as domain.ErrConnection.
	Open(ctx context.Context, address string, speed int) (Channel, error)
}

// Channel is an open serial connection owned by one session.
type Channel interface {
	// Write returns only after p has been written and drained to the
	// transport. At most one Write may be outstanding at a time.
	Write(ctx context.Context, p []byte) error

	// Writable reports whether the channel is open and has not failed.
	Writable() bool

	// Errors delivers out-of-band failures such as a hang-up. At most
	// one error is delivered.
	Errors() <-chan error

	// Close releases the endpoint. It is idempotent; only the first call
	// may return an error.
	Close() error
}
