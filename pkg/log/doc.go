// Package log is the structured logging abstraction used by dripfeed.
//
// Components accept a [Logger] rather than a concrete library so the
// transmitter, prober and server can be driven from tests with [Nop] and
// from the CLI with the zerolog adapter:
//
//	logger := log.NewZerolog(zerolog.New(os.Stderr))
//	session := logger.With(log.String("session", id))
//	session.Info("port opened", log.String("address", "/dev/ttyUSB0"))
//
// Implement [Logger] to route output elsewhere.
package log
