// Package ports defines the interfaces that connect the application layer
// (internal/app) to infrastructure adapters (internal/adapters,
// internal/observer).
//
//   - [Dialer] and [Channel]: the serial connection
//   - [LineCounter]: the counting pass over a program file
//   - [LineSourceOpener] and [LineSource]: the streaming pass
//   - [EventSink]: where session events go
//   - [Logger]: structured logging
//
// The application layer depends only on these interfaces, so the
// transmitter is exercised in tests with in-memory fakes.
package ports
