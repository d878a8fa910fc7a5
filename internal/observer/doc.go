// Package observer delivers session events to whoever is watching.
//
// A [Sink] decouples the transmitter from a possibly slow observer with a
// bounded buffer. Renderers drain it to an HTTP response as NDJSON or to a
// terminal.
package observer
