// Package domain contains the core entities of dripfeed.
//
// It has no dependencies on infrastructure (serial ports, files, HTTP,
// logging) and holds only values and rules:
//
//   - [Session]: one attempt to stream a file's lines to a serial port
//   - [SessionState]: the transmitter's lifecycle states
//   - [Event]: notifications emitted to observers
//   - [Error]: the error taxonomy shared by every component
package domain
