package ports

import (
	"github.com/bft-labs/dripfeed/internal/domain"
	"github.com/bft-labs/dripfeed/pkg/log"
)

// EventSink receives session events. Emit must not block the caller for
// longer than the sink's own delivery bound.
type EventSink interface {
	Emit(ev domain.Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ev domain.Event)

// Emit calls f(ev).
func (f EventSinkFunc) Emit(ev domain.Event) { f(ev) }

// Logger is the structured logger used by the application layer.
type Logger = log.Logger

// Field is a structured log field.
type Field = log.Field
