package observer

import (
	"fmt"
	"io"
	"sync"

	"github.com/bft-labs/dripfeed/internal/domain"
	"github.com/bft-labs/dripfeed/internal/ports"
)

// Console prints events as plain text lines for the command line.
type Console struct {
	mu sync.Mutex
	w  io.Writer

	// Echo prints every transmitted line after its progress.
	Echo bool
}

var _ ports.EventSink = (*Console)(nil)

// NewConsole writes to w.
func NewConsole(w io.Writer, echo bool) *Console {
	return &Console{w: w, Echo: echo}
}

// Emit implements ports.EventSink.
func (c *Console) Emit(ev domain.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Kind {
	case domain.EventProgress:
		if ev.Percent != nil {
			fmt.Fprintf(c.w, "[%3d%%] ", *ev.Percent)
		}
	case domain.EventLine:
		if c.Echo {
			fmt.Fprintln(c.w, ev.Line)
		} else {
			fmt.Fprint(c.w, "\r")
		}
	case domain.EventComplete:
		fmt.Fprintln(c.w)
		fmt.Fprintln(c.w, ev.Message)
	case domain.EventError:
		fmt.Fprintln(c.w)
		fmt.Fprintf(c.w, "error: %s\n", ev.Message)
	case domain.EventProbeResult:
		if ev.Success != nil && *ev.Success {
			fmt.Fprintf(c.w, "%s opened at %d baud\n", ev.Address, ev.Speed)
		} else {
			fmt.Fprintf(c.w, "%s failed at %d baud: %s\n", ev.Address, ev.Speed, ev.Message)
		}
	}
}
