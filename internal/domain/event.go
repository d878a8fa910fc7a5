package domain

import "time"

// EventKind names an event on the wire.
type EventKind string

const (
	EventProbeResult EventKind = "baud-rate-test-result"
	EventProgress    EventKind = "progress"
	EventLine        EventKind = "gcode-line"
	EventComplete    EventKind = "gcode-complete"
	EventError       EventKind = "error"
)

// CompletionMessage is reported when a file has been streamed entirely.
const CompletionMessage = "G-code file complete"

// Event is an immutable notification for observers. Only the fields
// relevant to Kind are set.
type Event struct {
	Kind    EventKind `json:"event"`
	Session string    `json:"session,omitempty"`
	Time    time.Time `json:"time"`

	Percent *int   `json:"percent,omitempty"`
	Line    string `json:"line,omitempty"`
	Message string `json:"message,omitempty"`

	Success *bool  `json:"success,omitempty"`
	Speed   int    `json:"baudRate,omitempty"`
	Address string `json:"comPort,omitempty"`
}

// Terminal reports whether the event ends its session's stream.
func (e Event) Terminal() bool {
	switch e.Kind {
	case EventComplete, EventError, EventProbeResult:
		return true
	}
	return false
}

// ProgressEvent reports the completion percentage after an acknowledged write.
func ProgressEvent(session string, percent int) Event {
	return Event{Kind: EventProgress, Session: session, Time: time.Now(), Percent: &percent}
}

// LineEvent echoes a transmitted line.
func LineEvent(session, line string) Event {
	return Event{Kind: EventLine, Session: session, Time: time.Now(), Line: line}
}

// CompleteEvent reports natural exhaustion of the file.
func CompleteEvent(session string) Event {
	return Event{Kind: EventComplete, Session: session, Time: time.Now(), Message: CompletionMessage}
}

// ErrorEvent reports a terminal failure.
func ErrorEvent(session string, err error) Event {
	return Event{Kind: EventError, Session: session, Time: time.Now(), Message: MessageOf(err)}
}

// ProbeResultEvent reports the outcome of a connection probe.
func ProbeResultEvent(address string, speed int, err error) Event {
	ok := err == nil
	ev := Event{
		Kind:    EventProbeResult,
		Time:    time.Now(),
		Success: &ok,
		Speed:   speed,
		Address: address,
	}
	if err != nil {
		ev.Message = MessageOf(err)
	}
	return ev
}
