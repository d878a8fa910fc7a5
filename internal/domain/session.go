package domain

import "github.com/google/uuid"

// SessionState is a transmitter lifecycle state.
type SessionState int

const (
	StateValidating SessionState = iota
	StateCounting
	StateOpening
	StateStreaming
	StateCompleting
	StateCompleted
	StateFailed
)

// String returns a human-readable representation of the state.
func (s SessionState) String() string {
	switch s {
	case StateValidating:
		return "Validating"
	case StateCounting:
		return "Counting"
	case StateOpening:
		return "Opening"
	case StateStreaming:
		return "Streaming"
	case StateCompleting:
		return "Completing"
	case StateCompleted:
		return "Completed"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s SessionState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Request is the input that starts a session.
type Request struct {
	FilePath string `json:"filepath"`
	Address  string `json:"comPort"`
	Speed    int    `json:"baudRate"`
}

// Session tracks one transmission attempt. It is owned by the transmitter
// for its whole duration.
type Session struct {
	ID         string
	FilePath   string
	Address    string
	Speed      int
	TotalLines int
	LinesSent  int
}

// NewSession creates a session with a fresh identifier.
func NewSession(req Request) *Session {
	return &Session{
		ID:       uuid.NewString(),
		FilePath: req.FilePath,
		Address:  req.Address,
		Speed:    req.Speed,
	}
}

// Percent returns floor(LinesSent / TotalLines * 100). The value is not
// clamped: when the last line has no terminator the counter total is one
// short and the final percentage exceeds 100.
func (s *Session) Percent() int {
	if s.TotalLines <= 0 {
		return 0
	}
	return s.LinesSent * 100 / s.TotalLines
}
