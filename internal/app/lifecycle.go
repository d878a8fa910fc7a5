package app

import (
	"sync"

	"github.com/bft-labs/dripfeed/internal/domain"
	"github.com/bft-labs/dripfeed/internal/ports"
	"github.com/bft-labs/dripfeed/pkg/log"
)

// StateObserver is notified of every session state change.
type StateObserver interface {
	OnStateChange(session string, previous, current domain.SessionState, reason string)
}

// Lifecycle tracks the state machine of one session.
type Lifecycle struct {
	mu       sync.RWMutex
	session  string
	state    domain.SessionState
	logger   ports.Logger
	observer StateObserver
}

// NewLifecycle creates a lifecycle in the Validating state.
func NewLifecycle(session string, logger ports.Logger, observer StateObserver) *Lifecycle {
	return &Lifecycle{
		session:  session,
		state:    domain.StateValidating,
		logger:   logger,
		observer: observer,
	}
}

// State returns the current state.
func (l *Lifecycle) State() domain.SessionState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// TransitionTo moves to next. Sessions only move one step forward along
// Validating, Counting, Opening, Streaming, Completing, Completed, or to
// Failed from any non-terminal state.
func (l *Lifecycle) TransitionTo(next domain.SessionState, reason string) error {
	l.mu.Lock()
	prev := l.state
	if !validTransition(prev, next) {
		l.mu.Unlock()
		return domain.ErrInvalidTransition
	}
	l.state = next
	l.mu.Unlock()

	// Notify outside of lock
	if l.observer != nil {
		l.observer.OnStateChange(l.session, prev, next, reason)
	}

	l.logger.Debug("state transition",
		log.String("from", prev.String()),
		log.String("to", next.String()),
		log.String("reason", reason),
	)
	return nil
}

func validTransition(from, to domain.SessionState) bool {
	if from.Terminal() {
		return false
	}
	if to == domain.StateFailed {
		return true
	}
	return to == from+1
}
