package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bft-labs/dripfeed/internal/domain"
	"github.com/bft-labs/dripfeed/internal/ports"
	"github.com/bft-labs/dripfeed/pkg/log"
)

// ShutdownTimeout is the default time Shutdown waits for sessions.
const ShutdownTimeout = 30 * time.Second

// DefaultHistory is the number of finished sessions kept for listing.
const DefaultHistory = 100

// SessionInfo is a snapshot of a managed session.
type SessionInfo struct {
	ID       string    `json:"id"`
	FilePath string    `json:"filepath"`
	Address  string    `json:"comPort"`
	Speed    int       `json:"baudRate"`
	State    string    `json:"state"`
	Percent  int       `json:"percent"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Error    string    `json:"error,omitempty"`
}

type managed struct {
	info   SessionInfo
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager runs transmitter sessions in the background. Sessions run on
// the manager's context, not the caller's, so they outlive the request
// that started them.
type Manager struct {
	mu       sync.RWMutex
	tx       *Transmitter
	ctx      context.Context
	cancel   context.CancelFunc
	sessions map[string]*managed
	order    []string
	history  int
	wg       sync.WaitGroup
	logger   ports.Logger
}

// NewManager creates a manager whose sessions are cancelled when ctx ends.
func NewManager(ctx context.Context, tx *Transmitter, logger ports.Logger) *Manager {
	if logger == nil {
		logger = log.NewNop()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Manager{
		tx:       tx,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*managed),
		history:  DefaultHistory,
		logger:   logger,
	}
}

// Start launches a session for req. Events go to sink. The returned
// channel is closed when the session has finished.
func (m *Manager) Start(req domain.Request, sink ports.EventSink) (SessionInfo, <-chan struct{}) {
	s := domain.NewSession(req)
	ctx, cancel := context.WithCancel(m.ctx)
	entry := &managed{
		info: SessionInfo{
			ID:       s.ID,
			FilePath: s.FilePath,
			Address:  s.Address,
			Speed:    s.Speed,
			State:    domain.StateValidating.String(),
			Started:  time.Now(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}

	m.mu.Lock()
	m.sessions[s.ID] = entry
	m.order = append(m.order, s.ID)
	info := entry.info
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(entry.done)
		defer cancel()

		err := m.tx.Run(ctx, s, &trackingSink{m: m, id: s.ID, next: sink})
		m.finish(s.ID, err)
	}()

	m.logger.Info("session started",
		log.String("session", s.ID),
		log.String("port", s.Address),
		log.Int("baud_rate", s.Speed),
	)
	return info, entry.done
}

func (m *Manager) finish(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.sessions[id]
	if !ok {
		return
	}
	entry.info.Finished = time.Now()
	if err != nil {
		entry.info.Error = domain.MessageOf(err)
	}
	m.pruneLocked()
}

// pruneLocked drops the oldest finished sessions beyond the history limit.
func (m *Manager) pruneLocked() {
	finished := 0
	for _, id := range m.order {
		if !m.sessions[id].info.Finished.IsZero() {
			finished++
		}
	}
	kept := m.order[:0]
	for _, id := range m.order {
		if finished > m.history && !m.sessions[id].info.Finished.IsZero() {
			delete(m.sessions, id)
			finished--
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
}

// Get returns the snapshot of session id.
func (m *Manager) Get(id string) (SessionInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.sessions[id]
	if !ok {
		return SessionInfo{}, domain.ErrSessionNotFound
	}
	return entry.info, nil
}

// List returns all known sessions, newest first.
func (m *Manager) List() []SessionInfo {
	m.mu.RLock()
	out := make([]SessionInfo, 0, len(m.sessions))
	for _, entry := range m.sessions {
		out = append(out, entry.info)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Started.After(out[j].Started) })
	return out
}

// Cancel stops session id. Cancelling a finished session is a no-op.
func (m *Manager) Cancel(id string) error {
	m.mu.RLock()
	entry, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return domain.ErrSessionNotFound
	}
	entry.cancel()
	m.logger.Info("session cancel requested", log.String("session", id))
	return nil
}

// Shutdown cancels every running session and waits for them to release
// their ports. Returns domain.ErrShutdownTimeout if the timeout expires.
func (m *Manager) Shutdown(timeout time.Duration) error {
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		m.logger.Warn("shutdown timeout, sessions still running",
			log.Duration("timeout", timeout),
		)
		return domain.ErrShutdownTimeout
	}
}

// trackingSink records state and progress for the manager before
// forwarding events.
type trackingSink struct {
	m    *Manager
	id   string
	next ports.EventSink
}

func (s *trackingSink) Emit(ev domain.Event) {
	if ev.Kind == domain.EventProgress && ev.Percent != nil {
		s.m.mu.Lock()
		if entry, ok := s.m.sessions[s.id]; ok {
			entry.info.Percent = *ev.Percent
		}
		s.m.mu.Unlock()
	}
	if s.next != nil {
		s.next.Emit(ev)
	}
}

func (s *trackingSink) OnStateChange(session string, previous, current domain.SessionState, reason string) {
	s.m.mu.Lock()
	if entry, ok := s.m.sessions[session]; ok {
		entry.info.State = current.String()
	}
	s.m.mu.Unlock()

	if next, ok := s.next.(StateObserver); ok {
		next.OnStateChange(session, previous, current, reason)
	}
}
