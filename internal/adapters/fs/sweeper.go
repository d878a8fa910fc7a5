package fs

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bft-labs/dripfeed/pkg/log"
)

// SweeperConfig controls stale upload removal.
type SweeperConfig struct {
	// Interval between sweeps. Default: 24 hours.
	Interval time.Duration

	// MaxAge is the modification age above which a file is removed.
	// Default: 30 days.
	MaxAge time.Duration
}

// DefaultSweeperConfig returns the default retention policy for the upload
// directory: daily sweeps removing files older than 30 days.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval: 24 * time.Hour,
		MaxAge:   30 * 24 * time.Hour,
	}
}

// Sweeper periodically deletes files older than MaxAge from a directory.
type Sweeper struct {
	mu       sync.RWMutex
	dir      string
	interval time.Duration
	maxAge   time.Duration
	reset    chan struct{}
	now      func() time.Time
	logger   log.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper creates a sweeper for dir. Zero config values take defaults.
func NewSweeper(dir string, cfg SweeperConfig, logger log.Logger) *Sweeper {
	def := DefaultSweeperConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = def.MaxAge
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Sweeper{
		dir:      dir,
		interval: cfg.Interval,
		maxAge:   cfg.MaxAge,
		reset:    make(chan struct{}, 1),
		now:      time.Now,
		logger:   logger,
	}
}

// Start runs a sweep immediately and then every interval until ctx is done
// or Stop is called.
func (s *Sweeper) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go s.loop(loopCtx)
}

// Stop ends the sweep loop and waits for it to exit.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Update changes the policy of a running sweeper. The new interval takes
// effect immediately.
func (s *Sweeper) Update(cfg SweeperConfig) {
	s.mu.Lock()
	changed := false
	if cfg.Interval > 0 && cfg.Interval != s.interval {
		s.interval = cfg.Interval
		changed = true
	}
	if cfg.MaxAge > 0 {
		s.maxAge = cfg.MaxAge
	}
	s.mu.Unlock()

	if changed {
		select {
		case s.reset <- struct{}{}:
		default:
		}
	}
}

// Config returns the active policy.
func (s *Sweeper) Config() SweeperConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SweeperConfig{Interval: s.interval, MaxAge: s.maxAge}
}

func (s *Sweeper) loop(ctx context.Context) {
	defer s.wg.Done()

	s.SweepOnce(ctx)

	ticker := time.NewTicker(s.Config().Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.reset:
			ticker.Reset(s.Config().Interval)
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce removes every regular file in the directory whose modification
// time is older than MaxAge. It returns the number of files removed.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	maxAge := s.Config().MaxAge

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Error("upload sweep: read dir failed", log.String("dir", s.dir), log.Err(err))
		}
		return 0
	}

	now := s.now()
	removed := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			return removed
		}
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			s.logger.Error("upload sweep: stat failed", log.String("file", e.Name()), log.Err(err))
			continue
		}
		if now.Sub(info.ModTime()) <= maxAge {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			s.logger.Error("upload sweep: remove failed", log.String("file", e.Name()), log.Err(err))
			continue
		}
		removed++
		s.logger.Info("deleted old file", log.String("file", e.Name()))
	}
	return removed
}
