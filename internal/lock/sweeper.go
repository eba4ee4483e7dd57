package lock

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper purges expired locks on an interval. Readers already ignore
// expired locks, so the sweeper only bounds memory.
type Sweeper struct {
	manager  *Manager
	interval time.Duration
	logger   *zerolog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

func NewSweeper(manager *Manager, interval time.Duration, logger *zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{manager: manager, interval: interval, logger: logger, stopCh: make(chan struct{})}
}

// Start blocks until ctx is done or Stop is called.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info().Dur("interval", s.interval).Msg("lock sweeper started")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("lock sweeper stopped by context")
			return
		case <-s.stopCh:
			s.logger.Info().Msg("lock sweeper stopped")
			return
		case <-ticker.C:
			if n := s.manager.Purge(ctx); n > 0 {
				s.logger.Debug().Int("sessions", n).Msg("expired locks purged")
			}
		}
	}
}

func (s *Sweeper) Stop() {
	s.mu.Lock()
	if s.running {
		s.running = false
		close(s.stopCh)
	}
	s.mu.Unlock()
}

func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
