package cleanup

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler fires the sweeper on a fixed interval. A tick arriving while a
// sweep is still in flight is skipped entirely, not queued.
type Scheduler struct {
	sweeper  *Sweeper
	interval time.Duration
	logger   *zap.Logger
	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewScheduler creates a scheduler around the sweeper.
func NewScheduler(sweeper *Sweeper, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{sweeper: sweeper, interval: interval, logger: logger}
}

// Start begins the periodic sweep loop. Call Stop to release it.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.run(ctx)
	s.logger.Info("cleanup scheduler started", zap.Duration("interval", s.interval))
}

// Stop halts the loop and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.cancel = nil
	<-s.done
	s.logger.Info("cleanup scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs one sweep. Errors never escape: the scheduler runs unattended and
// the next tick proceeds regardless.
func (s *Scheduler) tick(ctx context.Context) {
	_, started, err := s.sweeper.TrySweep(ctx)
	if !started {
		s.logger.Warn("previous cleanup sweep still running, skipping this tick")
		return
	}
	if err != nil {
		s.logger.Error("cleanup sweep failed", zap.Error(err))
	}
}
