package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper is the expiry pass the scheduler drives. The grant service
// implements it.
type Sweeper interface {
	SweepExpired(ctx context.Context) ([]uint64, error)
}

// ExpiryScheduler runs the expiry sweep on a cron schedule.
type ExpiryScheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	logger  *zap.Logger
	spec    string
	mu      sync.Mutex
	running bool
}

// NewExpiryScheduler creates the scheduler. spec is a standard cron
// expression; an empty spec defaults to an hourly sweep.
func NewExpiryScheduler(sweeper Sweeper, spec string, logger *zap.Logger) *ExpiryScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if spec == "" {
		spec = "@hourly"
	}
	return &ExpiryScheduler{
		cron:    cron.New(),
		sweeper: sweeper,
		logger:  logger,
		spec:    spec,
	}
}

// Start registers the sweep job and starts the cron loop. An initial sweep
// runs immediately so a restart never leaves expired grants unmarked.
func (s *ExpiryScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("expiry scheduler already running")
	}

	if _, err := s.cron.AddFunc(s.spec, func() {
		s.sweep(ctx)
	}); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.spec, err)
	}

	s.logger.Info("starting expiry scheduler", zap.String("spec", s.spec))
	s.cron.Start()
	s.running = true

	go s.sweep(ctx)
	return nil
}

// Stop stops the cron loop and waits for a running sweep to finish.
func (s *ExpiryScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.logger.Info("stopping expiry scheduler")
	stopped := s.cron.Stop()
	<-stopped.Done()
	s.running = false
}

func (s *ExpiryScheduler) sweep(ctx context.Context) {
	marked, err := s.sweeper.SweepExpired(ctx)
	if err != nil {
		s.logger.Error("expiry sweep failed", zap.Error(err))
		return
	}
	if len(marked) > 0 {
		s.logger.Info("expiry sweep completed", zap.Uint64s("grant_ids", marked))
	}
}
