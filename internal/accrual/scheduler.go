package accrual

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/thereal-osas/broker-sub006/internal/ledger"
)

// Scheduler periodically triggers distribution runs for both contract
// classes. The persisted cooldown makes it safe alongside manual admin
// triggers and other instances: a tick inside the window is simply
// rejected and retried on a later tick.
type Scheduler struct {
	orchestrator *Orchestrator
	interval     time.Duration
	logger       zerolog.Logger

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewScheduler creates a distribution scheduler.
func NewScheduler(orchestrator *Orchestrator, interval time.Duration, logger zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Scheduler{
		orchestrator: orchestrator,
		interval:     interval,
		logger:       logger.With().Str("component", "distribution_scheduler").Logger(),
		stopChan:     make(chan struct{}),
	}
}

// Start starts the scheduler loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("distribution scheduler already running")
	}
	s.running = true
	s.stopChan = make(chan struct{}) // reinitialize for restart capability
	s.mu.Unlock()

	s.logger.Info().Dur("interval", s.interval).Msg("starting distribution scheduler")

	s.wg.Add(1)
	go s.runLoop()

	return nil
}

// Stop stops the scheduler and waits for the loop to exit.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("distribution scheduler not running")
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()

	s.logger.Info().Msg("distribution scheduler stopped")
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) runLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately on start
	s.triggerAll()

	for {
		select {
		case <-ticker.C:
			s.triggerAll()
		case <-s.stopChan:
			return
		}
	}
}

func (s *Scheduler) triggerAll() {
	for _, class := range []ledger.ContractClass{ledger.ClassInvestment, ledger.ClassLiveTrade} {
		ctx := context.Background()
		if _, err := s.orchestrator.Run(ctx, class); err != nil {
			if ledger.IsOnCooldown(err) {
				s.logger.Debug().Str("contract_class", string(class)).Err(err).Msg("skipping, on cooldown")
				continue
			}
			s.logger.Error().Str("contract_class", string(class)).Err(err).Msg("scheduled distribution failed")
		}
	}
}
