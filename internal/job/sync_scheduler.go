// Package job provides background job schedulers.
package job

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"favorites-sync-service/internal/app/service"
	"favorites-sync-service/internal/domain"
)

// Syncer is the part of the orchestrator the scheduler drives.
type Syncer interface {
	GetProviderNames() []string
	Start(ctx context.Context, provider string) service.SyncResult
}

// SyncScheduler runs periodic provider syncs. Providers are synced one after
// another; the orchestrator's per-provider lock keeps manual triggers and
// scheduled runs from overlapping.
type SyncScheduler struct {
	syncer   Syncer
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// SyncConfig holds sync scheduler configuration.
type SyncConfig struct {
	Interval  time.Duration
	Timeout   time.Duration
	OnStartup bool
}

// NewSyncScheduler creates a new SyncScheduler.
//
// Parameters:
//   - syncer: Orchestrator running one provider sync under its run lock
//   - cfg: Interval between passes and the timeout applied to each provider
//   - logger: Structured logger for operational visibility
//
// Overlap with manual triggers is not handled here: a provider that is
// already syncing answers with a conflict result, which is logged and skipped.
func NewSyncScheduler(syncer Syncer, cfg SyncConfig, logger *zap.Logger) *SyncScheduler {
	return &SyncScheduler{
		syncer:   syncer,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		logger:   logger,
	}
}

// Start begins the background sync job. With a zero interval only the
// startup run (if requested) happens.
func (s *SyncScheduler) Start(runOnStartup bool) {
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.logger.Info("starting sync scheduler",
		zap.Duration("interval", s.interval),
		zap.Bool("run_on_startup", runOnStartup),
	)

	s.wg.Add(1)
	go s.run(runOnStartup)
}

// Stop cancels the running sync, if any, and waits for the loop to exit.
func (s *SyncScheduler) Stop() {
	if s.cancel == nil {
		return
	}

	s.logger.Info("stopping sync scheduler")
	s.cancel()
	s.wg.Wait()
	s.logger.Info("sync scheduler stopped")
}

func (s *SyncScheduler) run(runOnStartup bool) {
	defer s.wg.Done()

	if runOnStartup {
		s.executeSync()
	}
	if s.interval <= 0 {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.executeSync()
		}
	}
}

// executeSync syncs every provider in registration order.
func (s *SyncScheduler) executeSync() {
	totalSynced, failed := 0, 0

	for _, name := range s.syncer.GetProviderNames() {
		if s.ctx.Err() != nil {
			return
		}

		ctx, cancel := s.runContext()
		res := s.syncer.Start(ctx, name)
		cancel()

		switch res.Status {
		case domain.SyncStatusSuccess:
			totalSynced += res.Count
		case domain.SyncStatusConflict:
			s.logger.Debug("sync already running, skipping", zap.String("provider", name))
		default:
			failed++
			s.logger.Warn("scheduled sync failed",
				zap.String("provider", name),
				zap.String("kind", res.ErrorKind),
				zap.String("message", res.Message),
			)
		}
	}

	s.logger.Info("scheduled sync completed",
		zap.Int("total_synced", totalSynced),
		zap.Int("providers_failed", failed),
	)
}

func (s *SyncScheduler) runContext() (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(s.ctx, s.timeout)
	}

	return context.WithCancel(s.ctx)
}
