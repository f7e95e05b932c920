package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"favorites-sync-service/internal/domain"
	"favorites-sync-service/internal/metrics"
	"favorites-sync-service/pkg/locker"
)

// DefaultLockTTL bounds how long a crashed run can block the next one.
const DefaultLockTTL = 2 * time.Hour

const historyMemory = 50

// SyncResult is the terminal outcome of one trigger.
type SyncResult struct {
	RunID     string
	Provider  string
	Status    domain.SyncStatus
	Count     int
	Message   string
	ErrorKind string
	Degraded  []string
	StartedAt time.Time
	Duration  time.Duration
}

// ProviderState is the observable run state of one provider.
type ProviderState struct {
	Provider   string
	State      domain.RunState
	LastResult *SyncResult
}

// degradedReporter is implemented by providers that keep base records when
// enrichment fails.
type degradedReporter interface {
	LastDegraded() []string
}

// SyncDeps groups the collaborators of SyncService. Backups, Checkpoints,
// Runs and Cache are optional.
type SyncDeps struct {
	Providers   []domain.Provider
	Store       domain.SnapshotStore
	Checkpoints domain.CheckpointStore
	Backups     domain.Backuper
	Runs        domain.RunRepository
	Cache       domain.Cache
	Locker      locker.DistributedLocker
	Holder      *SnapshotHolder
}

// SyncService runs provider syncs: fetch, back up, persist, reload.
// At most one run per provider is active; a second trigger gets a conflict.
type SyncService struct {
	providers map[string]domain.Provider
	order     []string
	deps      SyncDeps
	lockTTL   time.Duration
	logger    *zap.Logger
	now       func() time.Time

	mu      sync.Mutex
	states  map[string]*ProviderState
	history []*domain.SyncRun

	// background runs started by StartAsync
	bg       sync.WaitGroup
	bgCtx    context.Context
	bgCancel context.CancelFunc
}

// NewSyncService creates a new SyncService.
//
// Parameters:
//   - deps: Providers, snapshot store and the optional collaborators. A nil
//     Holder or Locker is replaced by an in-process one
//   - lockTTL: Lifetime of the per-provider run lock, DefaultLockTTL when zero
//   - logger: Structured logger for operational visibility
func NewSyncService(deps SyncDeps, lockTTL time.Duration, logger *zap.Logger) *SyncService {
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	if deps.Holder == nil {
		deps.Holder = NewSnapshotHolder()
	}
	if deps.Locker == nil {
		deps.Locker = locker.NewMemoryLocker(logger)
	}

	s := &SyncService{
		providers: make(map[string]domain.Provider, len(deps.Providers)),
		deps:      deps,
		lockTTL:   lockTTL,
		logger:    logger,
		now:       time.Now,
		states:    make(map[string]*ProviderState, len(deps.Providers)),
	}
	s.bgCtx, s.bgCancel = context.WithCancel(context.Background())

	for _, p := range deps.Providers {
		s.providers[p.Name()] = p
		s.order = append(s.order, p.Name())
		s.states[p.Name()] = &ProviderState{Provider: p.Name(), State: domain.RunStateIdle}
	}

	return s
}

// Holder returns the snapshot holder shared with the query side.
func (s *SyncService) Holder() *SnapshotHolder {
	return s.deps.Holder
}

// GetProviderNames returns the names of all registered providers.
func (s *SyncService) GetProviderNames() []string {
	return append([]string(nil), s.order...)
}

// Has reports whether name is a registered provider.
func (s *SyncService) Has(name string) bool {
	_, ok := s.providers[name]
	return ok
}

// LoadAll primes the snapshot holder from disk. Every provider is attempted;
// failures are joined.
func (s *SyncService) LoadAll(ctx context.Context) error {
	var errs []error
	for _, name := range s.order {
		snap, err := s.deps.Store.Load(ctx, name)
		if err != nil {
			s.logger.Error("loading snapshot failed", zap.String("provider", name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		s.deps.Holder.Set(name, snap)
		metrics.SyncRecords.WithLabelValues(name).Set(float64(len(snap)))
		s.logger.Info("snapshot loaded", zap.String("provider", name), zap.Int("count", len(snap)))
	}

	return errors.Join(errs...)
}

// Start runs a sync for provider and blocks until it ends. It never returns
// an error: every outcome, including conflicts, is a SyncResult.
func (s *SyncService) Start(ctx context.Context, provider string) SyncResult {
	lr, res, ok := s.begin(ctx, provider)
	if !ok {
		return res
	}

	return s.run(ctx, lr, res)
}

// StartAsync takes the run lock synchronously and continues the run in the
// background. The returned result is either a conflict/error or accepted.
func (s *SyncService) StartAsync(ctx context.Context, provider string) SyncResult {
	lr, res, ok := s.begin(ctx, provider)
	if !ok {
		return res
	}

	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		s.run(s.bgCtx, lr, res)
	}()

	accepted := res
	accepted.Status = domain.SyncStatusAccepted
	accepted.Message = "sync started"

	return accepted
}

// SyncAll syncs every provider concurrently. Partial failures are allowed.
func (s *SyncService) SyncAll(ctx context.Context) []SyncResult {
	results := make([]SyncResult, len(s.order))
	var wg sync.WaitGroup

	s.logger.Info("starting sync for all providers", zap.Int("provider_count", len(s.order)))

	for i, name := range s.order {
		wg.Add(1)
		go func(idx int, name string) {
			defer wg.Done()
			results[idx] = s.Start(ctx, name)
		}(i, name)
	}
	wg.Wait()

	totalSynced, failed := 0, 0
	for _, r := range results {
		if r.Status == domain.SyncStatusSuccess {
			totalSynced += r.Count
		} else {
			failed++
		}
	}
	s.logger.Info("sync all completed",
		zap.Int("total_synced", totalSynced),
		zap.Int("providers_not_synced", failed),
	)

	return results
}

// Shutdown cancels background runs and waits for them to release their locks.
func (s *SyncService) Shutdown(ctx context.Context) error {
	s.bgCancel()

	done := make(chan struct{})
	go func() {
		s.bg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning reports whether any provider sync is active.
func (s *SyncService) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, st := range s.states {
		if st.State == domain.RunStateRunning {
			return true
		}
	}

	return false
}

// Status returns a copy of every provider's state in registration order.
func (s *SyncService) Status() []ProviderState {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ProviderState, 0, len(s.order))
	for _, name := range s.order {
		st := *s.states[name]
		if st.LastResult != nil {
			r := *st.LastResult
			st.LastResult = &r
		}
		out = append(out, st)
	}

	return out
}

// History returns recent runs, newest first. The run repository is used
// when configured, otherwise the in-memory tail.
func (s *SyncService) History(ctx context.Context, provider string, limit int) ([]*domain.SyncRun, error) {
	if limit <= 0 || limit > historyMemory {
		limit = historyMemory
	}
	if s.deps.Runs != nil {
		return s.deps.Runs.List(ctx, provider, limit)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.SyncRun, 0, limit)
	for i := len(s.history) - 1; i >= 0 && len(out) < limit; i-- {
		if provider == "" || s.history[i].Provider == provider {
			run := *s.history[i]
			out = append(out, &run)
		}
	}

	return out, nil
}

// lockedRun is a provider whose run lock is held under token.
type lockedRun struct {
	provider domain.Provider
	token    string
}

// begin resolves the provider and takes its run lock. ok is false when the
// returned result is already terminal.
func (s *SyncService) begin(ctx context.Context, name string) (lockedRun, SyncResult, bool) {
	res := SyncResult{
		RunID:     uuid.NewString(),
		Provider:  name,
		StartedAt: s.now(),
	}

	p, found := s.providers[name]
	if !found {
		res.Status = domain.SyncStatusError
		res.ErrorKind = "not_found"
		res.Message = fmt.Sprintf("%s: %v", name, domain.ErrProviderNotFound)
		return lockedRun{}, res, false
	}

	token, err := s.deps.Locker.Acquire(ctx, lockKey(name), s.lockTTL)
	if err != nil {
		s.logger.Error("acquiring run lock failed", zap.String("provider", name), zap.Error(err))
		res.Status = domain.SyncStatusError
		res.ErrorKind = "lock"
		res.Message = fmt.Sprintf("acquiring run lock: %v", err)
		return lockedRun{}, res, false
	}
	if token == "" {
		metrics.SyncConflicts.WithLabelValues(name).Inc()
		s.logger.Info("sync already running", zap.String("provider", name))
		res.Status = domain.SyncStatusConflict
		res.ErrorKind = domain.ErrorKind(domain.ErrSyncInProgress)
		res.Message = domain.ErrSyncInProgress.Error()
		return lockedRun{}, res, false
	}

	s.setState(name, domain.RunStateRunning, nil)
	metrics.SyncRunning.WithLabelValues(name).Set(1)

	return lockedRun{provider: p, token: token}, res, true
}

// run executes a locked sync. The lock is released on every exit path,
// panics included, and the caller always gets a terminal result.
func (s *SyncService) run(ctx context.Context, lr lockedRun, res SyncResult) (out SyncResult) {
	p := lr.provider
	name := p.Name()
	logger := s.logger.With(zap.String("provider", name), zap.String("run_id", res.RunID))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("sync panicked", zap.Any("panic", r))
			out = s.fail(res, fmt.Errorf("panic: %v", r), logger)
		}

		// the run context may be canceled; the lock must still go
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.deps.Locker.Release(releaseCtx, lockKey(name), lr.token); err != nil {
			logger.Warn("releasing run lock failed", zap.Error(err))
		}

		out.Duration = s.now().Sub(out.StartedAt)
		s.finish(ctx, out, logger)
	}()

	logger.Info("sync started")

	records, err := p.Fetch(ctx)
	if err != nil {
		return s.fail(res, fmt.Errorf("fetch: %w", err), logger)
	}

	path := s.deps.Store.Path(name)
	if s.deps.Backups != nil {
		if err := s.deps.Backups.Backup(ctx, name, path); err != nil {
			logger.Warn("backup failed, continuing", zap.Error(err))
		}
	}

	if err := s.deps.Store.Save(ctx, name, records); err != nil {
		return s.fail(res, fmt.Errorf("save: %w", err), logger)
	}

	snap, err := s.deps.Store.Load(ctx, name)
	if err != nil {
		return s.fail(res, fmt.Errorf("reload: %w", err), logger)
	}
	s.deps.Holder.Set(name, snap)

	if s.deps.Cache != nil {
		if err := s.deps.Cache.Clear(ctx); err != nil {
			logger.Warn("clearing query cache failed", zap.Error(err))
		}
	}
	if s.deps.Checkpoints != nil {
		if err := s.deps.Checkpoints.ClearCheckpoint(ctx, name); err != nil {
			logger.Warn("clearing checkpoint failed", zap.Error(err))
		}
	}

	res.Status = domain.SyncStatusSuccess
	res.Count = len(snap)
	res.Message = fmt.Sprintf("synced %d records", len(snap))
	if dr, ok := p.(degradedReporter); ok {
		res.Degraded = dr.LastDegraded()
		if len(res.Degraded) > 0 {
			res.Message = fmt.Sprintf("synced %d records, %d without detail", len(snap), len(res.Degraded))
		}
	}

	return res
}

func (s *SyncService) fail(res SyncResult, err error, logger *zap.Logger) SyncResult {
	res.Status = domain.SyncStatusError
	res.ErrorKind = domain.ErrorKind(err)
	res.Message = err.Error()
	res.Count = 0

	logger.Error("sync failed", zap.String("kind", res.ErrorKind), zap.Error(err))

	return res
}

// finish records state, metrics and history for a terminal result.
func (s *SyncService) finish(ctx context.Context, res SyncResult, logger *zap.Logger) {
	state := domain.RunStateSucceeded
	if res.Status != domain.SyncStatusSuccess {
		state = domain.RunStateFailed
	}

	run := &domain.SyncRun{
		ID:         res.RunID,
		Provider:   res.Provider,
		Status:     res.Status,
		Count:      res.Count,
		Message:    res.Message,
		ErrorKind:  res.ErrorKind,
		Degraded:   res.Degraded,
		StartedAt:  res.StartedAt,
		FinishedAt: res.StartedAt.Add(res.Duration),
	}

	s.mu.Lock()
	s.history = append(s.history, run)
	if len(s.history) > historyMemory {
		s.history = s.history[len(s.history)-historyMemory:]
	}
	s.mu.Unlock()
	s.setState(res.Provider, state, &res)

	metrics.SyncRunning.WithLabelValues(res.Provider).Set(0)
	metrics.SyncDuration.WithLabelValues(res.Provider, string(res.Status)).Observe(res.Duration.Seconds())
	if res.Status == domain.SyncStatusSuccess {
		metrics.SyncRecords.WithLabelValues(res.Provider).Set(float64(res.Count))
		metrics.SyncLastSuccess.WithLabelValues(res.Provider).Set(float64(s.now().Unix()))
	} else {
		metrics.SyncErrors.WithLabelValues(res.Provider, res.ErrorKind).Inc()
	}

	if s.deps.Runs != nil {
		histCtx := context.WithoutCancel(ctx)
		if err := s.deps.Runs.Create(histCtx, run); err != nil {
			logger.Warn("recording run history failed", zap.Error(err))
		}
	}

	logger.Info("sync finished",
		zap.String("status", string(res.Status)),
		zap.Int("count", res.Count),
		zap.Duration("duration", res.Duration),
	)
}

func (s *SyncService) setState(name string, state domain.RunState, last *SyncResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.states[name]
	st.State = state
	if last != nil {
		st.LastResult = last
	}
}

func lockKey(provider string) string {
	return "sync:" + provider
}
