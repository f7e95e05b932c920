package ingest

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"favorites-sync-service/internal/domain"
)

// EnrichFunc fetches detail for base and returns the merged record.
type EnrichFunc func(ctx context.Context, base domain.Record) (domain.Record, error)

// CheckpointFunc persists the currently populated slots in index order.
type CheckpointFunc func(ctx context.Context, records []domain.Record) error

// PoolConfig controls the enrichment pool.
type PoolConfig struct {
	Workers        int
	PerItemRetries int
	Backoff        time.Duration // linear: attempt n waits n*Backoff
	SaveEvery      int
}

// EnrichReport is the outcome of an enrichment pass.
type EnrichReport struct {
	Records     []domain.Record
	Enriched    int
	Reused      int
	Degraded    []int // indices kept in base form
	Checkpoints int
}

// DegradedIDs returns the ids of records kept in base form.
func (r *EnrichReport) DegradedIDs() []string {
	ids := make([]string, 0, len(r.Degraded))
	for _, i := range r.Degraded {
		ids = append(ids, r.Records[i].ID())
	}

	return ids
}

// Pool enriches base records concurrently while preserving input order.
type Pool struct {
	cfg    PoolConfig
	logger *zap.Logger
}

// NewPool creates an enrichment pool.
func NewPool(cfg PoolConfig, logger *zap.Logger) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.PerItemRetries < 1 {
		cfg.PerItemRetries = 1
	}
	if cfg.SaveEvery < 1 {
		cfg.SaveEvery = 50
	}

	return &Pool{cfg: cfg, logger: logger}
}

// slots is the pre-sized result arena. Completed records land at their
// input index; the completion counter shares the slot mutex so a checkpoint
// taken at count c holds exactly c records.
type slots struct {
	mu        sync.Mutex
	results   []Result[domain.Record]
	filled    []bool
	completed int
}

func (s *slots) put(i int, res Result[domain.Record]) int {
	s.results[i] = res
	s.filled[i] = true
	s.completed++

	return s.completed
}

func (s *slots) populated() []domain.Record {
	out := make([]domain.Record, 0, s.completed)
	for i, ok := range s.filled {
		if ok {
			out = append(out, s.results[i].Value)
		}
	}

	return out
}

// Run enriches bases with up to Workers concurrent calls. Entries of resumed
// (index -> merged record) are taken as already enriched and not fetched.
// A checkpoint is written every SaveEvery completions and at len(bases).
// Items that exhaust their retries keep their base form.
//
// A Fatal error from any item cancels the remaining work and is returned
// with a nil report; checkpoints written before that point are kept.
func (p *Pool) Run(
	ctx context.Context,
	bases []domain.Record,
	resumed map[int]domain.Record,
	enrich EnrichFunc,
	checkpoint CheckpointFunc,
) (*EnrichReport, error) {
	n := len(bases)
	arena := &slots{
		results: make([]Result[domain.Record], n),
		filled:  make([]bool, n),
	}
	report := &EnrichReport{}

	for i, rec := range resumed {
		if i >= 0 && i < n {
			arena.put(i, Result[domain.Record]{Value: rec, Attempts: 0})
			report.Reused++
		}
	}

	var (
		cpMu        sync.Mutex
		lastWritten int
	)
	writeCheckpoint := func(count int, records []domain.Record) {
		if checkpoint == nil {
			return
		}
		cpMu.Lock()
		defer cpMu.Unlock()
		if count <= lastWritten {
			return
		}
		if err := checkpoint(ctx, records); err != nil {
			p.logger.Warn("checkpoint write failed",
				zap.Int("completed", count),
				zap.Error(err),
			)
			return
		}
		lastWritten = count
		report.Checkpoints++
		p.logger.Debug("checkpoint written",
			zap.Int("completed", count),
			zap.Int("total", n),
		)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)

	for i := range bases {
		if arena.filled[i] {
			continue
		}
		g.Go(func() error {
			res := p.enrichOne(gctx, bases[i], enrich)
			if Fatal(res.Err) {
				return res.Err
			}

			arena.mu.Lock()
			count := arena.put(i, res)
			var snapshot []domain.Record
			if count%p.cfg.SaveEvery == 0 || count == n {
				snapshot = arena.populated()
			}
			arena.mu.Unlock()

			if snapshot != nil && gctx.Err() == nil {
				writeCheckpoint(count, snapshot)
			}

			return nil
		})
	}
	if err := g.Wait(); err != nil {
		p.logger.Error("enrichment aborted",
			zap.Int("total", n),
			zap.Int("completed", arena.completed),
			zap.Error(err),
		)
		return nil, err
	}

	// everything came from a resumed checkpoint
	if n > 0 && lastWritten < n && report.Reused == n {
		writeCheckpoint(n, arena.populated())
	}

	report.Records = make([]domain.Record, n)
	for i, res := range arena.results {
		report.Records[i] = res.Value
		switch {
		case res.Err != nil:
			report.Degraded = append(report.Degraded, i)
		case res.Attempts > 0:
			report.Enriched++
		}
	}

	if len(report.Degraded) > 0 {
		p.logger.Warn("enrichment finished with degraded records",
			zap.Int("total", n),
			zap.Int("enriched", report.Enriched),
			zap.Int("reused", report.Reused),
			zap.Int("degraded", len(report.Degraded)),
		)
	}

	return report, nil
}

// enrichOne retries a single item with linear backoff. On exhaustion the
// result carries the base record and the last error. Fatal errors are not
// retried.
func (p *Pool) enrichOne(ctx context.Context, base domain.Record, enrich EnrichFunc) Result[domain.Record] {
	res := Result[domain.Record]{Value: base}

	for attempt := 1; attempt <= p.cfg.PerItemRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			res.Err = err
			break
		}

		merged, err := enrich(ctx, base)
		res.Attempts = attempt
		if err == nil {
			return Result[domain.Record]{Value: merged, Attempts: attempt}
		}
		res.Err = err
		if Fatal(err) {
			return res
		}

		p.logger.Debug("item enrichment failed",
			zap.String("item_id", base.ID()),
			zap.Int("attempt", attempt),
			zap.String("kind", domain.ErrorKind(err)),
			zap.Error(err),
		)

		if attempt < p.cfg.PerItemRetries {
			if sleep(ctx, time.Duration(attempt)*p.cfg.Backoff) != nil {
				break
			}
		}
	}

	p.logger.Warn("item kept in base form",
		zap.String("item_id", base.ID()),
		zap.Int("attempts", res.Attempts),
		zap.Error(res.Err),
	)
	res.Value = base

	return res
}
