// Package fold runs per-player temporal folds in parallel.
//
// Player folds are independent: no shared mutable state crosses a player
// boundary, so the pool needs no locking beyond the work channel itself.
// Unlike a long-running queue consumer, the input set is bounded, so the
// pool drains a channel of player groups and stops when it is empty.
package fold

import (
	"context"
	"runtime"
	"sync"

	"github.com/arenalab/churnsight/internal/domain/model"
	"github.com/arenalab/churnsight/internal/domain/temporal"
	"github.com/arenalab/churnsight/pkg/logger"
	"github.com/arenalab/churnsight/pkg/metrics"
)

// job is one player group awaiting its fold.
type job struct {
	tag     string
	entries []model.TimelineEntry
}

// result is one folded player group.
type result struct {
	tag     string
	entries []model.EnrichedEntry
}

// Pool fans player groups out to fold workers.
type Pool struct {
	engine  *temporal.Engine
	workers int
	logger  logger.Logger
}

// Option applies a configuration option to the Pool.
type Option func(*Pool)

// WithWorkers sets the number of fold workers.
func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithLogger sets a custom logger for the pool.
func WithLogger(l logger.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a Pool around the given temporal engine.
func New(engine *temporal.Engine, opts ...Option) *Pool {
	p := &Pool{
		engine:  engine,
		workers: runtime.NumCPU(),
		logger:  logger.Get().Named("fold"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run folds every player group and returns the enriched timeline keyed by
// player tag. It honors ctx: on cancellation workers stop picking up new
// groups and Run returns ctx.Err.
func (p *Pool) Run(ctx context.Context, groups map[string][]model.TimelineEntry) (map[string][]model.EnrichedEntry, error) {
	metrics.UpdateFoldWorkers(p.workers)

	jobs := make(chan job)
	results := make(chan result)

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				enriched := p.engine.Enrich(j.entries)
				metrics.RecordFoldCompleted()
				select {
				case results <- result{tag: j.tag, entries: enriched}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	// Feed the workers; stop early on cancellation.
	go func() {
		defer close(jobs)
		for tag, entries := range groups {
			select {
			case jobs <- job{tag: tag, entries: entries}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make(map[string][]model.EnrichedEntry, len(groups))
	for r := range results {
		out[r.tag] = r.entries
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.logger.Debug(ctx, "fold pool finished",
		logger.Int("players", len(out)),
		logger.Int("workers", p.workers),
	)
	return out, nil
}
