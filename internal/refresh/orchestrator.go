// Package refresh schedules periodic pulls from the upstream source,
// invalidates stale cache entries and repopulates them through the engine.
// Retry policy lives here, not in the core: the core never retries internally.
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/carbonscope-lab/carbonscope/internal/analytics"
	core "github.com/carbonscope-lab/carbonscope/internal/core/analytics"
	"github.com/carbonscope-lab/carbonscope/internal/core/cache"
)

// Source delivers the upstream transaction feed.
type Source interface {
	Transactions(ctx context.Context, n int) ([]core.Transaction, error)
}

// Publisher receives each refreshed snapshot, e.g. a websocket hub pushing to
// dashboard clients.
type Publisher interface {
	Publish(s Snapshot)
}

// Snapshot is one refresh cycle's output.
type Snapshot struct {
	Retirements *core.Result `json:"retirements"`
	Projects    *core.Result `json:"projects"`
	CacheStats  cache.Stats  `json:"cache_stats"`
	RefreshedAt time.Time    `json:"refreshed_at"`
}

// Options configure the orchestrator loop.
type Options struct {
	Interval  time.Duration
	BatchSize int // transactions pulled per cycle
}

// Orchestrator owns the pull-invalidate-repopulate cycle. It is stateless
// between ticks except for the latest record set, which API handlers read.
type Orchestrator struct {
	interval  time.Duration
	batchSize int
	source    Source
	engine    *analytics.Engine
	publisher Publisher

	latest atomic.Pointer[[]core.Transaction]
}

// NewOrchestrator wires a refresh loop. publisher may be nil.
func NewOrchestrator(source Source, engine *analytics.Engine, publisher Publisher, opts Options) *Orchestrator {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5000
	}
	return &Orchestrator{
		interval:  opts.Interval,
		batchSize: opts.BatchSize,
		source:    source,
		engine:    engine,
		publisher: publisher,
	}
}

// Latest returns the record set from the most recent successful refresh.
func (o *Orchestrator) Latest() []core.Transaction {
	if p := o.latest.Load(); p != nil {
		return *p
	}
	return nil
}

// Start runs the refresh loop until ctx is cancelled. An immediate first
// refresh warms the cache before the first tick.
func (o *Orchestrator) Start(ctx context.Context) error {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	slog.Info("[Refresh] Starting orchestrator",
		"interval", o.interval,
		"batch_size", o.batchSize,
	)

	if _, err := o.RefreshOnce(ctx); err != nil {
		slog.Error("[Refresh] Initial refresh failed", "error", err)
	}

	for {
		select {
		case <-ticker.C:
			if _, err := o.RefreshOnce(ctx); err != nil {
				slog.Error("[Refresh] Cycle failed", "error", err)
			}
		case <-ctx.Done():
			slog.Info("[Refresh] Stopping (context cancelled)")
			return nil
		}
	}
}

// RefreshOnce executes one pull-invalidate-repopulate cycle and publishes the
// resulting snapshot.
func (o *Orchestrator) RefreshOnce(ctx context.Context) (Snapshot, error) {
	start := time.Now()

	records, err := o.source.Transactions(ctx, o.batchSize)
	if err != nil {
		return Snapshot{}, fmt.Errorf("pull upstream transactions: %w", err)
	}
	o.latest.Store(&records)

	invalidated := o.engine.InvalidateDataset(core.DatasetRetirements)
	invalidated += o.engine.InvalidateDataset(core.DatasetProjects)

	retirements, err := o.engine.Aggregate(ctx, records, DashboardRetirementOptions(time.Now().UTC()))
	if err != nil {
		return Snapshot{}, fmt.Errorf("aggregate retirements: %w", err)
	}
	projects, err := o.engine.Aggregate(ctx, records, core.Options{Dataset: core.DatasetProjects})
	if err != nil {
		return Snapshot{}, fmt.Errorf("aggregate projects: %w", err)
	}

	snapshot := Snapshot{
		Retirements: retirements,
		Projects:    projects,
		CacheStats:  o.engine.CacheStats(),
		RefreshedAt: time.Now().UTC(),
	}
	if o.publisher != nil {
		o.publisher.Publish(snapshot)
	}

	slog.Info("[Refresh] Cycle complete",
		"records", len(records),
		"invalidated", invalidated,
		"strategy", retirements.Meta.Strategy,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return snapshot, nil
}

// DashboardRetirementOptions is the canonical dashboard aggregation request:
// full breakdowns plus a daily series over the trailing 90 days. Boundaries
// truncate to the day so the cache key stays stable within a day.
func DashboardRetirementOptions(now time.Time) core.Options {
	day := now.UTC().Truncate(24 * time.Hour)
	return core.Options{
		Dataset: core.DatasetRetirements,
		GroupBy: []string{core.FieldProject, core.FieldPaymentMethod, core.FieldMethodology},
		Metrics: []string{"amount"},
		Timeframe: &core.Timeframe{
			Start:    day.AddDate(0, 0, -90),
			End:      day.AddDate(0, 0, 1),
			Interval: core.IntervalDay,
		},
	}
}
