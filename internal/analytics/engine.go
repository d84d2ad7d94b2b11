// Package analytics is the service layer over the core aggregation
// primitives: it owns cache interaction, strategy dispatch and per-dataset
// TTL policy. The engine itself holds no state beyond in-flight computation.
package analytics

import (
	"context"
	"time"

	core "github.com/carbonscope-lab/carbonscope/internal/core/analytics"
	"github.com/carbonscope-lab/carbonscope/internal/core/cache"
)

// EngineOptions tune strategy selection and chart output.
type EngineOptions struct {
	Thresholds core.Thresholds
	MaxPoints  int // hard cardinality bound for time series; default 100
}

const defaultMaxPoints = 100

// Engine computes retirement and project statistics, caching results keyed by
// request shape.
type Engine struct {
	cache      *cache.Cache[*core.Result]
	policies   *PolicySet
	table      []core.StrategyDescriptor
	thresholds core.Thresholds
	maxPoints  int
}

// NewEngine wires an engine to its shared cache and policy set.
func NewEngine(c *cache.Cache[*core.Result], policies *PolicySet, opts EngineOptions) *Engine {
	maxPoints := opts.MaxPoints
	if maxPoints <= 0 {
		maxPoints = defaultMaxPoints
	}
	// Normalize once so the table ranges and the chunking knobs agree.
	thresholds := opts.Thresholds.Normalized()
	return &Engine{
		cache:      c,
		policies:   policies,
		table:      core.StrategyTable(thresholds),
		thresholds: thresholds,
		maxPoints:  maxPoints,
	}
}

// Aggregate returns the cached result for (dataset, options) or computes it.
// Identical requests with no intervening expiry return the stored result
// unchanged except Meta.CacheHit. Empty input never errors: it yields
// zero-valued aggregates.
func (e *Engine) Aggregate(ctx context.Context, records []core.Transaction, opts core.Options) (*core.Result, error) {
	if opts.Dataset == "" {
		opts.Dataset = core.DatasetRetirements
	}
	key := CacheKey(opts)

	res, hit, err := e.cache.Get(ctx, key, func(ctx context.Context) (*core.Result, error) {
		return e.compute(ctx, records, opts)
	}, e.policies.For(opts.Dataset))
	if err != nil {
		return nil, err
	}

	// Shallow copy so the cached payload keeps CacheHit=false while hits
	// report true. Breakdown maps are shared read-only.
	out := *res
	out.Meta.CacheHit = hit
	return &out, nil
}

func (e *Engine) compute(ctx context.Context, records []core.Transaction, opts core.Options) (*core.Result, error) {
	start := time.Now()
	filtered := filterRecords(records, opts)
	strategy := core.SelectStrategy(len(filtered), e.table)

	var res *core.Result
	switch opts.Dataset {
	case core.DatasetProjects:
		acc, err := e.foldProjects(ctx, filtered, strategy)
		if err != nil {
			return nil, err
		}
		if acc == nil {
			acc = core.NewProjectAccumulator()
		}
		res = acc.Finalize(opts)
	default:
		acc, err := e.foldRetirements(ctx, filtered, strategy, opts.GroupBy)
		if err != nil {
			return nil, err
		}
		if acc == nil {
			acc = core.NewRetirementAccumulator(opts.GroupBy)
		}
		res = acc.Finalize(opts)
	}
	res.Dataset = opts.Dataset

	if tf := opts.Timeframe; tf != nil && tf.Interval != "" {
		res.Series = e.buildSeries(filtered, opts)
	}

	res.Meta = core.Meta{
		Strategy:         strategy.Name,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		TotalRecords:     len(records),
		ProcessedRecords: len(filtered),
		ComputedAt:       time.Now().UTC(),
	}
	return res, nil
}

func (e *Engine) foldRetirements(ctx context.Context, records []core.Transaction, strategy core.StrategyDescriptor, groupBy []string) (*core.RetirementAccumulator, error) {
	handler := func(ctx context.Context, _ int, chunk []core.Transaction) (*core.RetirementAccumulator, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		acc := core.NewRetirementAccumulator(groupBy)
		for _, tx := range chunk {
			acc.Add(tx)
		}
		return acc, nil
	}

	if strategy.Name == core.StrategyDirect {
		// Single synchronous pass, no chunking.
		return handler(ctx, 0, records)
	}

	chunks := core.Chunk(records, e.thresholds.ChunkSize)
	if strategy.Name == core.StrategyStream && len(records) > e.thresholds.ConcurrencyMin {
		return core.ProcessParallel(ctx, chunks, handler, core.MergeRetirementAccumulators)
	}
	return core.ProcessSequential(ctx, chunks, handler, core.MergeRetirementAccumulators)
}

func (e *Engine) foldProjects(ctx context.Context, records []core.Transaction, strategy core.StrategyDescriptor) (*core.ProjectAccumulator, error) {
	handler := func(ctx context.Context, _ int, chunk []core.Transaction) (*core.ProjectAccumulator, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		acc := core.NewProjectAccumulator()
		for _, tx := range chunk {
			acc.Add(tx)
		}
		return acc, nil
	}

	if strategy.Name == core.StrategyDirect {
		return handler(ctx, 0, records)
	}

	chunks := core.Chunk(records, e.thresholds.ChunkSize)
	if strategy.Name == core.StrategyStream && len(records) > e.thresholds.ConcurrencyMin {
		return core.ProcessParallel(ctx, chunks, handler, core.MergeProjectAccumulators)
	}
	return core.ProcessSequential(ctx, chunks, handler, core.MergeProjectAccumulators)
}

func (e *Engine) buildSeries(records []core.Transaction, opts core.Options) []core.Point {
	field := "amount"
	if len(opts.Metrics) > 0 {
		field = opts.Metrics[0]
	}
	samples := make([]core.Sample, 0, len(records))
	for _, tx := range records {
		samples = append(samples, core.Sample{At: tx.OccurredAt, Value: core.MetricValue(tx, field)})
	}
	series := core.BuildSeries(samples, opts.Timeframe.Interval, core.AggSum)
	return core.Downsample(series, e.maxPoints)
}

// TimeSeriesOptions configure CreateTimeSeries.
type TimeSeriesOptions struct {
	Interval  core.Interval
	Aggregate string
	MaxPoints int // 0 uses the engine default
}

// CreateTimeSeries builds an interval-bucketed series over the records'
// valueField, downsampled to the point budget.
func (e *Engine) CreateTimeSeries(records []core.Transaction, valueField string, opts TimeSeriesOptions) []core.Point {
	interval := opts.Interval
	if !core.ValidInterval(interval) {
		interval = core.IntervalDay
	}
	fn := opts.Aggregate
	if fn == "" {
		fn = core.AggSum
	}
	maxPoints := opts.MaxPoints
	if maxPoints <= 0 {
		maxPoints = e.maxPoints
	}

	samples := make([]core.Sample, 0, len(records))
	for _, tx := range records {
		samples = append(samples, core.Sample{At: tx.OccurredAt, Value: core.MetricValue(tx, valueField)})
	}
	return core.Downsample(core.BuildSeries(samples, interval, fn), maxPoints)
}

// CalculateRealTimeStats computes rolling-window trend, volatility and
// momentum over the records' valueField ("" means amount).
func (e *Engine) CalculateRealTimeStats(records []core.Transaction, valueField string, windowSize int) core.RealTimeStats {
	values := make([]float64, len(records))
	for i, tx := range records {
		values[i] = core.MetricValue(tx, valueField)
	}
	return core.CalculateRealTimeStats(values, windowSize)
}

// InvalidateDataset drops every cached result for the dataset kind and
// returns the number of entries removed.
func (e *Engine) InvalidateDataset(dataset string) int {
	return e.cache.InvalidatePrefix(keyPrefix(dataset))
}

// CacheStats exposes the shared cache's health counters.
func (e *Engine) CacheStats() cache.Stats {
	return e.cache.Stats()
}

// ValidateCache runs the shared cache's diagnostic scan.
func (e *Engine) ValidateCache() cache.ValidationResult {
	return e.cache.Validate()
}

func filterRecords(records []core.Transaction, opts core.Options) []core.Transaction {
	tf := opts.Timeframe
	if tf == nil && len(opts.Filters) == 0 {
		return records
	}

	out := make([]core.Transaction, 0, len(records))
	for _, tx := range records {
		if tf != nil {
			if !tf.Start.IsZero() && tx.OccurredAt.Before(tf.Start) {
				continue
			}
			if !tf.End.IsZero() && !tx.OccurredAt.Before(tf.End) {
				continue
			}
		}
		if !matchesFilters(tx, opts.Filters) {
			continue
		}
		out = append(out, tx)
	}
	return out
}

func matchesFilters(tx core.Transaction, filters map[string]string) bool {
	for field, want := range filters {
		if tx.GroupValue(field) != want {
			return false
		}
	}
	return true
}
