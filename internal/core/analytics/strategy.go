package analytics

// Processing strategy names.
const (
	StrategyDirect = "direct"
	StrategyBatch  = "batch"
	StrategyStream = "stream"
)

// StrategyDescriptor describes one processing strategy and the input-size
// range it owns. MaxSize of -1 means unbounded.
type StrategyDescriptor struct {
	Name            string
	MinSize         int
	MaxSize         int
	MemoryEfficient bool
	Parallelizable  bool
}

// Unbounded marks an open-ended MaxSize.
const Unbounded = -1

// Thresholds are the tuning knobs of the strategy table. They are heuristics
// carried as configurable defaults, not load-bearing constants.
type Thresholds struct {
	DirectMax      int // largest input reduced in one synchronous pass
	BatchMax       int // largest input processed as sequential batches
	ConcurrencyMin int // stream inputs above this fan out concurrently
	ChunkSize      int // fixed chunk size for batch and stream
}

// DefaultThresholds returns the default strategy tuning.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DirectMax:      1000,
		BatchMax:       10000,
		ConcurrencyMin: 5000,
		ChunkSize:      1000,
	}
}

// Normalized replaces unusable values with defaults so the strategy table and
// the chunking knobs always agree.
func (t Thresholds) Normalized() Thresholds {
	d := DefaultThresholds()
	n := t
	if n.DirectMax <= 0 {
		n.DirectMax = d.DirectMax
	}
	if n.BatchMax <= n.DirectMax {
		n.BatchMax = max(d.BatchMax, n.DirectMax+1)
	}
	if n.ConcurrencyMin <= 0 {
		n.ConcurrencyMin = d.ConcurrencyMin
	}
	if n.ChunkSize <= 0 {
		n.ChunkSize = d.ChunkSize
	}
	return n
}

// StrategyTable builds the fixed strategy table for the given thresholds.
// The ranges partition [0, ∞): exactly one strategy covers any input size.
func StrategyTable(t Thresholds) []StrategyDescriptor {
	t = t.Normalized()
	return []StrategyDescriptor{
		{Name: StrategyDirect, MinSize: 0, MaxSize: t.DirectMax, MemoryEfficient: false, Parallelizable: false},
		{Name: StrategyBatch, MinSize: t.DirectMax + 1, MaxSize: t.BatchMax, MemoryEfficient: true, Parallelizable: true},
		{Name: StrategyStream, MinSize: t.BatchMax + 1, MaxSize: Unbounded, MemoryEfficient: true, Parallelizable: true},
	}
}

// SelectStrategy returns the single strategy whose range covers n.
// Pure function of n and the table. A size outside every range (only possible
// with a malformed table) falls back to the smallest-footprint strategy,
// which is the table's first entry.
func SelectStrategy(n int, table []StrategyDescriptor) StrategyDescriptor {
	for _, s := range table {
		if n >= s.MinSize && (s.MaxSize == Unbounded || n <= s.MaxSize) {
			return s
		}
	}
	return table[0]
}
