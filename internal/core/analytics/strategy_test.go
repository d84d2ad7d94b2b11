package analytics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelectStrategy_Defaults(t *testing.T) {
	table := StrategyTable(DefaultThresholds())

	tests := []struct {
		name string
		n    int
		want string
	}{
		{name: "small input is direct", n: 500, want: StrategyDirect},
		{name: "zero is direct", n: 0, want: StrategyDirect},
		{name: "direct upper bound", n: 1000, want: StrategyDirect},
		{name: "just past direct", n: 1001, want: StrategyBatch},
		{name: "mid range is batch", n: 5000, want: StrategyBatch},
		{name: "batch upper bound", n: 10000, want: StrategyBatch},
		{name: "just past batch", n: 10001, want: StrategyStream},
		{name: "large input is stream", n: 50000, want: StrategyStream},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, SelectStrategy(tc.n, table).Name)
		})
	}
}

func TestStrategyTable_PartitionsSizeDomain(t *testing.T) {
	table := StrategyTable(DefaultThresholds())

	// Every size is covered by exactly one strategy range.
	for n := 0; n <= 20000; n++ {
		covering := 0
		for _, s := range table {
			if n >= s.MinSize && (s.MaxSize == Unbounded || n <= s.MaxSize) {
				covering++
			}
		}
		require.Equalf(t, 1, covering, "size %d covered by %d strategies", n, covering)
	}
}

func TestSelectStrategy_FallbackIsSmallestFootprint(t *testing.T) {
	// A malformed table with a gap must still return the first entry.
	table := []StrategyDescriptor{
		{Name: StrategyDirect, MinSize: 0, MaxSize: 10},
		{Name: StrategyStream, MinSize: 100, MaxSize: Unbounded},
	}
	require.Equal(t, StrategyDirect, SelectStrategy(50, table).Name)
}

func TestStrategyTable_NormalizesBadThresholds(t *testing.T) {
	table := StrategyTable(Thresholds{DirectMax: -5, BatchMax: -1})
	def := StrategyTable(DefaultThresholds())
	require.Equal(t, def, table)
}

func TestStrategyDescriptors_Flags(t *testing.T) {
	table := StrategyTable(DefaultThresholds())
	require.False(t, table[0].Parallelizable, "direct never fans out")
	require.True(t, table[1].Parallelizable)
	require.True(t, table[2].Parallelizable)
	require.Equal(t, Unbounded, table[2].MaxSize)
}
