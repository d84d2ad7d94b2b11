package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	core "github.com/carbonscope-lab/carbonscope/internal/core/analytics"
)

func TestCacheKey_DeterministicAcrossFilterOrder(t *testing.T) {
	opts := core.Options{
		Dataset: core.DatasetRetirements,
		GroupBy: []string{core.FieldProject, core.FieldPaymentMethod},
		Metrics: []string{"amount"},
		Filters: map[string]string{"methodology": "VM0007", "payment_method": "card", "project": "prj-a"},
		Timeframe: &core.Timeframe{
			Start:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			End:      time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
			Interval: core.IntervalDay,
		},
		Sort:  &core.SortSpec{Field: "amount", Direction: "desc"},
		Limit: 10,
	}

	want := CacheKey(opts)
	// Map iteration order must never leak into the key.
	for range 50 {
		require.Equal(t, want, CacheKey(opts))
	}
}

func TestCacheKey_DistinguishesRequests(t *testing.T) {
	base := core.Options{Dataset: core.DatasetRetirements, GroupBy: []string{core.FieldProject}}

	variants := []core.Options{
		{Dataset: core.DatasetProjects, GroupBy: []string{core.FieldProject}},
		{Dataset: core.DatasetRetirements, GroupBy: []string{core.FieldPaymentMethod}},
		{Dataset: core.DatasetRetirements, GroupBy: []string{core.FieldProject}, Limit: 5},
		{Dataset: core.DatasetRetirements, GroupBy: []string{core.FieldProject}, Filters: map[string]string{"project": "x"}},
		{Dataset: core.DatasetRetirements, GroupBy: []string{core.FieldProject}, Sort: &core.SortSpec{Field: "count", Direction: "asc"}},
	}

	seen := map[string]bool{CacheKey(base): true}
	for _, opts := range variants {
		key := CacheKey(opts)
		require.Falsef(t, seen[key], "key collision: %s", key)
		seen[key] = true
	}
}

func TestCacheKey_PrefixScopesDataset(t *testing.T) {
	key := CacheKey(core.Options{Dataset: core.DatasetRetirements})
	require.Contains(t, key, "agg:v1:retirements|")

	other := CacheKey(core.Options{Dataset: core.DatasetProjects})
	require.NotContains(t, other, "agg:v1:retirements|")
}
