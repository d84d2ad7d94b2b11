package analytics

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Tagged accumulators, one per dataset kind. Each is a fixed struct with
// named fields and an explicit merge function, so partial results from chunked
// processing combine without any dynamically-typed intermediate state.

// RetirementAccumulator folds retirement transactions into totals plus one
// breakdown map per requested group-by field.
type RetirementAccumulator struct {
	groupBy []string
	count   int64
	amount  decimal.Decimal
	co2e    decimal.Decimal
	groups  map[string]map[string]*groupAccumulator
}

type groupAccumulator struct {
	count  int64
	amount decimal.Decimal
	co2e   decimal.Decimal
	actors map[string]struct{}
}

// NewRetirementAccumulator returns an empty accumulator for the given
// breakdown fields.
func NewRetirementAccumulator(groupBy []string) *RetirementAccumulator {
	groups := make(map[string]map[string]*groupAccumulator, len(groupBy))
	for _, field := range groupBy {
		groups[field] = make(map[string]*groupAccumulator)
	}
	return &RetirementAccumulator{groupBy: groupBy, groups: groups}
}

// Add folds one transaction into the accumulator.
func (a *RetirementAccumulator) Add(tx Transaction) {
	a.count++
	a.amount = a.amount.Add(tx.Amount)
	a.co2e = a.co2e.Add(tx.CO2e)

	for _, field := range a.groupBy {
		value := tx.GroupValue(field)
		g, ok := a.groups[field][value]
		if !ok {
			g = &groupAccumulator{}
			a.groups[field][value] = g
		}
		g.count++
		g.amount = g.amount.Add(tx.Amount)
		g.co2e = g.co2e.Add(tx.CO2e)
	}
}

// MergeRetirementAccumulators folds src into dst and returns dst.
// A nil dst adopts src unchanged, which makes the zero value a valid fold
// seed for chunked processing.
func MergeRetirementAccumulators(dst, src *RetirementAccumulator) *RetirementAccumulator {
	if dst == nil {
		return src
	}
	if src == nil {
		return dst
	}
	dst.count += src.count
	dst.amount = dst.amount.Add(src.amount)
	dst.co2e = dst.co2e.Add(src.co2e)
	for field, groups := range src.groups {
		for value, g := range groups {
			t, ok := dst.groups[field][value]
			if !ok {
				dst.groups[field][value] = g
				continue
			}
			t.count += g.count
			t.amount = t.amount.Add(g.amount)
			t.co2e = t.co2e.Add(g.co2e)
		}
	}
	return dst
}

// Finalize materializes the accumulator into a Result, computing each group's
// percentage of total amount. Percentages across an exhaustive breakdown sum
// to 100 within rounding; a zero total defines every percentage as 0.
func (a *RetirementAccumulator) Finalize(opts Options) *Result {
	res := &Result{
		Dataset: DatasetRetirements,
		Totals:  Totals{Count: a.count, Amount: a.amount, CO2e: a.co2e},
	}
	if len(a.groupBy) > 0 {
		res.Groups = make(map[string]map[string]GroupStat, len(a.groupBy))
		for field, groups := range a.groups {
			res.Groups[field] = finalizeGroups(groups, a.amount, opts)
		}
	}
	return res
}

// ProjectAccumulator folds transactions into per-project rollups, tracking
// distinct actors per project.
type ProjectAccumulator struct {
	count    int64
	amount   decimal.Decimal
	co2e     decimal.Decimal
	projects map[string]*groupAccumulator
}

// NewProjectAccumulator returns an empty project accumulator.
func NewProjectAccumulator() *ProjectAccumulator {
	return &ProjectAccumulator{projects: make(map[string]*groupAccumulator)}
}

// Add folds one transaction into its project's rollup.
func (a *ProjectAccumulator) Add(tx Transaction) {
	a.count++
	a.amount = a.amount.Add(tx.Amount)
	a.co2e = a.co2e.Add(tx.CO2e)

	project := tx.GroupValue(FieldProject)
	g, ok := a.projects[project]
	if !ok {
		g = &groupAccumulator{actors: make(map[string]struct{})}
		a.projects[project] = g
	}
	g.count++
	g.amount = g.amount.Add(tx.Amount)
	g.co2e = g.co2e.Add(tx.CO2e)
	if tx.ActorID != "" {
		g.actors[tx.ActorID] = struct{}{}
	}
}

// MergeProjectAccumulators folds src into dst and returns dst. Same nil-seed
// contract as MergeRetirementAccumulators.
func MergeProjectAccumulators(dst, src *ProjectAccumulator) *ProjectAccumulator {
	if dst == nil {
		return src
	}
	if src == nil {
		return dst
	}
	dst.count += src.count
	dst.amount = dst.amount.Add(src.amount)
	dst.co2e = dst.co2e.Add(src.co2e)
	for project, g := range src.projects {
		t, ok := dst.projects[project]
		if !ok {
			dst.projects[project] = g
			continue
		}
		t.count += g.count
		t.amount = t.amount.Add(g.amount)
		t.co2e = t.co2e.Add(g.co2e)
		for actor := range g.actors {
			t.actors[actor] = struct{}{}
		}
	}
	return dst
}

// Finalize materializes the per-project rollup into a Result keyed under the
// project field.
func (a *ProjectAccumulator) Finalize(opts Options) *Result {
	return &Result{
		Dataset: DatasetProjects,
		Totals:  Totals{Count: a.count, Amount: a.amount, CO2e: a.co2e},
		Groups: map[string]map[string]GroupStat{
			FieldProject: finalizeGroups(a.projects, a.amount, opts),
		},
	}
}

func finalizeGroups(groups map[string]*groupAccumulator, total decimal.Decimal, opts Options) map[string]GroupStat {
	out := make(map[string]GroupStat, len(groups))
	for value, g := range groups {
		stat := GroupStat{Count: g.count, Amount: g.amount, CO2e: g.co2e}
		if total.IsPositive() {
			pct, _ := g.amount.Div(total).Mul(decimal.NewFromInt(100)).Round(2).Float64()
			stat.Percentage = pct
		}
		if g.actors != nil {
			stat.Actors = int64(len(g.actors))
		}
		out[value] = stat
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = limitGroups(out, opts)
	}
	return out
}

// limitGroups keeps the top Limit groups under the requested sort order
// (descending amount when no sort is given). A limited breakdown is no longer
// exhaustive, so its percentages sum to less than 100.
func limitGroups(groups map[string]GroupStat, opts Options) map[string]GroupStat {
	type ranked struct {
		value string
		stat  GroupStat
	}
	all := make([]ranked, 0, len(groups))
	for value, stat := range groups {
		all = append(all, ranked{value, stat})
	}

	field, direction := "amount", "desc"
	if opts.Sort != nil {
		if opts.Sort.Field != "" {
			field = opts.Sort.Field
		}
		if opts.Sort.Direction != "" {
			direction = opts.Sort.Direction
		}
	}
	sort.Slice(all, func(i, j int) bool {
		cmp := rankKey(all[i].stat, field).Cmp(rankKey(all[j].stat, field))
		if direction == "asc" {
			return cmp < 0
		}
		return cmp > 0
	})

	out := make(map[string]GroupStat, opts.Limit)
	for _, r := range all[:opts.Limit] {
		out[r.value] = r.stat
	}
	return out
}

func rankKey(s GroupStat, field string) decimal.Decimal {
	switch field {
	case "count":
		return decimal.NewFromInt(s.Count)
	case "co2e":
		return s.CO2e
	default:
		return s.Amount
	}
}
