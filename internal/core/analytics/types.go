package analytics

import (
	"time"

	"github.com/shopspring/decimal"
)

// Dataset kinds understood by the aggregation engine.
// Each kind has its own accumulator shape and merge function.
const (
	DatasetRetirements = "retirements"
	DatasetProjects    = "projects"
)

// Group-by fields recognized on retirement transactions.
const (
	FieldProject       = "project"
	FieldPaymentMethod = "payment_method"
	FieldMethodology   = "methodology"
	FieldActor         = "actor"
)

// ValidGroupField reports whether field is a recognized group-by field.
func ValidGroupField(field string) bool {
	switch field {
	case FieldProject, FieldPaymentMethod, FieldMethodology, FieldActor:
		return true
	}
	return false
}

// UnknownGroup is the bucket for records missing the grouped field.
// Malformed records are never dropped from totals, only grouped here.
const UnknownGroup = "Unknown"

// Transaction is one credit retirement as delivered by the upstream source.
// Immutable after ingestion; lives only for the duration of one aggregation call.
type Transaction struct {
	ID            string          `json:"id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Amount        decimal.Decimal `json:"amount"` // currency paid
	CO2e          decimal.Decimal `json:"co2e"`   // tonnes retired
	ProjectID     string          `json:"project_id"`
	PaymentMethod string          `json:"payment_method"`
	Methodology   string          `json:"methodology"`
	ActorID       string          `json:"actor_id"`
}

// GroupValue returns the transaction's value for a group-by field.
// Missing or unrecognized fields map to UnknownGroup.
func (t Transaction) GroupValue(field string) string {
	var v string
	switch field {
	case FieldProject:
		v = t.ProjectID
	case FieldPaymentMethod:
		v = t.PaymentMethod
	case FieldMethodology:
		v = t.Methodology
	case FieldActor:
		v = t.ActorID
	}
	if v == "" {
		return UnknownGroup
	}
	return v
}

// Timeframe restricts an aggregation to [Start, End) and, when Interval is
// set, requests a time series at that granularity.
type Timeframe struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Interval Interval  `json:"interval,omitempty"`
}

// SortSpec orders breakdown groups before a Limit is applied.
type SortSpec struct {
	Field     string `json:"field"`     // amount, co2e, count
	Direction string `json:"direction"` // asc, desc
}

// Options describes one aggregation request. Must serialize into a
// deterministic cache key: see CacheKey.
type Options struct {
	Dataset   string            `json:"dataset"`
	GroupBy   []string          `json:"group_by,omitempty"`
	Metrics   []string          `json:"metrics,omitempty"`
	Filters   map[string]string `json:"filters,omitempty"`
	Timeframe *Timeframe        `json:"timeframe,omitempty"`
	Sort      *SortSpec         `json:"sort,omitempty"`
	Limit     int               `json:"limit,omitempty"`
}

// Totals is the top-level rollup of an aggregation.
type Totals struct {
	Count  int64           `json:"count"`
	Amount decimal.Decimal `json:"amount"`
	CO2e   decimal.Decimal `json:"co2e"`
}

// GroupStat is one group's share of a breakdown.
// Percentage is of total amount; 0 when the total is zero.
type GroupStat struct {
	Count      int64           `json:"count"`
	Amount     decimal.Decimal `json:"amount"`
	CO2e       decimal.Decimal `json:"co2e"`
	Percentage float64         `json:"percentage"`
	Actors     int64           `json:"actors,omitempty"` // distinct actors; projects dataset only
}

// Meta carries per-request bookkeeping alongside a result.
type Meta struct {
	CacheHit         bool      `json:"cache_hit"`
	Strategy         string    `json:"strategy"`
	ProcessingTimeMs int64     `json:"processing_time_ms"`
	TotalRecords     int       `json:"total_records"`
	ProcessedRecords int       `json:"processed_records"`
	ComputedAt       time.Time `json:"computed_at"`
}

// Result is the output of one aggregation: totals, per-field breakdowns and
// an optional time series.
type Result struct {
	Dataset string                          `json:"dataset"`
	Totals  Totals                          `json:"totals"`
	Groups  map[string]map[string]GroupStat `json:"groups,omitempty"` // field -> group value -> stat
	Series  []Point                         `json:"series,omitempty"`
	Meta    Meta                            `json:"meta"`
}
