package analytics

import (
	"sort"
	"time"
)

// Interval is a time-series bucket granularity.
type Interval string

const (
	IntervalHour  Interval = "hour"
	IntervalDay   Interval = "day"
	IntervalWeek  Interval = "week"
	IntervalMonth Interval = "month"
)

// ValidInterval reports whether i is a supported bucket granularity.
func ValidInterval(i Interval) bool {
	switch i {
	case IntervalHour, IntervalDay, IntervalWeek, IntervalMonth:
		return true
	}
	return false
}

// Aggregation functions applied per bucket.
const (
	AggSum   = "sum"
	AggAvg   = "avg"
	AggMax   = "max"
	AggMin   = "min"
	AggCount = "count"
)

// Sample is one timestamped value fed to the time-series builder.
type Sample struct {
	At    time.Time
	Value float64
}

// Point is one chart-ready time-series point. Key formats are zero-padded and
// left-to-right significant, so lexicographic order is chronological order.
type Point struct {
	Key   string  `json:"bucket"`
	Value float64 `json:"value"`
}

// BucketKey computes the interval key for a timestamp. Boundaries derive
// purely from the granularity, never from wall-clock now.
// hour → "2006-01-02 15:00", day → "2006-01-02", week → the ISO week's
// Monday as "2006-01-02", month → "2006-01".
func BucketKey(t time.Time, interval Interval) string {
	t = t.UTC()
	switch interval {
	case IntervalHour:
		return t.Format("2006-01-02 15:00")
	case IntervalWeek:
		// Back up to Monday, the ISO week start. Sunday counts as day 7.
		offset := (int(t.Weekday()) + 6) % 7
		return t.AddDate(0, 0, -offset).Format("2006-01-02")
	case IntervalMonth:
		return t.Format("2006-01")
	default:
		return t.Format("2006-01-02")
	}
}

// BuildSeries groups samples into interval buckets, applies fn over each
// bucket and emits one point per non-empty bucket, ascending by bucket key.
func BuildSeries(samples []Sample, interval Interval, fn string) []Point {
	if len(samples) == 0 {
		return nil
	}

	buckets := make(map[string][]float64)
	for _, s := range samples {
		key := BucketKey(s.At, interval)
		buckets[key] = append(buckets[key], s.Value)
	}

	points := make([]Point, 0, len(buckets))
	for key, values := range buckets {
		points = append(points, Point{Key: key, Value: applyAggregate(fn, values)})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Key < points[j].Key })
	return points
}

func applyAggregate(fn string, values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	switch fn {
	case AggCount:
		return float64(len(values))
	case AggAvg:
		return sumOf(values) / float64(len(values))
	case AggMax:
		m := values[0]
		for _, v := range values[1:] {
			if v > m {
				m = v
			}
		}
		return m
	case AggMin:
		m := values[0]
		for _, v := range values[1:] {
			if v < m {
				m = v
			}
		}
		return m
	default:
		return sumOf(values)
	}
}

func sumOf(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum
}

// Downsample reduces a series to at most maxPoints points by averaging stride
// windows. Each output point takes the window's first bucket key and the
// arithmetic mean of the window's values. Windowed averaging is chosen over
// peak sampling: consumers plot smooth trends, not extremes.
func Downsample(points []Point, maxPoints int) []Point {
	if maxPoints <= 0 || len(points) <= maxPoints {
		return points
	}

	// Ceiling division keeps the output under the hard cardinality bound.
	step := (len(points) + maxPoints - 1) / maxPoints

	out := make([]Point, 0, maxPoints)
	for start := 0; start < len(points); start += step {
		end := start + step
		if end > len(points) {
			end = len(points)
		}
		var sum float64
		for _, p := range points[start:end] {
			sum += p.Value
		}
		out = append(out, Point{
			Key:   points[start].Key,
			Value: sum / float64(end-start),
		})
	}
	return out
}
