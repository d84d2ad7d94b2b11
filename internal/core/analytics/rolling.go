package analytics

import "math"

// WindowStats summarizes the numeric values inside one rolling window.
type WindowStats struct {
	Sum   float64 `json:"sum"`
	Avg   float64 `json:"avg"`
	Max   float64 `json:"max"`
	Min   float64 `json:"min"`
	Count int     `json:"count"`
}

// RealTimeStats is a point-in-time snapshot over the rolling suffix of a
// sequence. Recomputed fully on each call; windowSize is bounded, so the
// rescan is cheap.
type RealTimeStats struct {
	Current    WindowStats `json:"current"`
	Trend      float64     `json:"trend"`      // % change of avg vs the previous window
	Volatility float64     `json:"volatility"` // population stddev of the current window
	Momentum   float64     `json:"momentum"`   // % change of final-third avg vs first-third avg
}

// CalculateRealTimeStats computes trend, volatility and momentum over the
// last windowSize values. The previous window is the windowSize values
// immediately preceding the current one; when history is insufficient the
// previous window is empty and trend is 0.
func CalculateRealTimeStats(values []float64, windowSize int) RealTimeStats {
	if windowSize < 1 || len(values) == 0 {
		return RealTimeStats{}
	}

	curStart := len(values) - windowSize
	if curStart < 0 {
		curStart = 0
	}
	current := values[curStart:]

	prevStart := curStart - windowSize
	if prevStart < 0 {
		prevStart = 0
	}
	previous := values[prevStart:curStart]

	curStats := windowStats(current)
	prevStats := windowStats(previous)

	stats := RealTimeStats{
		Current:    curStats,
		Volatility: populationStddev(current, curStats.Avg),
		Momentum:   momentum(current),
	}
	if prevStats.Count > 0 && prevStats.Avg != 0 {
		stats.Trend = (curStats.Avg - prevStats.Avg) / prevStats.Avg * 100
	}
	return stats
}

func windowStats(values []float64) WindowStats {
	if len(values) == 0 {
		return WindowStats{}
	}
	s := WindowStats{Max: values[0], Min: values[0], Count: len(values)}
	for _, v := range values {
		s.Sum += v
		if v > s.Max {
			s.Max = v
		}
		if v < s.Min {
			s.Min = v
		}
	}
	s.Avg = s.Sum / float64(len(values))
	return s
}

func populationStddev(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var varianceSum float64
	for _, v := range values {
		varianceSum += (v - mean) * (v - mean)
	}
	return math.Sqrt(varianceSum / float64(len(values)))
}

// momentum compares the mean of the window's final third against the mean of
// its first third, as a percentage. 0 when the earlier mean is 0.
func momentum(window []float64) float64 {
	third := len(window) / 3
	if third < 1 {
		third = 1
	}
	earlier := mean(window[:third])
	recent := mean(window[len(window)-third:])
	if earlier == 0 {
		return 0
	}
	return (recent - earlier) / earlier * 100
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return sumOf(values) / float64(len(values))
}
