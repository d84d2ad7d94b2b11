package cache

import (
	"fmt"
	"reflect"
	"time"
)

// Stats is a point-in-time health snapshot. Hit and miss rates are running
// fractions over every Get since the cache was created.
type Stats struct {
	Size          int     `json:"size"`
	HitRate       float64 `json:"hit_rate"`
	MissRate      float64 `json:"miss_rate"`
	Evictions     int64   `json:"evictions"`
	TotalRequests int64   `json:"total_requests"`
}

// Stats returns the current counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Size:          len(c.entries),
		Evictions:     c.evictions,
		TotalRequests: c.totalRequests,
	}
	if c.totalRequests > 0 {
		s.HitRate = float64(c.hits) / float64(c.totalRequests)
		s.MissRate = float64(c.misses) / float64(c.totalRequests)
	}
	return s
}

// ValidationResult is a diagnostic scan of the cache, never a blocking gate.
// Expired-but-unswept entries are warnings; nil payloads are errors.
type ValidationResult struct {
	Healthy  bool     `json:"healthy"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Validate scans all entries and reports findings.
func (c *Cache[V]) Validate() ValidationResult {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	res := ValidationResult{Healthy: true}
	for key, e := range c.entries {
		if !e.live(now) {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("entry %q expired %s ago but not yet swept", key, now.Sub(e.expiresAt).Round(time.Millisecond)))
		}
		if isNilPayload(e.value) {
			res.Errors = append(res.Errors, fmt.Sprintf("entry %q has nil payload", key))
			res.Healthy = false
		}
	}
	return res
}

// isNilPayload catches both untyped and typed nils behind the generic value.
func isNilPayload(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
