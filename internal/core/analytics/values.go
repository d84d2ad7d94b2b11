package analytics

import "github.com/shopspring/decimal"

// ValidMetric reports whether field names a known transaction metric.
func ValidMetric(field string) bool {
	switch field {
	case "amount", "co2e", "quantity", "count":
		return true
	}
	return false
}

// MetricValue extracts the numeric metric named by field from a transaction.
// Unrecognized fields fall back to the paid amount.
func MetricValue(tx Transaction, field string) float64 {
	switch field {
	case "co2e", "quantity":
		return tx.CO2e.InexactFloat64()
	case "count":
		return 1
	default:
		return tx.Amount.InexactFloat64()
	}
}

// SampleValue pulls a numeric value out of a loosely-typed sample object.
// Checks "value" then "amount"; first non-null wins. The second return is
// false when neither field holds a usable number.
func SampleValue(sample map[string]any) (float64, bool) {
	for _, field := range []string{"value", "amount"} {
		raw, ok := sample[field]
		if !ok || raw == nil {
			continue
		}
		d, ok := coerceDecimal(raw)
		if !ok {
			continue
		}
		return d.InexactFloat64(), true
	}
	return 0, false
}

// coerceDecimal converts common JSON numeric shapes to an exact decimal.
// JSON numbers unmarshal to float64 in Go — that's the common path.
func coerceDecimal(v any) (decimal.Decimal, bool) {
	switch val := v.(type) {
	case float64:
		return decimal.NewFromFloat(val), true
	case float32:
		return decimal.NewFromFloat(float64(val)), true
	case int:
		return decimal.NewFromInt(int64(val)), true
	case int64:
		return decimal.NewFromInt(val), true
	case int32:
		return decimal.NewFromInt(int64(val)), true
	case string:
		d, err := decimal.NewFromString(val)
		if err == nil {
			return d, true
		}
	}
	return decimal.Decimal{}, false
}
