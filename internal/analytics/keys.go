package analytics

import (
	"sort"
	"strconv"
	"strings"

	core "github.com/carbonscope-lab/carbonscope/internal/core/analytics"
)

const keyVersion = "agg:v1:"

// CacheKey serializes an aggregation request into a deterministic cache key:
// stable field ordering, integer timestamps. Two equal requests always
// produce the same key regardless of map iteration order.
func CacheKey(opts core.Options) string {
	var b strings.Builder
	b.WriteString(keyPrefix(opts.Dataset))

	b.WriteString("g=")
	b.WriteString(strings.Join(opts.GroupBy, ","))

	b.WriteString("|m=")
	b.WriteString(strings.Join(opts.Metrics, ","))

	b.WriteString("|f=")
	if len(opts.Filters) > 0 {
		fields := make([]string, 0, len(opts.Filters))
		for field := range opts.Filters {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		for i, field := range fields {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(field)
			b.WriteByte(':')
			b.WriteString(opts.Filters[field])
		}
	}

	b.WriteString("|tf=")
	if tf := opts.Timeframe; tf != nil {
		b.WriteString(strconv.FormatInt(tf.Start.Unix(), 10))
		b.WriteByte('-')
		b.WriteString(strconv.FormatInt(tf.End.Unix(), 10))
		b.WriteByte('-')
		b.WriteString(string(tf.Interval))
	}

	b.WriteString("|s=")
	if s := opts.Sort; s != nil {
		b.WriteString(s.Field)
		b.WriteByte('.')
		b.WriteString(s.Direction)
	}

	b.WriteString("|l=")
	b.WriteString(strconv.Itoa(opts.Limit))
	return b.String()
}

func keyPrefix(dataset string) string {
	return keyVersion + dataset + "|"
}
