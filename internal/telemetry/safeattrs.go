package telemetry

import (
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Keys containing any of these fragments never become attributes. Span
// attributes leave the process, so anything that could hold user text
// or credentials is dropped.
var denyKeys = []string{
	"prompt",
	"content",
	"text",
	"sample",
	"authorization",
	"api_key",
	"token",
	"email",
	"phone",
	"iban",
	"credit_card",
}

const (
	maxStringAttr = 512
	maxSliceAttr  = 32
)

// SafeAttributes filters out unsafe keys and oversized values and
// returns OTEL attributes sorted by key.
func SafeAttributes(values map[string]any) []attribute.KeyValue {
	if len(values) == 0 {
		return nil
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		if !denied(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var attrs []attribute.KeyValue
	for _, k := range keys {
		switch val := values[k].(type) {
		case string:
			if len(val) > maxStringAttr {
				continue
			}
			attrs = append(attrs, attribute.String(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case float64:
			attrs = append(attrs, attribute.Float64(k, val))
		case []string:
			attrs = append(attrs, attribute.StringSlice(k, truncate(val)))
		case []int:
			ints := truncate(val)
			conv := make([]int64, len(ints))
			for i, n := range ints {
				conv[i] = int64(n)
			}
			attrs = append(attrs, attribute.Int64Slice(k, conv))
		}
	}
	return attrs
}

func denied(key string) bool {
	lk := strings.ToLower(key)
	for _, bad := range denyKeys {
		if strings.Contains(lk, bad) {
			return true
		}
	}
	return false
}

func truncate[T any](in []T) []T {
	if len(in) <= maxSliceAttr {
		return in
	}
	return in[:maxSliceAttr]
}
