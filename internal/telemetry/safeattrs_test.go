package telemetry

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesFiltersSecrets(t *testing.T) {
	kvs := map[string]any{
		"prompt":          "should drop",
		"content":         "drop",
		"api_key":         "sk-123",
		"token":           "abc",
		"redacted_text":   "Hi [PERSON]",
		"input_sample":    "Hi John",
		"authorization":   "secret",
		"long_string":     strings.Repeat("x", 600),
		"short_string":    "fine",
		"entity_count":    3,
		"detector_budget": int64(5000),
		"generate":        true,
		"score":           42.5,
		"entity_types":    make([]string, 40),
		"unsupported":     struct{}{},
	}

	attrs := SafeAttributes(kvs)
	keys := make([]string, 0, len(attrs))
	for _, a := range attrs {
		keys = append(keys, string(a.Key))
	}
	assert.Equal(t, []string{"detector_budget", "entity_count", "entity_types", "generate", "score", "short_string"}, keys)

	for _, a := range attrs {
		if a.Key == "entity_types" {
			assert.Equal(t, attribute.STRINGSLICE, a.Value.Type())
			assert.Len(t, a.Value.AsStringSlice(), maxSliceAttr)
		}
	}
	assert.Nil(t, SafeAttributes(nil))
}
