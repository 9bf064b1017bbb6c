package utils

import (
	"strings"

	"github.com/oarkflow/dipper"
)

type Record = map[string]any

// CloneRecord deep-copies a record so that concurrent branches can mutate
// their own copy. Nested maps and slices are copied; scalar values are shared.
func CloneRecord(rec Record) Record {
	if rec == nil {
		return nil
	}
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		return CloneRecord(vv)
	case []any:
		out := make([]any, len(vv))
		for i, e := range vv {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// GetField looks up a field by name, falling back to dotted-path traversal
// for records that have not been flattened yet.
func GetField(rec Record, field string) (any, bool) {
	if v, ok := rec[field]; ok {
		return v, true
	}
	if strings.Contains(field, ".") {
		if v, err := dipper.Get(rec, field); err == nil {
			return v, true
		}
	}
	return nil, false
}
