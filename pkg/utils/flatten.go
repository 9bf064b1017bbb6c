package utils

import (
	"fmt"
	"strings"

	"github.com/oarkflow/json"
)

// DefaultMaxNestingLevel bounds how deep Flatten descends before the
// remaining subtree is stored as an encoded string.
const DefaultMaxNestingLevel = 3

// Flatten converts nested maps into a single-level record with "_"-joined,
// sanitized keys. Subtrees deeper than maxLevel and all arrays are kept as
// JSON-encoded strings. Two source keys that sanitize to the same flattened
// key are an error.
func Flatten(rec Record, maxLevel int) (Record, error) {
	if maxLevel <= 0 {
		maxLevel = DefaultMaxNestingLevel
	}
	out := make(Record, len(rec))
	if err := flattenInto(out, "", rec, 1, maxLevel); err != nil {
		return nil, err
	}
	return out, nil
}

func flattenInto(out Record, prefix string, m Record, depth, maxLevel int) error {
	for k, v := range m {
		key := SanitizeKey(k)
		if prefix != "" {
			key = prefix + "_" + key
		}
		switch vv := v.(type) {
		case map[string]any:
			if depth >= maxLevel {
				enc, err := json.Marshal(vv)
				if err != nil {
					return fmt.Errorf("flatten: encoding subtree %q: %w", key, err)
				}
				if err := setFlattened(out, key, string(enc)); err != nil {
					return err
				}
				continue
			}
			if err := flattenInto(out, key, vv, depth+1, maxLevel); err != nil {
				return err
			}
		case []any:
			enc, err := json.Marshal(vv)
			if err != nil {
				return fmt.Errorf("flatten: encoding array %q: %w", key, err)
			}
			if err := setFlattened(out, key, string(enc)); err != nil {
				return err
			}
		default:
			if err := setFlattened(out, key, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func setFlattened(out Record, key string, v any) error {
	if _, dup := out[key]; dup {
		return fmt.Errorf("flatten: key collision on %q", key)
	}
	out[key] = v
	return nil
}

// SanitizeKey lowercases a key and replaces anything outside [a-z0-9_]
// so flattened field names are stable across sources.
func SanitizeKey(k string) string {
	var b strings.Builder
	b.Grow(len(k))
	for _, r := range k {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
