package engine

import (
	"strings"

	"github.com/oarkflow/convert"

	"github.com/oarkflow/pipeline/pkg/config"
	"github.com/oarkflow/pipeline/pkg/utils"
)

// runCondition evaluates the node's predicates as a logical AND against the
// flattened record. Matches forward to every child (already flattened);
// non-matches are dropped silently because filtering is not a fault.
func (t *task) runCondition() {
	conditions := t.node.node.Condition.Conditions
	for {
		it, ok := t.receive()
		if !ok {
			return
		}
		if !t.ensureFlattened(&it) {
			continue
		}
		if !matchesAll(conditions, it.record) {
			continue
		}
		t.fanOut(it)
	}
}

func matchesAll(conditions []config.Condition, rec utils.Record) bool {
	for _, c := range conditions {
		if !matches(c, rec) {
			return false
		}
	}
	return true
}

// matches dispatches on the runtime type of the record's column value.
// A missing column never matches.
func matches(c config.Condition, rec utils.Record) bool {
	val, ok := rec[c.Column]
	if !ok {
		return false
	}
	switch v := val.(type) {
	case string:
		return matchString(c, v)
	case bool:
		want, ok := convert.ToBool(c.Value)
		if !ok {
			return false
		}
		switch c.Operator {
		case "=":
			return v == want
		case "!=":
			return v != want
		}
		return false
	case nil:
		switch c.Operator {
		case "=":
			return c.Value == nil
		case "!=":
			return c.Value != nil
		}
		return false
	default:
		return matchNumeric(c, val)
	}
}

func matchString(c config.Condition, got string) bool {
	want, _ := convert.ToString(c.Value)
	if c.IgnoreCase {
		got = strings.ToLower(got)
		want = strings.ToLower(want)
	}
	switch c.Operator {
	case "=":
		return got == want
	case "!=":
		return got != want
	case ">":
		return got > want
	case ">=":
		return got >= want
	case "<":
		return got < want
	case "<=":
		return got <= want
	case "contains":
		return strings.Contains(got, want)
	case "not_contains":
		return !strings.Contains(got, want)
	}
	return false
}

func matchNumeric(c config.Condition, val any) bool {
	got, ok := convert.ToFloat64(val)
	if !ok {
		return false
	}
	want, ok := convert.ToFloat64(c.Value)
	if !ok {
		return false
	}
	switch c.Operator {
	case "=":
		return got == want
	case "!=":
		return got != want
	case ">":
		return got > want
	case ">=":
		return got >= want
	case "<":
		return got < want
	case "<=":
		return got <= want
	}
	return false
}
