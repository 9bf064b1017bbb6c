package engine

import (
	"testing"

	"github.com/oarkflow/pipeline/pkg/config"
	"github.com/oarkflow/pipeline/pkg/utils"
)

func TestMatches(t *testing.T) {
	rec := utils.Record{
		"level":   "Error",
		"status":  404,
		"latency": 12.5,
		"active":  true,
		"trace":   nil,
	}

	tests := []struct {
		name string
		cond config.Condition
		want bool
	}{
		{"string equal", config.Condition{Column: "level", Operator: "=", Value: "Error"}, true},
		{"string equal case mismatch", config.Condition{Column: "level", Operator: "=", Value: "error"}, false},
		{"string equal ignore case", config.Condition{Column: "level", Operator: "=", Value: "ERROR", IgnoreCase: true}, true},
		{"string not equal", config.Condition{Column: "level", Operator: "!=", Value: "info"}, true},
		{"string contains", config.Condition{Column: "level", Operator: "contains", Value: "rro"}, true},
		{"string not contains", config.Condition{Column: "level", Operator: "not_contains", Value: "warn"}, true},
		{"string unknown operator", config.Condition{Column: "level", Operator: "~", Value: "Error"}, false},

		{"int equal", config.Condition{Column: "status", Operator: "=", Value: 404}, true},
		{"int equal as string", config.Condition{Column: "status", Operator: "=", Value: "404"}, true},
		{"int greater", config.Condition{Column: "status", Operator: ">", Value: 400}, true},
		{"int less fails", config.Condition{Column: "status", Operator: "<", Value: 400}, false},
		{"float ge", config.Condition{Column: "latency", Operator: ">=", Value: 12.5}, true},
		{"numeric junk value", config.Condition{Column: "status", Operator: "=", Value: "not-a-number"}, false},

		{"bool equal", config.Condition{Column: "active", Operator: "=", Value: true}, true},
		{"bool not equal", config.Condition{Column: "active", Operator: "!=", Value: false}, true},
		{"bool ordering unsupported", config.Condition{Column: "active", Operator: ">", Value: false}, false},

		{"nil equal", config.Condition{Column: "trace", Operator: "=", Value: nil}, true},
		{"nil not equal", config.Condition{Column: "trace", Operator: "!=", Value: "x"}, true},

		{"missing column", config.Condition{Column: "absent", Operator: "=", Value: "x"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matches(tt.cond, rec); got != tt.want {
				t.Fatalf("matches(%+v) = %v, want %v", tt.cond, got, tt.want)
			}
		})
	}
}

func TestMatchesAll(t *testing.T) {
	rec := utils.Record{"level": "error", "status": 500}
	conds := []config.Condition{
		{Column: "level", Operator: "=", Value: "error"},
		{Column: "status", Operator: ">=", Value: 500},
	}
	if !matchesAll(conds, rec) {
		t.Fatal("expected both conditions to match")
	}
	conds = append(conds, config.Condition{Column: "status", Operator: "<", Value: 500})
	if matchesAll(conds, rec) {
		t.Fatal("one failing condition must reject the record")
	}
	if !matchesAll(nil, rec) {
		t.Fatal("empty condition list matches everything")
	}
}
