package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validPipeline() *Pipeline {
	return &Pipeline{
		ID: "p1", Name: "test", Org: "org1",
		Nodes: []Node{
			{ID: "src", Type: NodeTypeStream, Stream: &StreamParams{Name: "in", Type: "logs"}},
			{ID: "cond", Type: NodeTypeCondition, Condition: &ConditionParams{
				Conditions: []Condition{{Column: "level", Operator: "=", Value: "error"}},
			}},
			{ID: "out", Type: NodeTypeStream, Stream: &StreamParams{Name: "errors", Type: "logs"}},
		},
		Edges: []Edge{
			{Source: "src", Target: "cond"},
			{Source: "cond", Target: "out"},
		},
	}
}

func TestPipelineValidateAccepts(t *testing.T) {
	if err := validPipeline().Validate(); err != nil {
		t.Fatalf("valid pipeline rejected: %v", err)
	}
}

func TestPipelineValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Pipeline)
		want   string
	}{
		{"no nodes", func(p *Pipeline) { p.Nodes = nil }, "no nodes"},
		{"duplicate node id", func(p *Pipeline) { p.Nodes = append(p.Nodes, p.Nodes[0]) }, "duplicate node id"},
		{"unknown edge source", func(p *Pipeline) { p.Edges[0].Source = "ghost" }, "not a node"},
		{"unknown edge target", func(p *Pipeline) { p.Edges[0].Target = "ghost" }, "not a node"},
		{"self edge", func(p *Pipeline) { p.Edges[0].Target = "src" }, "self edge"},
		{"empty node id", func(p *Pipeline) { p.Nodes[0].ID = "" }, "id must not be empty"},
		{"two param blocks", func(p *Pipeline) {
			p.Nodes[0].Function = &FunctionParams{Name: "x"}
		}, "exactly one parameter block"},
		{"type mismatch", func(p *Pipeline) {
			p.Nodes[0].Stream = nil
			p.Nodes[0].Function = &FunctionParams{Name: "x"}
		}, "requires stream params"},
		{"empty stream name", func(p *Pipeline) { p.Nodes[0].Stream.Name = "" }, "stream name"},
		{"condition without predicates", func(p *Pipeline) {
			p.Nodes[1].Condition.Conditions = nil
		}, "at least one condition"},
		{"unknown node type", func(p *Pipeline) { p.Nodes[0].Type = "mystery" }, "unknown node type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPipeline()
			tt.mutate(p)
			err := p.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestNodeValidateRemoteStream(t *testing.T) {
	n := Node{ID: "d", Type: NodeTypeRemoteStream, RemoteStream: &RemoteStreamParams{Destination: "warehouse"}}
	if err := n.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n.RemoteStream.Destination = ""
	if err := n.Validate(); err == nil {
		t.Fatal("expected error for empty destination")
	}
}

func TestLoadPipeline(t *testing.T) {
	doc := `
id: p1
name: errors-only
org: org1
nodes:
  - id: src
    type: stream
    stream:
      name: app_logs
      type: logs
  - id: cond
    type: condition
    condition:
      conditions:
        - column: level
          operator: "="
          value: error
          ignore_case: true
  - id: out
    type: stream
    stream:
      name: errors
      type: logs
edges:
  - source: src
    target: cond
  - source: cond
    target: out
`
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	p, err := LoadPipeline(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID != "p1" || len(p.Nodes) != 3 || len(p.Edges) != 2 {
		t.Fatalf("unexpected pipeline: %+v", p)
	}
	cond := p.Nodes[1]
	if cond.Type != NodeTypeCondition || len(cond.Condition.Conditions) != 1 {
		t.Fatalf("unexpected condition node: %+v", cond)
	}
	c := cond.Condition.Conditions[0]
	if c.Column != "level" || c.Operator != "=" || c.Value != "error" || !c.IgnoreCase {
		t.Fatalf("unexpected condition: %+v", c)
	}
}

func TestLoadPipelineRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	if err := os.WriteFile(path, []byte("id: p1\nnodes: []\n"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	if _, err := LoadPipeline(path); err == nil {
		t.Fatal("expected validation error")
	}
	if _, err := LoadPipeline(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected read error")
	}
}

func TestLimitsNormalize(t *testing.T) {
	var l Limits
	l.Normalize()
	def := DefaultLimits()
	if l.MaxNestingLevel != def.MaxNestingLevel ||
		l.FlushRecordCount != def.FlushRecordCount ||
		l.FlushByteSize != def.FlushByteSize ||
		l.FlushInterval != def.FlushInterval {
		t.Fatalf("zero limits not normalized: %+v", l)
	}

	custom := Limits{FlushRecordCount: 10, FlushInterval: time.Second}
	custom.Normalize()
	if custom.FlushRecordCount != 10 || custom.FlushInterval != time.Second {
		t.Fatalf("explicit values overwritten: %+v", custom)
	}
	if custom.MaxNestingLevel != def.MaxNestingLevel {
		t.Fatalf("missing values not filled: %+v", custom)
	}
}
