package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type NodeType string

const (
	NodeTypeStream       NodeType = "stream"
	NodeTypeQuery        NodeType = "query"
	NodeTypeCondition    NodeType = "condition"
	NodeTypeFunction     NodeType = "function"
	NodeTypeRemoteStream NodeType = "remote_stream"
)

// StreamParams identifies a source or sink stream. Name may contain
// "{field}" placeholders resolved per record at the sink.
type StreamParams struct {
	Org  string `yaml:"org,omitempty" json:"org,omitempty"`
	Name string `yaml:"name" json:"name"`
	Type string `yaml:"type" json:"type"`
}

// QueryParams describes a scheduled derived-stream source.
type QueryParams struct {
	Stream   StreamParams `yaml:"stream" json:"stream"`
	SQL      string       `yaml:"sql,omitempty" json:"sql,omitempty"`
	Schedule string       `yaml:"schedule,omitempty" json:"schedule,omitempty"`
}

// Condition is one predicate; a condition node ANDs all of its conditions.
type Condition struct {
	Column     string `yaml:"column" json:"column"`
	Operator   string `yaml:"operator" json:"operator"`
	Value      any    `yaml:"value" json:"value"`
	IgnoreCase bool   `yaml:"ignore_case,omitempty" json:"ignore_case,omitempty"`
}

type ConditionParams struct {
	Conditions []Condition `yaml:"conditions" json:"conditions"`
}

type FunctionParams struct {
	Name string `yaml:"name" json:"name"`
	// AfterFlatten makes the record flatten before the function runs.
	AfterFlatten bool `yaml:"after_flatten,omitempty" json:"after_flatten,omitempty"`
}

type RemoteStreamParams struct {
	Org         string `yaml:"org,omitempty" json:"org,omitempty"`
	Destination string `yaml:"destination" json:"destination"`
}

// Node is one stage of the pipeline graph. Exactly one of the parameter
// fields must be set, matching Type.
type Node struct {
	ID           string              `yaml:"id" json:"id"`
	Type         NodeType            `yaml:"type" json:"type"`
	Stream       *StreamParams       `yaml:"stream,omitempty" json:"stream,omitempty"`
	Query        *QueryParams        `yaml:"query,omitempty" json:"query,omitempty"`
	Condition    *ConditionParams    `yaml:"condition,omitempty" json:"condition,omitempty"`
	Function     *FunctionParams     `yaml:"function,omitempty" json:"function,omitempty"`
	RemoteStream *RemoteStreamParams `yaml:"remote_stream,omitempty" json:"remote_stream,omitempty"`
}

func (n Node) Validate() error {
	if n.ID == "" {
		return fmt.Errorf("node id must not be empty")
	}
	set := 0
	for _, ok := range []bool{
		n.Stream != nil, n.Query != nil, n.Condition != nil,
		n.Function != nil, n.RemoteStream != nil,
	} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("node %s: exactly one parameter block must be set, got %d", n.ID, set)
	}
	switch n.Type {
	case NodeTypeStream:
		if n.Stream == nil {
			return fmt.Errorf("node %s: type stream requires stream params", n.ID)
		}
		if n.Stream.Name == "" {
			return fmt.Errorf("node %s: stream name must not be empty", n.ID)
		}
	case NodeTypeQuery:
		if n.Query == nil {
			return fmt.Errorf("node %s: type query requires query params", n.ID)
		}
	case NodeTypeCondition:
		if n.Condition == nil || len(n.Condition.Conditions) == 0 {
			return fmt.Errorf("node %s: type condition requires at least one condition", n.ID)
		}
	case NodeTypeFunction:
		if n.Function == nil || n.Function.Name == "" {
			return fmt.Errorf("node %s: type function requires a function name", n.ID)
		}
	case NodeTypeRemoteStream:
		if n.RemoteStream == nil || n.RemoteStream.Destination == "" {
			return fmt.Errorf("node %s: type remote_stream requires a destination", n.ID)
		}
	default:
		return fmt.Errorf("node %s: unknown node type %q", n.ID, n.Type)
	}
	return nil
}

type Edge struct {
	Source string `yaml:"source" json:"source"`
	Target string `yaml:"target" json:"target"`
}

// Pipeline is the declarative definition the engine compiles into an
// executable instance. It is immutable input; one definition version maps
// to one executable pipeline.
type Pipeline struct {
	ID    string `yaml:"id" json:"id"`
	Name  string `yaml:"name" json:"name"`
	Org   string `yaml:"org" json:"org"`
	Nodes []Node `yaml:"nodes" json:"nodes"`
	Edges []Edge `yaml:"edges" json:"edges"`
}

func (p *Pipeline) Validate() error {
	if len(p.Nodes) == 0 {
		return fmt.Errorf("pipeline %s: no nodes defined", p.ID)
	}
	seen := make(map[string]struct{}, len(p.Nodes))
	for _, n := range p.Nodes {
		if err := n.Validate(); err != nil {
			return fmt.Errorf("pipeline %s: %w", p.ID, err)
		}
		if _, dup := seen[n.ID]; dup {
			return fmt.Errorf("pipeline %s: duplicate node id %q", p.ID, n.ID)
		}
		seen[n.ID] = struct{}{}
	}
	for _, e := range p.Edges {
		if _, ok := seen[e.Source]; !ok {
			return fmt.Errorf("pipeline %s: edge source %q is not a node", p.ID, e.Source)
		}
		if _, ok := seen[e.Target]; !ok {
			return fmt.Errorf("pipeline %s: edge target %q is not a node", p.ID, e.Target)
		}
		if e.Source == e.Target {
			return fmt.Errorf("pipeline %s: self edge on %q", p.ID, e.Source)
		}
	}
	return nil
}

// LoadPipeline reads a pipeline definition from a YAML file.
func LoadPipeline(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pipeline file: %w", err)
	}
	var p Pipeline
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing pipeline file: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Limits carries the engine's operational knobs: flatten depth, remote
// destination flush thresholds, the allowed ingestion time window, and the
// global stream-name formatting policy.
type Limits struct {
	MaxNestingLevel      int           `yaml:"max_nesting_level" json:"max_nesting_level"`
	FlushRecordCount     int           `yaml:"flush_record_count" json:"flush_record_count"`
	FlushByteSize        int           `yaml:"flush_byte_size" json:"flush_byte_size"`
	FlushInterval        time.Duration `yaml:"flush_interval" json:"flush_interval"`
	IngestWindowPast     time.Duration `yaml:"ingest_window_past" json:"ingest_window_past"`
	IngestWindowFuture   time.Duration `yaml:"ingest_window_future" json:"ingest_window_future"`
	LowercaseStreamNames bool          `yaml:"lowercase_stream_names" json:"lowercase_stream_names"`
}

func DefaultLimits() Limits {
	return Limits{
		MaxNestingLevel:      3,
		FlushRecordCount:     50,
		FlushByteSize:        32 * 1024,
		FlushInterval:        5000 * time.Millisecond,
		IngestWindowPast:     24 * time.Hour,
		IngestWindowFuture:   time.Hour,
		LowercaseStreamNames: true,
	}
}

// Normalize fills zero-valued fields with defaults.
func (l *Limits) Normalize() {
	def := DefaultLimits()
	if l.MaxNestingLevel <= 0 {
		l.MaxNestingLevel = def.MaxNestingLevel
	}
	if l.FlushRecordCount <= 0 {
		l.FlushRecordCount = def.FlushRecordCount
	}
	if l.FlushByteSize <= 0 {
		l.FlushByteSize = def.FlushByteSize
	}
	if l.FlushInterval <= 0 {
		l.FlushInterval = def.FlushInterval
	}
	if l.IngestWindowPast <= 0 {
		l.IngestWindowPast = def.IngestWindowPast
	}
	if l.IngestWindowFuture <= 0 {
		l.IngestWindowFuture = def.IngestWindowFuture
	}
}
