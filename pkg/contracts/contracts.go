package contracts

import (
	"context"
	"strings"
	"time"

	"github.com/oarkflow/pipeline/pkg/utils"
)

// Program is a compiled transform ready to be evaluated against a record
// environment. Per-record programs receive the record itself as the
// environment and must return a record (or nil to leave it unchanged).
// Result-array programs receive {"records": [...], "org": ..., "stream": ...}
// and must return a list of records.
type Program interface {
	Eval(env map[string]any) (any, error)
}

// ProgramFunc adapts a plain function to the Program interface.
type ProgramFunc func(env map[string]any) (any, error)

func (f ProgramFunc) Eval(env map[string]any) (any, error) { return f(env) }

// Compiler turns transform source code into an executable program, scoped
// to the organization the pipeline belongs to.
type Compiler interface {
	Compile(source, org string) (Program, error)
}

// FunctionStore resolves a named transform to its source code.
type FunctionStore interface {
	GetTransform(ctx context.Context, org, name string) (string, error)
}

// StreamWriter is the durable write path for remote destinations. Retry and
// durability are the writer's responsibility; callers do not retry.
type StreamWriter interface {
	Write(ctx context.Context, org, destination, routingKey string, records []utils.Record) error
}

// ErrorSink receives one aggregated report per processed batch that had
// per-record failures. Publishing is fire-and-forget from the engine's
// point of view.
type ErrorSink interface {
	Publish(ctx context.Context, report *ErrorReport) error
}

// QuerySource supplies the input batch for scheduled derived-stream runs.
type QuerySource interface {
	Fetch(ctx context.Context) ([]utils.Record, error)
}

// ResultArrayMarker flags a transform source as whole-batch mode: the
// program runs once over the accumulated batch instead of per record.
const ResultArrayMarker = "#result-array"

// IsResultArray reports whether the source's leading comment lines carry
// the result-array marker.
func IsResultArray(source string) bool {
	for _, line := range strings.Split(source, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "#") {
			return false
		}
		if strings.HasPrefix(line, ResultArrayMarker) {
			return true
		}
	}
	return false
}

// NodeErrors collects the error messages one node produced during a batch.
type NodeErrors struct {
	NodeID   string   `json:"node_id"`
	NodeKind string   `json:"node_kind"`
	Errors   []string `json:"errors"`
}

// ErrorReport is the per-batch aggregate published to the error sink. It is
// tagged with the pipeline identity and the source node's stream descriptor.
type ErrorReport struct {
	ID           string       `json:"id"`
	PipelineID   string       `json:"pipeline_id"`
	PipelineName string       `json:"pipeline_name"`
	Org          string       `json:"org"`
	StreamName   string       `json:"stream_name"`
	StreamType   string       `json:"stream_type"`
	Timestamp    time.Time    `json:"timestamp"`
	Nodes        []NodeErrors `json:"nodes"`
}
