package sinks

import (
	"context"

	"github.com/oarkflow/log"

	"github.com/oarkflow/pipeline/pkg/contracts"
)

// LogSink writes error reports to the structured logger. It is the default
// sink when no broker is wired.
type LogSink struct {
	logger *log.Logger
}

func NewLogSink(logger *log.Logger) *LogSink {
	if logger == nil {
		logger = &log.DefaultLogger
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(_ context.Context, report *contracts.ErrorReport) error {
	for _, node := range report.Nodes {
		for _, msg := range node.Errors {
			s.logger.Warn().
				Str("report_id", report.ID).
				Str("pipeline_id", report.PipelineID).
				Str("pipeline_name", report.PipelineName).
				Str("org", report.Org).
				Str("stream", report.StreamName).
				Str("node_id", node.NodeID).
				Str("node_kind", node.NodeKind).
				Msg(msg)
		}
	}
	return nil
}

var _ contracts.ErrorSink = (*LogSink)(nil)
