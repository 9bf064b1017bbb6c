package engine

import (
	"context"
	"time"

	"github.com/oarkflow/xid/wuid"

	"github.com/oarkflow/pipeline/pkg/contracts"
)

// publishReport aggregates the batch's per-record errors into one report,
// grouped by node, and publishes it exactly once. Publish failures are
// logged, never raised: error reporting is fire-and-forget.
func (p *ExecutablePipeline) publishReport(ctx context.Context, org, streamHint string, errs []nodeError) {
	source := p.sourceStream()
	streamName := source.Name
	if streamName == "" {
		streamName = streamHint
	}

	byNode := make(map[string]*contracts.NodeErrors)
	var order []string
	for _, e := range errs {
		group, ok := byNode[e.nodeID]
		if !ok {
			group = &contracts.NodeErrors{NodeID: e.nodeID, NodeKind: e.nodeKind}
			byNode[e.nodeID] = group
			order = append(order, e.nodeID)
		}
		group.Errors = append(group.Errors, e.msg)
	}
	nodes := make([]contracts.NodeErrors, 0, len(order))
	for _, id := range order {
		nodes = append(nodes, *byNode[id])
	}

	report := &contracts.ErrorReport{
		ID:           wuid.New().String(),
		PipelineID:   p.id,
		PipelineName: p.name,
		Org:          org,
		StreamName:   streamName,
		StreamType:   source.Type,
		Timestamp:    time.Now().UTC(),
		Nodes:        nodes,
	}
	if err := p.errorSink.Publish(ctx, report); err != nil {
		p.logger.Warn().
			Err(err).
			Str("pipeline_id", p.id).
			Str("report_id", report.ID).
			Msg("failed to publish error report")
	}
}
