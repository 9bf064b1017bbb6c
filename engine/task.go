package engine

import (
	"context"

	"github.com/oarkflow/pipeline/pkg/config"
	"github.com/oarkflow/pipeline/pkg/utils"
)

// task is the per-batch worker for one node: it consumes items from its
// inbound channel until closure and produces to each child's inbound
// channel (or to the shared result/error channels when it is a leaf).
type task struct {
	pipeline   *ExecutablePipeline
	node       *ExecutableNode
	ctx        context.Context
	org        string
	streamHint string

	in      <-chan item
	outs    []chan<- item
	results chan<- routedRecord
	errs    chan<- nodeError

	fn *compiledFunction
}

func (t *task) run() {
	switch t.node.node.Type {
	case config.NodeTypeStream:
		if t.node.isLeaf() {
			t.runStreamSink()
		} else {
			t.runFanOut()
		}
	case config.NodeTypeQuery:
		// Query sources behave like interior stream nodes; the kind exists
		// for provenance only.
		t.runFanOut()
	case config.NodeTypeCondition:
		t.runCondition()
	case config.NodeTypeFunction:
		if t.fn.isResultArray {
			t.runFunctionBatch()
		} else {
			t.runFunction()
		}
	case config.NodeTypeRemoteStream:
		t.runRemote()
	}
}

// receive blocks for the next item; ok is false once the inbound channel
// closes or the batch context is cancelled.
func (t *task) receive() (item, bool) {
	select {
	case it, ok := <-t.in:
		return it, ok
	case <-t.ctx.Done():
		return item{}, false
	}
}

func (t *task) send(out chan<- item, it item) bool {
	select {
	case out <- it:
		return true
	case <-t.ctx.Done():
		return false
	}
}

// fanOut forwards an item to every child in edge order. A single child
// receives the item as-is; multiple children each get their own deep copy
// so branches can mutate independently.
func (t *task) fanOut(it item) {
	if len(t.outs) == 0 {
		return
	}
	if len(t.outs) == 1 {
		t.send(t.outs[0], it)
		return
	}
	for i, out := range t.outs {
		clone := it
		clone.record = utils.CloneRecord(it.record)
		if !t.send(out, clone) {
			t.pipeline.logger.Debug().
				Str("node_id", t.node.id).
				Str("child", t.node.children[i]).
				Msg("fan-out aborted")
			return
		}
	}
}

func (t *task) runFanOut() {
	for {
		it, ok := t.receive()
		if !ok {
			return
		}
		t.fanOut(it)
	}
}

func (t *task) emit(r routedRecord) {
	select {
	case t.results <- r:
	case <-t.ctx.Done():
	}
}

func (t *task) reportError(msg string) {
	e := nodeError{
		nodeID:   t.node.id,
		nodeKind: string(t.node.node.Type),
		msg:      msg,
	}
	select {
	case t.errs <- e:
	case <-t.ctx.Done():
	}
}

// ensureFlattened flattens the record in place if it has not been yet.
// A flatten failure is reported and false returned; the caller drops the
// record and keeps going.
func (t *task) ensureFlattened(it *item) bool {
	if it.flattened {
		return true
	}
	flat, err := utils.Flatten(it.record, t.pipeline.limits.MaxNestingLevel)
	if err != nil {
		t.reportError(err.Error())
		return false
	}
	it.record = flat
	it.flattened = true
	return true
}
