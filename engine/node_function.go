package engine

import (
	"fmt"

	"github.com/oarkflow/pipeline/pkg/utils"
)

// runFunction applies the compiled program to each record. A transform
// error is reported but the unchanged record is still forwarded; only a
// flatten error drops the record. Successful transforms may nest structures
// again, so the record is marked as not flattened afterwards.
func (t *task) runFunction() {
	name := t.node.node.Function.Name
	for {
		it, ok := t.receive()
		if !ok {
			return
		}
		if t.node.node.Function.AfterFlatten && !it.flattened {
			if !t.ensureFlattened(&it) {
				continue
			}
		}
		out, err := t.fn.program.Eval(it.record)
		if err != nil {
			t.reportError(fmt.Sprintf("function %s: %v", name, err))
			t.fanOut(it)
			continue
		}
		switch res := out.(type) {
		case nil:
		case utils.Record:
			it.record = res
		default:
			t.reportError(fmt.Sprintf("function %s: returned %T, expected a record", name, out))
			t.fanOut(it)
			continue
		}
		it.flattened = false
		t.fanOut(it)
	}
}

// runFunctionBatch accumulates the whole batch, applies the program once
// over it, and forwards each element of the result array with no original
// index: a result-array transform may add, drop, or reorder records, so
// index correlation is documented as broken for this mode.
func (t *task) runFunctionBatch() {
	name := t.node.node.Function.Name
	var batch []any
	for {
		it, ok := t.receive()
		if !ok {
			break
		}
		if t.node.node.Function.AfterFlatten && !it.flattened {
			if !t.ensureFlattened(&it) {
				continue
			}
		}
		batch = append(batch, it.record)
	}
	if len(batch) == 0 {
		return
	}
	env := map[string]any{
		"records": batch,
		"org":     t.org,
		"stream":  t.streamHint,
	}
	out, err := t.fn.program.Eval(env)
	if err != nil {
		t.reportError(fmt.Sprintf("function %s: %v", name, err))
		return
	}
	elems, ok := resultArray(out)
	if !ok {
		t.reportError(fmt.Sprintf("function %s: returned %T, expected a record array", name, out))
		return
	}
	for _, elem := range elems {
		rec, ok := elem.(map[string]any)
		if !ok {
			t.reportError(fmt.Sprintf("function %s: array element is %T, expected a record", name, elem))
			continue
		}
		t.fanOut(item{index: NoIndex, record: rec, flattened: false})
	}
}

func resultArray(out any) ([]any, bool) {
	switch v := out.(type) {
	case []any:
		return v, true
	case []utils.Record:
		elems := make([]any, len(v))
		for i, r := range v {
			elems[i] = r
		}
		return elems, true
	default:
		return nil, false
	}
}
