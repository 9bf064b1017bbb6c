package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/oarkflow/errors"
	"github.com/oarkflow/log"

	"github.com/oarkflow/pipeline/pkg/config"
	"github.com/oarkflow/pipeline/pkg/contracts"
	"github.com/oarkflow/pipeline/pkg/sinks"
	"github.com/oarkflow/pipeline/pkg/utils"
)

// DestinationStream identifies where accepted records were routed.
type DestinationStream struct {
	Org  string
	Name string
	Type string
}

// NoIndex marks records that came out of a result-array transform: the
// whole-batch program may add, drop, or reorder elements, so the original
// input position is no longer meaningful.
const NoIndex = -1

// IndexedRecord pairs an accepted record with its position in the input
// batch (NoIndex downstream of a result-array function).
type IndexedRecord struct {
	Index  int
	Record utils.Record
}

// item is what flows between node tasks: the record, its input position,
// and whether it has already been flattened.
type item struct {
	index     int
	record    utils.Record
	flattened bool
}

type routedRecord struct {
	index  int
	dest   DestinationStream
	record utils.Record
}

type nodeError struct {
	nodeID   string
	nodeKind string
	msg      string
}

type compiledFunction struct {
	program       contracts.Program
	isResultArray bool
}

// Dependencies are the external collaborators the engine consumes. Writer
// is required only for pipelines with remote destinations; Functions and
// Compiler only for pipelines with function nodes. A nil Errors sink falls
// back to logging.
type Dependencies struct {
	Functions contracts.FunctionStore
	Compiler  contracts.Compiler
	Writer    contracts.StreamWriter
	Errors    contracts.ErrorSink
	Limits    config.Limits
	Logger    *log.Logger
}

// ExecutablePipeline is one compiled pipeline version: sorted node order,
// node map, and compiled function map, all immutable after construction
// and safe to share across concurrent batches. The batch accumulator for
// remote destinations is the only mutable state and carries its own lock.
type ExecutablePipeline struct {
	id       string
	name     string
	org      string
	sourceID string
	sorted   []string
	nodes    map[string]*ExecutableNode

	functions   map[string]*compiledFunction
	accumulator *accumulator
	errorSink   contracts.ErrorSink
	limits      config.Limits
	logger      *log.Logger
}

var errMultipleRoots = errors.New("pipeline must have exactly one source node")

// New compiles a pipeline definition into an executable instance: validates
// the definition, sorts the graph, and compiles every referenced transform
// exactly once. Cyclic graphs, multi-root graphs, and compile failures are
// construction-fatal.
func New(ctx context.Context, def *config.Pipeline, deps Dependencies) (*ExecutablePipeline, error) {
	if def == nil {
		return nil, errors.New("pipeline definition is nil")
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = &log.DefaultLogger
	}
	errorSink := deps.Errors
	if errorSink == nil {
		errorSink = sinks.NewLogSink(logger)
	}
	limits := deps.Limits
	limits.Normalize()

	nodes := buildNodes(def)
	ids := make([]string, 0, len(def.Nodes))
	adjacency := make(map[string][]string, len(def.Nodes))
	for _, n := range def.Nodes {
		ids = append(ids, n.ID)
		adjacency[n.ID] = nodes[n.ID].children
	}
	sorted, err := topoSort(ids, adjacency)
	if err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", def.ID, err)
	}

	indegree := make(map[string]int, len(nodes))
	for _, children := range adjacency {
		for _, child := range children {
			indegree[child]++
		}
	}
	roots := 0
	for _, id := range ids {
		if indegree[id] == 0 {
			roots++
		}
	}
	if roots != 1 {
		return nil, fmt.Errorf("pipeline %s: %w (found %d roots)", def.ID, errMultipleRoots, roots)
	}
	sourceID := sorted[0]
	switch nodes[sourceID].node.Type {
	case config.NodeTypeStream, config.NodeTypeQuery:
	default:
		return nil, fmt.Errorf("pipeline %s: source node %s must be a stream or query node", def.ID, sourceID)
	}

	functions := make(map[string]*compiledFunction)
	for _, id := range sorted {
		n := nodes[id]
		if n.node.Type != config.NodeTypeFunction {
			continue
		}
		if deps.Functions == nil || deps.Compiler == nil {
			return nil, fmt.Errorf("pipeline %s: node %s needs a function store and compiler", def.ID, id)
		}
		source, err := deps.Functions.GetTransform(ctx, def.Org, n.node.Function.Name)
		if err != nil {
			return nil, fmt.Errorf("pipeline %s: resolving function %q: %w", def.ID, n.node.Function.Name, err)
		}
		program, err := deps.Compiler.Compile(source, def.Org)
		if err != nil {
			return nil, fmt.Errorf("pipeline %s: compiling function %q: %w", def.ID, n.node.Function.Name, err)
		}
		functions[id] = &compiledFunction{
			program:       program,
			isResultArray: contracts.IsResultArray(source),
		}
	}

	hasRemote := false
	for _, n := range nodes {
		if n.node.Type == config.NodeTypeRemoteStream {
			hasRemote = true
			break
		}
	}
	if hasRemote && deps.Writer == nil {
		return nil, fmt.Errorf("pipeline %s: remote destinations need a stream writer", def.ID)
	}

	return &ExecutablePipeline{
		id:          def.ID,
		name:        def.Name,
		org:         def.Org,
		sourceID:    sourceID,
		sorted:      sorted,
		nodes:       nodes,
		functions:   functions,
		accumulator: newAccumulator(deps.Writer, limits, logger),
		errorSink:   errorSink,
		limits:      limits,
		logger:      logger,
	}, nil
}

func (p *ExecutablePipeline) ID() string   { return p.id }
func (p *ExecutablePipeline) Name() string { return p.name }
func (p *ExecutablePipeline) Org() string  { return p.org }

// NumFunctions reports how many compiled transforms the pipeline carries.
func (p *ExecutablePipeline) NumFunctions() int { return len(p.functions) }

// SortedNodes returns the execution order; the first element is the source.
func (p *ExecutablePipeline) SortedNodes() []string {
	out := make([]string, len(p.sorted))
	copy(out, p.sorted)
	return out
}

// sourceStream is the source node's stream descriptor, used to tag error
// reports and to decide whether seeded records need flattening.
func (p *ExecutablePipeline) sourceStream() config.StreamParams {
	n := p.nodes[p.sourceID].node
	switch n.Type {
	case config.NodeTypeStream:
		return *n.Stream
	case config.NodeTypeQuery:
		return n.Query.Stream
	}
	return config.StreamParams{}
}

// QuerySchedule returns the cron expression of a query-sourced pipeline.
func (p *ExecutablePipeline) QuerySchedule() (string, bool) {
	n := p.nodes[p.sourceID].node
	if n.Type == config.NodeTypeQuery && n.Query.Schedule != "" {
		return n.Query.Schedule, true
	}
	return "", false
}

// DestinationStreams lists the static sink streams. Sinks whose name is a
// "{field}" template resolve per record and are excluded.
func (p *ExecutablePipeline) DestinationStreams() []DestinationStream {
	var out []DestinationStream
	for _, id := range p.sorted {
		n := p.nodes[id]
		if !n.isLeaf() || n.node.Type != config.NodeTypeStream {
			continue
		}
		if strings.Contains(n.node.Stream.Name, "{") {
			continue
		}
		org := n.node.Stream.Org
		if org == "" {
			org = p.org
		}
		name := n.node.Stream.Name
		if p.limits.LowercaseStreamNames {
			name = strings.ToLower(name)
		}
		out = append(out, DestinationStream{Org: org, Name: name, Type: n.node.Stream.Type})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Org != out[j].Org {
			return out[i].Org < out[j].Org
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// ProcessBatch routes every record of the batch through the graph: one
// goroutine per node, bounded channels sized to the batch, fan-out per the
// edges. It returns the accepted records per destination. Individual record
// failures never fail the batch; they are aggregated into one error report
// and published to the error sink. Only task crashes (or cancellation)
// surface as an error.
func (p *ExecutablePipeline) ProcessBatch(ctx context.Context, org string, records []utils.Record, streamHint string) (map[DestinationStream][]IndexedRecord, error) {
	results := make(map[DestinationStream][]IndexedRecord)
	if len(records) == 0 {
		return results, nil
	}
	if org == "" {
		org = p.org
	}
	capacity := len(records)

	inbound := make(map[string]chan item, len(p.sorted))
	for _, id := range p.sorted {
		inbound[id] = make(chan item, capacity)
	}
	resultCh := make(chan routedRecord, capacity)
	errCh := make(chan nodeError, capacity)

	// A node's inbound channel closes once its last producer finishes; the
	// orchestrator counts as the source's only producer.
	producers := make(map[string]*int32, len(p.sorted))
	for _, id := range p.sorted {
		producers[id] = new(int32)
	}
	for _, id := range p.sorted {
		for _, child := range p.nodes[id].children {
			atomic.AddInt32(producers[child], 1)
		}
	}
	atomic.AddInt32(producers[p.sourceID], 1)

	var crashMu sync.Mutex
	var crashes []string

	var wg sync.WaitGroup
	for _, id := range p.sorted {
		n := p.nodes[id]
		t := &task{
			pipeline:   p,
			node:       n,
			ctx:        ctx,
			org:        org,
			streamHint: streamHint,
			in:         inbound[id],
			errs:       errCh,
			fn:         p.functions[id],
		}
		for _, child := range n.children {
			t.outs = append(t.outs, inbound[child])
		}
		if n.isLeaf() {
			t.results = resultCh
		}
		wg.Add(1)
		go func(n *ExecutableNode, t *task) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					crashMu.Lock()
					crashes = append(crashes, fmt.Sprintf("node %s: %v", n.id, r))
					crashMu.Unlock()
				}
				for _, child := range n.children {
					if atomic.AddInt32(producers[child], -1) == 0 {
						close(inbound[child])
					}
				}
			}()
			t.run()
		}(n, t)
	}

	var errs []nodeError
	var collectWG sync.WaitGroup
	collectWG.Add(2)
	go func() {
		defer collectWG.Done()
		for r := range resultCh {
			results[r.dest] = append(results[r.dest], IndexedRecord{Index: r.index, Record: r.record})
		}
	}()
	go func() {
		defer collectWG.Done()
		for e := range errCh {
			errs = append(errs, e)
		}
	}()

	flattened := p.sourceStream().Type == "metrics"
seed:
	for i, rec := range records {
		select {
		case inbound[p.sourceID] <- item{index: i, record: rec, flattened: flattened}:
		case <-ctx.Done():
			break seed
		}
	}
	if atomic.AddInt32(producers[p.sourceID], -1) == 0 {
		close(inbound[p.sourceID])
	}

	wg.Wait()
	close(resultCh)
	close(errCh)
	collectWG.Wait()

	if len(errs) > 0 {
		p.publishReport(ctx, org, streamHint, errs)
	}
	if len(crashes) > 0 {
		return nil, fmt.Errorf("pipeline %s: node tasks crashed: %s", p.id, strings.Join(crashes, "; "))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.logger.Debug().
		Str("pipeline_id", p.id).
		Str("org", org).
		Int("records_in", len(records)).
		Int("errors", len(errs)).
		Msg("batch processed")
	return results, nil
}

// Flush force-flushes every buffered remote-destination batch; used on
// shutdown so partial buffers are not lost.
func (p *ExecutablePipeline) Flush(ctx context.Context) error {
	return p.accumulator.flushAll(ctx)
}
