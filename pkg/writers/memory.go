package writers

import (
	"context"
	"sync"

	"github.com/oarkflow/pipeline/pkg/contracts"
	"github.com/oarkflow/pipeline/pkg/utils"
)

// MemoryWriter buffers writes in memory, keyed by org/destination/routing
// key. Used in tests and embedded setups.
type MemoryWriter struct {
	mu     sync.Mutex
	writes map[string][][]utils.Record
}

func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{writes: make(map[string][][]utils.Record)}
}

func (w *MemoryWriter) Write(_ context.Context, org, destination, routingKey string, records []utils.Record) error {
	key := org + "/" + destination + "/" + routingKey
	w.mu.Lock()
	w.writes[key] = append(w.writes[key], records)
	w.mu.Unlock()
	return nil
}

// Writes returns the flush batches received for one destination key, in
// arrival order.
func (w *MemoryWriter) Writes(org, destination, routingKey string) [][]utils.Record {
	key := org + "/" + destination + "/" + routingKey
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([][]utils.Record, len(w.writes[key]))
	copy(out, w.writes[key])
	return out
}

var _ contracts.StreamWriter = (*MemoryWriter)(nil)
