package engine

import (
	"context"
	"sync"
	"time"

	"github.com/oarkflow/json"
	"github.com/oarkflow/log"

	"github.com/oarkflow/pipeline/pkg/config"
	"github.com/oarkflow/pipeline/pkg/contracts"
	"github.com/oarkflow/pipeline/pkg/utils"
)

type flushKey struct {
	pipelineID  string
	org         string
	destination string
	routingKey  string
}

type bufferEntry struct {
	records   []utils.Record
	bytes     int
	lastFlush time.Time
}

// accumulator buffers remote-destination records across batches and hands
// them to the stream writer once a count, byte, or age threshold trips.
// One lock guards the keyed map; buffers are swapped out, never written
// while the lock is held.
type accumulator struct {
	mu      sync.Mutex
	entries map[flushKey]*bufferEntry
	limits  config.Limits
	writer  contracts.StreamWriter
	logger  *log.Logger
}

func newAccumulator(writer contracts.StreamWriter, limits config.Limits, logger *log.Logger) *accumulator {
	return &accumulator{
		entries: make(map[flushKey]*bufferEntry),
		limits:  limits,
		writer:  writer,
		logger:  logger,
	}
}

// add appends a record under its flush key and performs the flush itself
// when a threshold trips, after releasing the lock.
func (a *accumulator) add(ctx context.Context, key flushKey, rec utils.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	a.mu.Lock()
	entry, ok := a.entries[key]
	if !ok {
		entry = &bufferEntry{lastFlush: time.Now()}
		a.entries[key] = entry
	}
	entry.records = append(entry.records, rec)
	entry.bytes += len(data)

	var flush []utils.Record
	if len(entry.records) >= a.limits.FlushRecordCount ||
		entry.bytes >= a.limits.FlushByteSize ||
		time.Since(entry.lastFlush) >= a.limits.FlushInterval {
		flush = entry.records
		entry.records = nil
		entry.bytes = 0
		entry.lastFlush = time.Now()
	}
	a.mu.Unlock()

	if flush == nil {
		return nil
	}
	a.logger.Debug().
		Str("org", key.org).
		Str("destination", key.destination).
		Str("routing_key", key.routingKey).
		Int("records", len(flush)).
		Msg("flushing destination buffer")
	return a.writer.Write(ctx, key.org, key.destination, key.routingKey, flush)
}

// flushAll drains every non-empty buffer; used on shutdown.
func (a *accumulator) flushAll(ctx context.Context) error {
	a.mu.Lock()
	pending := make(map[flushKey][]utils.Record, len(a.entries))
	for key, entry := range a.entries {
		if len(entry.records) == 0 {
			continue
		}
		pending[key] = entry.records
		entry.records = nil
		entry.bytes = 0
		entry.lastFlush = time.Now()
	}
	a.mu.Unlock()

	var firstErr error
	for key, records := range pending {
		if err := a.writer.Write(ctx, key.org, key.destination, key.routingKey, records); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// buffered reports how many records are waiting under a key; used by tests
// and metrics surfaces.
func (a *accumulator) buffered(key flushKey) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if entry, ok := a.entries[key]; ok {
		return len(entry.records)
	}
	return 0
}
