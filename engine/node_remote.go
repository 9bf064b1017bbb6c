package engine

import (
	"fmt"
	"time"

	"github.com/oarkflow/convert"
	"github.com/oarkflow/date"

	"github.com/oarkflow/pipeline/pkg/config"
	"github.com/oarkflow/pipeline/pkg/utils"
)

const (
	timestampField  = "_timestamp"
	batchKeyField   = "batch_key"
	defaultBatchKey = "default"
)

// runRemote validates and clamps each record's timestamp, groups accepted
// records by their batch_key routing field, and appends them to the keyed
// accumulator. A flush failure is reported but not retried here; the write
// path owns durability.
func (t *task) runRemote() {
	params := t.node.node.RemoteStream
	org := params.Org
	if org == "" {
		org = t.org
	}
	for {
		it, ok := t.receive()
		if !ok {
			return
		}
		if !t.ensureFlattened(&it) {
			continue
		}
		if err := normalizeTimestamp(it.record, t.pipeline.limits); err != nil {
			t.reportError(fmt.Sprintf("destination %s: %v", params.Destination, err))
			continue
		}
		routingKey := defaultBatchKey
		if v, ok := utils.GetField(it.record, batchKeyField); ok {
			if s, _ := convert.ToString(v); s != "" {
				routingKey = s
			}
		}
		key := flushKey{
			pipelineID:  t.pipeline.id,
			org:         org,
			destination: params.Destination,
			routingKey:  routingKey,
		}
		if err := t.pipeline.accumulator.add(t.ctx, key, it.record); err != nil {
			t.reportError(fmt.Sprintf("destination %s: write failed: %v", params.Destination, err))
			continue
		}
		t.fanOut(it)
	}
}

// normalizeTimestamp parses the record's _timestamp (epoch of any
// precision, string, or time.Time; missing defaults to now), rejects values
// outside the allowed ingestion window, and stores it back as microseconds.
func normalizeTimestamp(rec utils.Record, limits config.Limits) error {
	now := time.Now().UTC()
	ts := now
	if v, ok := rec[timestampField]; ok {
		switch tv := v.(type) {
		case time.Time:
			ts = tv
		case string:
			parsed, err := date.Parse(tv)
			if err != nil {
				return fmt.Errorf("unparsable timestamp %q", tv)
			}
			ts = parsed
		default:
			n, ok := convert.ToInt64(v)
			if !ok {
				return fmt.Errorf("unparsable timestamp %v", v)
			}
			ts = time.UnixMicro(epochToMicros(n)).UTC()
		}
	}
	if ts.Before(now.Add(-limits.IngestWindowPast)) || ts.After(now.Add(limits.IngestWindowFuture)) {
		return fmt.Errorf("timestamp %s outside allowed ingestion window", ts.Format(time.RFC3339))
	}
	rec[timestampField] = ts.UnixMicro()
	return nil
}

// epochToMicros guesses the precision of a bare epoch number by magnitude.
func epochToMicros(n int64) int64 {
	switch {
	case n >= 1e17:
		return n / 1e3 // nanoseconds
	case n >= 1e14:
		return n // microseconds
	case n >= 1e11:
		return n * 1e3 // milliseconds
	default:
		return n * 1e6 // seconds
	}
}
