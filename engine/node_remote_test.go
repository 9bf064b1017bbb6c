package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/oarkflow/pipeline/pkg/config"
	"github.com/oarkflow/pipeline/pkg/utils"
	"github.com/oarkflow/pipeline/pkg/writers"
)

func TestEpochToMicros(t *testing.T) {
	base := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	micros := base.UnixMicro()

	tests := []struct {
		name string
		in   int64
		want int64
	}{
		{"seconds", base.Unix(), micros},
		{"milliseconds", base.UnixMilli(), micros},
		{"microseconds", micros, micros},
		{"nanoseconds", base.UnixNano(), micros},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := epochToMicros(tt.in); got != tt.want {
				t.Fatalf("epochToMicros(%d) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeTimestamp(t *testing.T) {
	limits := config.DefaultLimits()

	t.Run("missing defaults to now", func(t *testing.T) {
		rec := utils.Record{"msg": "x"}
		before := time.Now().UTC().UnixMicro()
		if err := normalizeTimestamp(rec, limits); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got, ok := rec[timestampField].(int64)
		if !ok {
			t.Fatalf("expected int64 micros, got %T", rec[timestampField])
		}
		after := time.Now().UTC().UnixMicro()
		if got < before || got > after {
			t.Fatalf("timestamp %d outside [%d, %d]", got, before, after)
		}
	})

	t.Run("epoch seconds converted", func(t *testing.T) {
		now := time.Now().UTC()
		rec := utils.Record{timestampField: now.Unix()}
		if err := normalizeTimestamp(rec, limits); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := rec[timestampField].(int64); got != now.Unix()*1e6 {
			t.Fatalf("expected %d, got %d", now.Unix()*1e6, got)
		}
	})

	t.Run("string timestamp parsed", func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Second)
		rec := utils.Record{timestampField: now.Format(time.RFC3339)}
		if err := normalizeTimestamp(rec, limits); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := rec[timestampField].(int64); got != now.UnixMicro() {
			t.Fatalf("expected %d, got %d", now.UnixMicro(), got)
		}
	})

	t.Run("too old rejected", func(t *testing.T) {
		rec := utils.Record{timestampField: time.Now().Add(-48 * time.Hour).Unix()}
		err := normalizeTimestamp(rec, limits)
		if err == nil || !strings.Contains(err.Error(), "ingestion window") {
			t.Fatalf("expected window rejection, got %v", err)
		}
	})

	t.Run("too far future rejected", func(t *testing.T) {
		rec := utils.Record{timestampField: time.Now().Add(2 * time.Hour).Unix()}
		if err := normalizeTimestamp(rec, limits); err == nil {
			t.Fatal("expected window rejection")
		}
	})

	t.Run("garbage rejected", func(t *testing.T) {
		rec := utils.Record{timestampField: []string{"nope"}}
		if err := normalizeTimestamp(rec, limits); err == nil {
			t.Fatal("expected unparsable timestamp error")
		}
	})
}

func TestRemoteDestinationBatchKeyRouting(t *testing.T) {
	def := &config.Pipeline{
		ID: "p1", Name: "remote", Org: "org1",
		Nodes: []config.Node{
			streamNode("src", "in", "logs"),
			{
				ID:           "dest",
				Type:         config.NodeTypeRemoteStream,
				RemoteStream: &config.RemoteStreamParams{Destination: "warehouse"},
			},
		},
		Edges: []config.Edge{{Source: "src", Target: "dest"}},
	}
	sink := &capturingSink{}
	deps := testDeps(t, sink, nil, nil)
	limits := config.DefaultLimits()
	limits.FlushRecordCount = 2
	deps.Limits = limits
	writer := deps.Writer.(*writers.MemoryWriter)
	p := mustBuild(t, def, deps)

	records := []utils.Record{
		{"msg": "a"},
		{"msg": "b"},
		{"msg": "c", "batch_key": "tenant-x"},
		{"msg": "bad", "_timestamp": time.Now().Add(-72 * time.Hour).Unix()},
	}
	if _, err := p.ProcessBatch(context.Background(), "org1", records, "in"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Two records under the default key trip the count threshold.
	defaults := writer.Writes("org1", "warehouse", "default")
	if len(defaults) != 1 || len(defaults[0]) != 2 {
		t.Fatalf("expected one flush of 2 default-key records, got %v", defaults)
	}
	// The keyed record buffers until Flush drains it.
	if writes := writer.Writes("org1", "warehouse", "tenant-x"); len(writes) != 0 {
		t.Fatalf("tenant-x should still be buffered, got %v", writes)
	}
	if err := p.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	keyed := writer.Writes("org1", "warehouse", "tenant-x")
	if len(keyed) != 1 || len(keyed[0]) != 1 {
		t.Fatalf("expected tenant-x flush of 1 record, got %v", keyed)
	}

	// The stale-timestamp record was dropped and reported.
	reports := sink.all()
	if len(reports) != 1 {
		t.Fatalf("expected one error report, got %d", len(reports))
	}
	if reports[0].Nodes[0].NodeID != "dest" {
		t.Fatalf("expected error on node dest, got %+v", reports[0].Nodes)
	}
}
