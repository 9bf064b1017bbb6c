package writers

import (
	"context"
	"fmt"
	"time"

	"github.com/oarkflow/json"
	"github.com/oarkflow/squealx"

	"github.com/oarkflow/pipeline/pkg/contracts"
	"github.com/oarkflow/pipeline/pkg/utils"
)

// SQLWriter appends flushed batches to a destination table as JSON rows.
// The caller owns the database handle and its driver registration.
type SQLWriter struct {
	db    *squealx.DB
	table string
}

func NewSQLWriter(db *squealx.DB, table string) *SQLWriter {
	if table == "" {
		table = "stream_records"
	}
	return &SQLWriter{db: db, table: table}
}

func (w *SQLWriter) Write(ctx context.Context, org, destination, routingKey string, records []utils.Record) error {
	q := fmt.Sprintf(
		"INSERT INTO %s (org, destination, routing_key, payload, created_at) VALUES (?, ?, ?, ?, ?)",
		w.table,
	)
	now := time.Now().UTC()
	for _, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encoding record for %s/%s: %w", org, destination, err)
		}
		if _, err := w.db.ExecContext(ctx, q, org, destination, routingKey, string(payload), now); err != nil {
			return fmt.Errorf("writing to %s/%s: %w", org, destination, err)
		}
	}
	return nil
}

var _ contracts.StreamWriter = (*SQLWriter)(nil)
