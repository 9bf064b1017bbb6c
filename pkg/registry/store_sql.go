package registry

import (
	"context"
	"fmt"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/pipeline/pkg/contracts"
)

// SQLStore resolves transform sources from a functions table. The caller
// owns the database handle and its driver registration.
type SQLStore struct {
	db    *squealx.DB
	table string
}

func NewSQLStore(db *squealx.DB, table string) *SQLStore {
	if table == "" {
		table = "functions"
	}
	return &SQLStore{db: db, table: table}
}

func (s *SQLStore) GetTransform(ctx context.Context, org, name string) (string, error) {
	q := fmt.Sprintf("SELECT body FROM %s WHERE org = ? AND name = ?", s.table)
	rows, err := s.db.QueryContext(ctx, q, org, name)
	if err != nil {
		return "", fmt.Errorf("querying transform %s/%s: %w", org, name, err)
	}
	defer rows.Close()
	if !rows.Next() {
		return "", fmt.Errorf("transform %s/%s not found", org, name)
	}
	var body string
	if err := rows.Scan(&body); err != nil {
		return "", fmt.Errorf("scanning transform %s/%s: %w", org, name, err)
	}
	return body, nil
}

var _ contracts.FunctionStore = (*SQLStore)(nil)
