package tools

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolQuerier adapts a pgx connection pool to the RowQuerier interface.
type PoolQuerier struct {
	pool *pgxpool.Pool
}

// NewPoolQuerier wraps a pgx pool for the execute_sql tool.
func NewPoolQuerier(pool *pgxpool.Pool) *PoolQuerier {
	return &PoolQuerier{pool: pool}
}

// Query runs the statement on the pool.
func (p *PoolQuerier) Query(ctx context.Context, sql string) (Rows, error) {
	rows, err := p.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("warehouse query: %w", err)
	}
	return &pgxRows{Rows: rows}, nil
}

// pgxRows exposes pgx.Rows with column names extracted from the field
// descriptions.
type pgxRows struct {
	pgx.Rows
}

func (r *pgxRows) Columns() []string {
	fields := r.FieldDescriptions()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Name
	}
	return cols
}
