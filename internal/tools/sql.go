package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"
)

// MaxResultRows caps how many rows a query result renders. The persona
// prompt also instructs the model to limit generated queries, but the cap
// here is what actually bounds the context.
const MaxResultRows = 100

// warehouseQueryTimeout bounds a single warehouse query so a slow statement
// cannot hang the tool loop.
const warehouseQueryTimeout = 30 * time.Second

// Rows is the subset of pgx.Rows the renderer needs.
type Rows interface {
	Next() bool
	Values() ([]any, error)
	Columns() []string
	Err() error
	Close()
}

// RowQuerier abstracts the warehouse connection. *pgxadapter.Pool satisfies
// it in production; tests supply a fake.
type RowQuerier interface {
	Query(ctx context.Context, sql string) (Rows, error)
}

// Warehouse implements the execute_sql tool against a read-only merchant
// data warehouse.
//
// Safety: the query text always comes from the model, generated from the
// user's natural-language intent. The persona prompt forbids executing
// literal user-supplied SQL; nothing in this tool ever sees raw user input.
type Warehouse struct {
	db     RowQuerier
	logger *slog.Logger
}

// NewWarehouse creates the SQL tool. db may be nil when no warehouse is
// configured; execution then reports the missing connection as a result.
func NewWarehouse(db RowQuerier, logger *slog.Logger) *Warehouse {
	return &Warehouse{db: db, logger: logger}
}

// Execute runs the query and renders the result as an aligned text table.
// All failures are returned as result text so the model can inform the
// user or reformulate the query.
func (w *Warehouse) Execute(ctx context.Context, args SQLArgs) string {
	query := strings.TrimSpace(args.Query)
	if query == "" {
		return "SQL execution error: empty query"
	}
	if w.db == nil {
		return "SQL execution error: warehouse connection is not configured"
	}

	w.logger.Debug("executing warehouse query", "query_length", len(query))

	queryCtx, cancel := context.WithTimeout(ctx, warehouseQueryTimeout)
	defer cancel()

	rows, err := w.db.Query(queryCtx, query)
	if err != nil {
		w.logger.Warn("warehouse query failed", "error", err)
		return fmt.Sprintf("SQL execution error: %v", err)
	}
	defer rows.Close()

	var values [][]any
	truncated := false
	for rows.Next() {
		if len(values) == MaxResultRows {
			truncated = true
			break
		}
		v, err := rows.Values()
		if err != nil {
			return fmt.Sprintf("SQL execution error: %v", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return fmt.Sprintf("SQL execution error: %v", err)
	}

	w.logger.Debug("warehouse query succeeded", "rows", len(values), "truncated", truncated)
	return renderTable(rows.Columns(), values, truncated)
}

// renderTable formats a result set as a tab-aligned table with a row-count
// footer.
func renderTable(columns []string, rows [][]any, truncated bool) string {
	if len(rows) == 0 {
		return "Query returned no rows."
	}

	var sb strings.Builder
	tw := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(columns, "\t"))
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = renderValue(v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	_ = tw.Flush()

	fmt.Fprintf(&sb, "(%d rows", len(rows))
	if truncated {
		fmt.Fprintf(&sb, ", capped at %d", MaxResultRows)
	}
	sb.WriteString(")")
	return sb.String()
}

func renderValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(val)
	case time.Time:
		return val.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprintf("%v", val)
	}
}
