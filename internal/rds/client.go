// internal/rds/client.go
//
// Relational storage executor.
//
// Context
// -------
// `Client` is the only code that talks to a database.  The entity engine
// hands it finished, parameterised SQL and gets rows back as
// map[string]any.  One Client wraps one *sqlx.DB pool and one datasource
// name; the name labels metrics and log lines.
//
// Operations
// ----------
//   - Insert: INSERT built from the record's keys.
//   - Execute: any statement; returns affected rows.
//   - Exists: true when the query yields at least one row.
//   - Query: rows, with LIMIT / OFFSET appended as literals.
//   - QueryWithTotal: COUNT first, rows only when the count is non-zero.
//   - FindOne: first row or nil.
//   - GetOne: first row or ErrNotFound.
//   - Count: COUNT(*) over the statement as a sub-query.
//
// Notes
// -----
//   - Statements are written with `?` placeholders and rebound to the
//     driver's style (`$n` for pgx) just before execution.
//   - []byte column values are returned as strings.
//   - Errors are wrapped with the datasource and operation, never dropped.
//   - Oxford commas, two spaces after periods.
package rds

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yanizio/tenantstore/internal/condition"
	"github.com/yanizio/tenantstore/internal/metrics"
)

// ErrNotFound is returned by GetOne when no row matches.
var ErrNotFound = errors.New("rds: expected record not found")

// InsertResult reports the id of the new row and the affected-row count.
type InsertResult struct {
	InsertID     any   `json:"insert_id"`
	AffectedRows int64 `json:"affected_rows"`
}

// ExecResult is the driver-neutral outcome of Execute.
type ExecResult struct {
	AffectedRows int64 `json:"affected_rows"`
}

// Page is one window of rows plus the total match count.
type Page struct {
	Total int64            `json:"total"`
	Items []map[string]any `json:"items"`
}

// Client executes statements against one datasource.  Safe for concurrent
// use.
type Client struct {
	name string
	db   *sqlx.DB
}

// NewClient wraps db under the datasource name.
func NewClient(name string, db *sqlx.DB) *Client {
	return &Client{name: name, db: db}
}

func (c *Client) Name() string { return c.name }
func (c *Client) DB() *sqlx.DB { return c.db }
func (c *Client) Close() error { return c.db.Close() }

/*──────────────────────────── writes ───────────────────────────────────────*/

// Insert writes rec into table.  Columns are emitted in sorted order.
func (c *Client) Insert(ctx context.Context, table string, rec map[string]any) (InsertResult, error) {
	if len(rec) == 0 {
		return InsertResult{}, fmt.Errorf("rds %s: insert into %s: empty record", c.name, table)
	}
	if !condition.ValidIdentifier(table) {
		return InsertResult{}, &condition.InvalidFieldError{Field: table}
	}

	cols := make([]string, 0, len(rec))
	for k := range rec {
		if !condition.ValidIdentifier(k) {
			return InsertResult{}, &condition.InvalidFieldError{Field: k}
		}
		cols = append(cols, k)
	}
	sort.Strings(cols)

	args := make([]any, len(cols))
	for i, k := range cols {
		args[i] = rec[k]
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	q := "INSERT INTO " + table + " (" + strings.Join(cols, ", ") + ") VALUES (" + marks + ")"

	var out InsertResult
	err := c.observe("insert", func() error {
		res, err := c.db.ExecContext(ctx, c.db.Rebind(q), args...)
		if err != nil {
			return err
		}
		out.AffectedRows, _ = res.RowsAffected()
		if id, ok := rec["id"]; ok && id != nil {
			out.InsertID = id
		} else if last, err := res.LastInsertId(); err == nil {
			out.InsertID = last
		}
		return nil
	})
	if err != nil {
		return InsertResult{}, c.wrap("insert", err)
	}
	return out, nil
}

// Execute runs a statement that returns no rows.
func (c *Client) Execute(ctx context.Context, q string, args []any) (ExecResult, error) {
	var out ExecResult
	err := c.observe("execute", func() error {
		res, err := c.db.ExecContext(ctx, c.db.Rebind(q), args...)
		if err != nil {
			return err
		}
		out.AffectedRows, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return ExecResult{}, c.wrap("execute", err)
	}
	return out, nil
}

/*──────────────────────────── reads ────────────────────────────────────────*/

// Query returns the rows of q.  limit <= 0 means unbounded; offset is only
// applied together with a limit.
func (c *Client) Query(ctx context.Context, q string, args []any, limit, offset int) ([]map[string]any, error) {
	q = withWindow(q, limit, offset)
	var rows []map[string]any
	err := c.observe("query", func() error {
		var err error
		rows, err = c.scan(ctx, q, args)
		return err
	})
	if err != nil {
		return nil, c.wrap("query", err)
	}
	return rows, nil
}

// QueryWithTotal counts first and skips the row query when nothing
// matches.
func (c *Client) QueryWithTotal(ctx context.Context, q string, args []any, limit, offset int) (Page, error) {
	total, err := c.Count(ctx, q, args)
	if err != nil {
		return Page{}, err
	}
	if total == 0 {
		return Page{Total: 0, Items: []map[string]any{}}, nil
	}
	items, err := c.Query(ctx, q, args, limit, offset)
	if err != nil {
		return Page{}, err
	}
	return Page{Total: total, Items: items}, nil
}

// FindOne returns the first row or nil when there is none.
func (c *Client) FindOne(ctx context.Context, q string, args []any) (map[string]any, error) {
	rows, err := c.Query(ctx, q, args, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// GetOne returns the first row or ErrNotFound.
func (c *Client) GetOne(ctx context.Context, q string, args []any) (map[string]any, error) {
	row, err := c.FindOne(ctx, q, args)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ErrNotFound
	}
	return row, nil
}

// Exists reports whether q yields at least one row.
func (c *Client) Exists(ctx context.Context, q string, args []any) (bool, error) {
	row, err := c.FindOne(ctx, q, args)
	if err != nil {
		return false, err
	}
	return row != nil, nil
}

// Count wraps q as a sub-query and returns COUNT(*).
func (c *Client) Count(ctx context.Context, q string, args []any) (int64, error) {
	cq := "SELECT COUNT(*) AS total FROM (" + q + ") AS count_table"
	var total int64
	err := c.observe("count", func() error {
		return c.db.GetContext(ctx, &total, c.db.Rebind(cq), args...)
	})
	if err != nil {
		return 0, c.wrap("count", err)
	}
	return total, nil
}

/*──────────────────────────── helpers ──────────────────────────────────────*/

func (c *Client) scan(ctx context.Context, q string, args []any) ([]map[string]any, error) {
	rows, err := c.db.QueryxContext(ctx, c.db.Rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]map[string]any, 0, 8)
	for rows.Next() {
		m := make(map[string]any)
		if err := rows.MapScan(m); err != nil {
			return nil, err
		}
		for k, v := range m {
			if b, ok := v.([]byte); ok {
				m[k] = string(b)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (c *Client) observe(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.StatementsTotal.WithLabelValues(c.name, op).Inc()
	metrics.StatementDuration.WithLabelValues(c.name, op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StatementErrorsTotal.WithLabelValues(c.name, op).Inc()
		zap.L().Error("statement failed",
			zap.String("datasource", c.name), zap.String("op", op), zap.Error(err))
	}
	return err
}

func (c *Client) wrap(op string, err error) error {
	return fmt.Errorf("rds %s: %s: %w", c.name, op, err)
}

func withWindow(q string, limit, offset int) string {
	if limit <= 0 {
		return q
	}
	q += " LIMIT " + strconv.Itoa(limit)
	if offset > 0 {
		q += " OFFSET " + strconv.Itoa(offset)
	}
	return q
}
