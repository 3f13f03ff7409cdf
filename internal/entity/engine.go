// internal/entity/engine.go
//
// Tenant-isolated entity persistence engine.
//
// Context
// -------
// Business services never write SQL.  They hold one *Engine per table and
// call Insert, Get, Update, Query, and friends with an explicit
// scope.Scope.  The engine:
//
//  1. Refuses multi-tenant work without a tenant, before any I/O.
//  2. Stamps tenant, audit, id, and sort fields on insert.
//  3. Strips immutable fields from update patches.
//  4. Compiles caller conditions with the tenant predicate prepended.
//  5. Marshals JSON fields on write and unmarshals them on read.
//  6. Hands finished statements to the Executor.
//
// Tenant isolation
// ----------------
// Every filtering statement on a multi-tenant entity, batch forms
// included, carries `tenant_id = ?` bound to the scope's tenant.  A
// tenant_id supplied in caller conditions is dropped, so the scope is the
// only tenant filter that ever reaches storage.
//
// Notes
// -----
//   - Engines are safe for concurrent use.  Inserts that allocate a sort
//     value are serialised per engine; see sortseq.go.
//   - Removes are hard deletes.
//   - Oxford commas, two spaces after periods.
package entity

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yanizio/tenantstore/internal/condition"
	"github.com/yanizio/tenantstore/internal/idgen"
	"github.com/yanizio/tenantstore/internal/metrics"
	"github.com/yanizio/tenantstore/internal/rds"
	"github.com/yanizio/tenantstore/internal/scope"
)

// Default window sizes for Query and List.
const (
	DefaultQueryLimit = 10
	DefaultListLimit  = 1000
)

// Record is one row as an open field map.
type Record map[string]any

// Filter bundles a condition and an order, the shape list-style calls
// accept over the wire.
type Filter struct {
	Conditions condition.Condition `json:"conditions"`
	Orders     condition.Order     `json:"orders"`
}

// Page is one window of records plus the total match count.
type Page struct {
	Total int64    `json:"total"`
	Items []Record `json:"items"`
}

// Executor is the storage contract the engine drives.  *rds.Client
// satisfies it.
type Executor interface {
	Insert(ctx context.Context, table string, rec map[string]any) (rds.InsertResult, error)
	Execute(ctx context.Context, q string, args []any) (rds.ExecResult, error)
	Exists(ctx context.Context, q string, args []any) (bool, error)
	Query(ctx context.Context, q string, args []any, limit, offset int) ([]map[string]any, error)
	QueryWithTotal(ctx context.Context, q string, args []any, limit, offset int) (rds.Page, error)
	FindOne(ctx context.Context, q string, args []any) (map[string]any, error)
	GetOne(ctx context.Context, q string, args []any) (map[string]any, error)
	Count(ctx context.Context, q string, args []any) (int64, error)
}

// Option customises an Engine.
type Option func(*Engine)

// WithIDGenerator supplies the snowflake generator.  Required when the
// schema selects IDGeneratorSnowflake.
func WithIDGenerator(g *idgen.Generator) Option { return func(e *Engine) { e.ids = g } }

// WithClock replaces time.Now for audit stamps.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// Engine persists one table.  Zero value is invalid; use New.
type Engine struct {
	table      string
	datasource string
	schema     Schema
	exec       Executor
	ids        *idgen.Generator
	now        func() time.Time

	sortMu sync.Mutex
}

// New validates schema against the table and options and returns an
// engine bound to exec.
func New(table, datasource string, schema Schema, exec Executor, opts ...Option) (*Engine, error) {
	e := &Engine{
		table:      table,
		datasource: datasource,
		schema:     schema.normalized(),
		exec:       exec,
		now:        time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	if err := e.validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// Open resolves datasource through reg and returns an engine on its
// client.
func Open(ctx context.Context, reg *rds.Registry, table, datasource string, schema Schema, opts ...Option) (*Engine, error) {
	c, err := reg.Client(ctx, datasource)
	if err != nil {
		return nil, err
	}
	return New(table, datasource, schema, c, opts...)
}

func (e *Engine) validate() error {
	cfgErr := func(format string, args ...any) error {
		return &ConfigurationError{Table: e.table, Reason: fmt.Sprintf(format, args...)}
	}
	if e.exec == nil {
		return cfgErr("no executor")
	}
	if !condition.ValidIdentifier(e.table) {
		return cfgErr("invalid table name %q", e.table)
	}
	switch e.schema.IDGenerator {
	case IDGeneratorNone, IDGeneratorUUID:
	case IDGeneratorSnowflake:
		if e.ids == nil {
			return cfgErr("snowflake ids selected but no generator supplied")
		}
	default:
		return cfgErr("unsupported id generator %q", e.schema.IDGenerator)
	}
	for _, f := range e.schema.JSONFields {
		if !condition.ValidIdentifier(f) {
			return cfgErr("invalid json field %q", f)
		}
	}
	if st := e.schema.Sort; st != nil {
		if !condition.ValidIdentifier(st.Field) {
			return cfgErr("invalid sort field %q", st.Field)
		}
		for _, f := range st.ConditionFields {
			if !condition.ValidIdentifier(f) {
				return cfgErr("invalid sort condition field %q", f)
			}
		}
	}
	return nil
}

func (e *Engine) Table() string      { return e.table }
func (e *Engine) Datasource() string { return e.datasource }

// Schema returns a copy of the normalised schema.
func (e *Engine) Schema() Schema { return e.schema.normalized() }

/*──────────────────────────── insert ───────────────────────────────────────*/

// Insert stamps and writes data.  The caller's map is not modified.
func (e *Engine) Insert(ctx context.Context, sc scope.Scope, data Record) (rds.InsertResult, error) {
	rec := clone(data)

	if e.schema.MultiTenant {
		tid, ok := sc.Tenant()
		if !ok {
			return rds.InsertResult{}, e.tenantMissing("insert")
		}
		rec[FieldTenantID] = tid
	}

	if e.schema.StandardProperties {
		now := e.now()
		rec[FieldCreateDate] = now
		rec[FieldUpdateDate] = now
		if uid, ok := sc.User(); ok {
			rec[FieldCreateBy] = uid
			rec[FieldUpdateBy] = uid
		}
	}

	if err := e.marshalJSONFields(rec); err != nil {
		return rds.InsertResult{}, err
	}

	if isZeroID(rec[FieldID]) && e.schema.IDGenerator != IDGeneratorNone {
		id, err := e.generateID()
		if err != nil {
			return rds.InsertResult{}, fmt.Errorf("entity %s: insert: %w", e.table, err)
		}
		rec[FieldID] = id
	}

	if e.schema.Sort != nil {
		e.sortMu.Lock()
		defer e.sortMu.Unlock()
		n, err := e.NextSortValue(ctx, sc, rec)
		if err != nil {
			return rds.InsertResult{}, err
		}
		rec[e.schema.Sort.Field] = n
	}

	res, err := e.exec.Insert(ctx, e.table, rec)
	if err != nil {
		return rds.InsertResult{}, fmt.Errorf("entity %s: insert: %w", e.table, err)
	}
	return res, nil
}

func (e *Engine) generateID() (any, error) {
	switch e.schema.IDGenerator {
	case IDGeneratorUUID:
		return uuid.NewString(), nil
	case IDGeneratorSnowflake:
		if e.ids == nil {
			return nil, &ConfigurationError{Table: e.table, Reason: "snowflake generator missing"}
		}
		return e.ids.Generate()
	default:
		return nil, &ConfigurationError{
			Table:  e.table,
			Reason: fmt.Sprintf("unsupported id generator %q", e.schema.IDGenerator),
		}
	}
}

/*──────────────────────────── reads ────────────────────────────────────────*/

// Get returns the record with id, or nil when no record matches.
func (e *Engine) Get(ctx context.Context, sc scope.Scope, id any, extra condition.Condition) (Record, error) {
	cl, err := e.compile(sc, withID(extra, id), nil)
	if err != nil {
		return nil, err
	}
	row, err := e.exec.FindOne(ctx, e.selectSQL(cl, false), cl.Params)
	if err != nil {
		return nil, fmt.Errorf("entity %s: get: %w", e.table, err)
	}
	return e.loaded(row), nil
}

// FindOne returns the first record matching cond, or nil.
func (e *Engine) FindOne(ctx context.Context, sc scope.Scope, cond condition.Condition) (Record, error) {
	cl, err := e.compile(sc, cond, nil)
	if err != nil {
		return nil, err
	}
	row, err := e.exec.FindOne(ctx, e.selectSQL(cl, false), cl.Params)
	if err != nil {
		return nil, fmt.Errorf("entity %s: find one: %w", e.table, err)
	}
	return e.loaded(row), nil
}

// Query returns one page of matches and the total count.  limit <= 0
// selects DefaultQueryLimit.
func (e *Engine) Query(ctx context.Context, sc scope.Scope, f Filter, limit, offset int) (Page, error) {
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	if offset < 0 {
		offset = 0
	}
	cl, err := e.compile(sc, f.Conditions, f.Orders)
	if err != nil {
		return Page{}, err
	}
	page, err := e.exec.QueryWithTotal(ctx, e.selectSQL(cl, true), cl.Params, limit, offset)
	if err != nil {
		return Page{}, fmt.Errorf("entity %s: query: %w", e.table, err)
	}
	return Page{Total: page.Total, Items: e.loadedAll(page.Items)}, nil
}

// List returns up to limit matches without a total.  limit <= 0 selects
// DefaultListLimit.
func (e *Engine) List(ctx context.Context, sc scope.Scope, f Filter, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	cl, err := e.compile(sc, f.Conditions, f.Orders)
	if err != nil {
		return nil, err
	}
	rows, err := e.exec.Query(ctx, e.selectSQL(cl, true), cl.Params, limit, 0)
	if err != nil {
		return nil, fmt.Errorf("entity %s: list: %w", e.table, err)
	}
	return e.loadedAll(rows), nil
}

// Count returns the number of records matching cond.
func (e *Engine) Count(ctx context.Context, sc scope.Scope, cond condition.Condition) (int64, error) {
	cl, err := e.compile(sc, cond, nil)
	if err != nil {
		return 0, err
	}
	n, err := e.exec.Count(ctx, e.selectSQL(cl, false), cl.Params)
	if err != nil {
		return 0, fmt.Errorf("entity %s: count: %w", e.table, err)
	}
	return n, nil
}

// Exists reports whether any record matches cond.
func (e *Engine) Exists(ctx context.Context, sc scope.Scope, cond condition.Condition) (bool, error) {
	cl, err := e.compile(sc, cond, nil)
	if err != nil {
		return false, err
	}
	ok, err := e.exec.Exists(ctx, e.selectSQL(cl, false), cl.Params)
	if err != nil {
		return false, fmt.Errorf("entity %s: exists: %w", e.table, err)
	}
	return ok, nil
}

/*──────────────────────────── updates ──────────────────────────────────────*/

// Update applies patch to the record with id and reports whether a row was
// affected.  Immutable fields in patch are ignored.
func (e *Engine) Update(ctx context.Context, sc scope.Scope, id any, patch Record, extra condition.Condition) (bool, error) {
	n, err := e.update(ctx, sc, "update", withID(extra, id), patch)
	return n > 0, err
}

// BatchUpdate applies patch to every record whose id is in ids and
// returns the affected-row count.
func (e *Engine) BatchUpdate(ctx context.Context, sc scope.Scope, ids []any, patch Record, extra condition.Condition) (int64, error) {
	return e.update(ctx, sc, "batch update", withIDs(extra, ids), patch)
}

func (e *Engine) update(ctx context.Context, sc scope.Scope, op string, cond condition.Condition, patch Record) (int64, error) {
	cl, err := e.compile(sc, cond, nil)
	if err != nil {
		return 0, err
	}

	set := e.preparePatch(sc, patch)
	if err := e.marshalJSONFields(set); err != nil {
		return 0, err
	}
	if len(set) == 0 {
		return 0, nil
	}

	cols := make([]string, 0, len(set))
	for k := range set {
		if !condition.ValidIdentifier(k) {
			return 0, &condition.InvalidFieldError{Field: k}
		}
		cols = append(cols, k)
	}
	sort.Strings(cols)

	assigns := make([]string, len(cols))
	args := make([]any, 0, len(cols)+len(cl.Params))
	for i, k := range cols {
		assigns[i] = k + " = ?"
		args = append(args, set[k])
	}
	args = append(args, cl.Params...)

	q := join("UPDATE", e.table, "SET", strings.Join(assigns, ", "), cl.Where())
	res, err := e.exec.Execute(ctx, q, args)
	if err != nil {
		return 0, fmt.Errorf("entity %s: %s: %w", e.table, op, err)
	}
	return res.AffectedRows, nil
}

// preparePatch clones patch, drops immutable fields, and re-stamps the
// update audit fields.
func (e *Engine) preparePatch(sc scope.Scope, patch Record) Record {
	set := clone(patch)
	delete(set, FieldID)
	delete(set, FieldCreateDate)
	delete(set, FieldCreateBy)
	if e.schema.MultiTenant {
		delete(set, FieldTenantID)
	}
	if e.schema.StandardProperties {
		set[FieldUpdateDate] = e.now()
		if uid, ok := sc.User(); ok {
			set[FieldUpdateBy] = uid
		}
	}
	return set
}

/*──────────────────────────── deletes ──────────────────────────────────────*/

// Remove hard-deletes the record with id and returns the affected-row
// count.
func (e *Engine) Remove(ctx context.Context, sc scope.Scope, id any, extra condition.Condition) (int64, error) {
	return e.remove(ctx, sc, "remove", withID(extra, id))
}

// BatchRemove hard-deletes every record whose id is in ids.
func (e *Engine) BatchRemove(ctx context.Context, sc scope.Scope, ids []any, extra condition.Condition) (int64, error) {
	return e.remove(ctx, sc, "batch remove", withIDs(extra, ids))
}

func (e *Engine) remove(ctx context.Context, sc scope.Scope, op string, cond condition.Condition) (int64, error) {
	cl, err := e.compile(sc, cond, nil)
	if err != nil {
		return 0, err
	}
	res, err := e.exec.Execute(ctx, join("DELETE FROM", e.table, cl.Where()), cl.Params)
	if err != nil {
		return 0, fmt.Errorf("entity %s: %s: %w", e.table, op, err)
	}
	return res.AffectedRows, nil
}

/*──────────────────────────── helpers ──────────────────────────────────────*/

// compile prepends the tenant predicate for multi-tenant entities and
// drops any caller-supplied tenant_id.
func (e *Engine) compile(sc scope.Scope, cond condition.Condition, order condition.Order) (condition.Clause, error) {
	var tenant *condition.Predicate
	if e.schema.MultiTenant {
		tid, ok := sc.Tenant()
		if !ok {
			return condition.Clause{}, e.tenantMissing("compile")
		}
		p := condition.Equal(FieldTenantID, tid)
		tenant = &p
		if _, has := cond[FieldTenantID]; has {
			cond = cloneCondition(cond)
			delete(cond, FieldTenantID)
			zap.L().Debug("caller tenant_id condition ignored", zap.String("table", e.table))
		}
	}
	cl, err := condition.Compile(cond, order, tenant)
	if err != nil {
		return condition.Clause{}, fmt.Errorf("entity %s: %w", e.table, err)
	}
	return cl, nil
}

func (e *Engine) tenantMissing(op string) error {
	metrics.TenantContextMissingTotal.WithLabelValues(e.table).Inc()
	zap.L().Warn("tenant missing for multi-tenant entity",
		zap.String("table", e.table), zap.String("op", op))
	return fmt.Errorf("entity %s: %s: %w", e.table, op, ErrTenantContextMissing)
}

func (e *Engine) selectSQL(cl condition.Clause, ordered bool) string {
	if ordered {
		return join("SELECT * FROM", e.table, cl.Where(), cl.OrderBy())
	}
	return join("SELECT * FROM", e.table, cl.Where())
}

func (e *Engine) loaded(row map[string]any) Record {
	if row == nil {
		return nil
	}
	rec := Record(row)
	e.unmarshalJSONFields(rec)
	return rec
}

func (e *Engine) loadedAll(rows []map[string]any) []Record {
	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, e.loaded(r))
	}
	return out
}

// join glues non-empty SQL fragments with single spaces.
func join(parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

func clone(r Record) Record {
	out := make(Record, len(r)+6)
	for k, v := range r {
		out[k] = v
	}
	return out
}

func cloneCondition(c condition.Condition) condition.Condition {
	out := make(condition.Condition, len(c)+1)
	for k, v := range c {
		out[k] = v
	}
	return out
}

func withID(extra condition.Condition, id any) condition.Condition {
	c := cloneCondition(extra)
	c[FieldID] = id
	return c
}

func withIDs(extra condition.Condition, ids []any) condition.Condition {
	c := cloneCondition(extra)
	c[FieldID] = condition.Ops{"$in": ids}
	return c
}

// isZeroID treats nil, "", and numeric zero as "no id yet".
func isZeroID(v any) bool {
	switch id := v.(type) {
	case nil:
		return true
	case string:
		return id == ""
	case int:
		return id == 0
	case int32:
		return id == 0
	case int64:
		return id == 0
	case uint64:
		return id == 0
	case float64:
		return id == 0
	}
	return false
}
