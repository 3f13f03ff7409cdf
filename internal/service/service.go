// internal/service/service.go
//
// Generic business-service base.
//
// Context
// -------
// Business services embed *Service to get the standard record operations
// for one entity, then add their own methods on top.  Every method takes
// the caller's scope.Scope and passes it straight to the engine; Service
// itself holds no per-request state.
//
// Tree assembly
// -------------
// Tree lists the filtered records and links each one under the record
// whose id equals its parent field.  Ids are compared by their printed
// form, so a parent stored as "5" finds a record with id 5.  Records whose
// parent equals the root value become roots; records whose parent is
// absent from the result are logged and dropped.
//
// Notes
// -----
// • Oxford commas, two spaces after periods.
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/yanizio/tenantstore/internal/condition"
	"github.com/yanizio/tenantstore/internal/entity"
	"github.com/yanizio/tenantstore/internal/rds"
	"github.com/yanizio/tenantstore/internal/scope"
)

// ChildrenField holds each tree node's child list.
const ChildrenField = "children"

// AddResult is the outcome of Add.
type AddResult struct {
	Result bool `json:"result"`
	ID     any  `json:"id,omitempty"`
}

// TreeOptions names the linking fields.
type TreeOptions struct {
	IDField     string
	ParentField string
	Root        any
}

// DefaultTreeOptions links "pid" to "id" with root parent 0.
func DefaultTreeOptions() TreeOptions {
	return TreeOptions{IDField: entity.FieldID, ParentField: "pid", Root: 0}
}

// Service exposes the standard operations of one entity.
type Service struct {
	name   string
	engine *entity.Engine
}

// New wraps e under name.  name labels log lines.
func New(name string, e *entity.Engine) *Service {
	return &Service{name: name, engine: e}
}

func (s *Service) Name() string { return s.name }
func (s *Service) Engine() *entity.Engine { return s.engine }

// Add inserts data and reports the new id when a row was written.
func (s *Service) Add(ctx context.Context, sc scope.Scope, data entity.Record) (AddResult, error) {
	res, err := s.engine.Insert(ctx, sc, data)
	if err != nil {
		return AddResult{}, err
	}
	if res.AffectedRows == 0 {
		return AddResult{Result: false}, nil
	}
	return AddResult{Result: true, ID: res.InsertID}, nil
}

func (s *Service) Update(ctx context.Context, sc scope.Scope, id any, data entity.Record) (bool, error) {
	return s.engine.Update(ctx, sc, id, data, nil)
}

func (s *Service) BatchUpdate(ctx context.Context, sc scope.Scope, ids []any, data entity.Record) (int64, error) {
	return s.engine.BatchUpdate(ctx, sc, ids, data, nil)
}

func (s *Service) Remove(ctx context.Context, sc scope.Scope, id any) (int64, error) {
	return s.engine.Remove(ctx, sc, id, nil)
}

func (s *Service) BatchRemove(ctx context.Context, sc scope.Scope, ids []any) (int64, error) {
	return s.engine.BatchRemove(ctx, sc, ids, nil)
}

// Get returns rds.ErrNotFound when no record matches, unlike the engine,
// which returns nil.
func (s *Service) Get(ctx context.Context, sc scope.Scope, id any) (entity.Record, error) {
	rec, err := s.engine.Get(ctx, sc, id, nil)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%s %v: %w", s.name, id, rds.ErrNotFound)
	}
	return rec, nil
}

func (s *Service) FindOne(ctx context.Context, sc scope.Scope, cond condition.Condition) (entity.Record, error) {
	return s.engine.FindOne(ctx, sc, cond)
}

func (s *Service) Query(ctx context.Context, sc scope.Scope, f entity.Filter, limit, offset int) (entity.Page, error) {
	return s.engine.Query(ctx, sc, f, limit, offset)
}

func (s *Service) List(ctx context.Context, sc scope.Scope, f entity.Filter, limit int) ([]entity.Record, error) {
	return s.engine.List(ctx, sc, f, limit)
}

func (s *Service) Count(ctx context.Context, sc scope.Scope, cond condition.Condition) (int64, error) {
	return s.engine.Count(ctx, sc, cond)
}

// Tree lists f with the default list limit and assembles the result.
func (s *Service) Tree(ctx context.Context, sc scope.Scope, f entity.Filter, opts TreeOptions) ([]entity.Record, error) {
	items, err := s.engine.List(ctx, sc, f, 0)
	if err != nil {
		return nil, err
	}
	return buildTree(s.name, items, opts), nil
}

// BuildTree links items in place and returns the roots.  Every item gets
// a children slice, possibly empty.
func BuildTree(items []entity.Record, opts TreeOptions) []entity.Record {
	return buildTree("", items, opts)
}

func buildTree(name string, items []entity.Record, opts TreeOptions) []entity.Record {
	def := DefaultTreeOptions()
	if opts.IDField == "" {
		opts.IDField = def.IDField
	}
	if opts.ParentField == "" {
		opts.ParentField = def.ParentField
	}

	byID := make(map[string]entity.Record, len(items))
	for _, it := range items {
		it[ChildrenField] = []entity.Record{}
		byID[idKey(it[opts.IDField])] = it
	}

	roots := []entity.Record{}
	for _, it := range items {
		pid := it[opts.ParentField]
		if sameID(pid, opts.Root) {
			roots = append(roots, it)
			continue
		}
		parent, ok := byID[idKey(pid)]
		if !ok || pid == nil {
			zap.L().Warn("tree parent not found",
				zap.String("entity", name),
				zap.Any("id", it[opts.IDField]),
				zap.Any("parent", pid))
			continue
		}
		parent[ChildrenField] = append(parent[ChildrenField].([]entity.Record), it)
	}
	return roots
}

// sameID compares ids across numeric and string forms.  nil and 0 are
// equal, matching rows whose parent column was never set.
func sameID(a, b any) bool {
	if a == nil || b == nil {
		return (a == nil || isZero(a)) && (b == nil || isZero(b))
	}
	return idKey(a) == idKey(b)
}

func isZero(v any) bool { return idKey(v) == "0" }

func idKey(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(x)
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprint(int64(x))
		}
	case float32:
		if x == float32(int64(x)) {
			return fmt.Sprint(int64(x))
		}
	}
	return fmt.Sprint(v)
}
