// internal/entity/sortseq.go
//
// Sort value allocation.
//
// Context
// -------
// Entities with a SortStrategy get an ordering value on insert:
//
//	next = max(InitialValue, MAX(field) + Step)
//
// where MAX ranges over the record's siblings, i.e. rows sharing its
// tenant and every ConditionField value.  A group with no rows yields
// InitialValue.
//
// Notes
// -----
//   - Insert holds the engine's sort mutex across allocation and write, so
//     two inserts through one engine never receive the same value.  Two
//     processes writing the same group still can; callers that care need a
//     unique index.
//   - A condition field absent from the record compares against NULL and
//     matches nothing, so the allocation restarts at InitialValue.
package entity

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/yanizio/tenantstore/internal/condition"
	"github.com/yanizio/tenantstore/internal/scope"
)

// NextSortValue computes the sort value a record would receive if
// inserted now.  It returns an error when the entity has no sort
// strategy.
func (e *Engine) NextSortValue(ctx context.Context, sc scope.Scope, rec Record) (int64, error) {
	st := e.schema.Sort
	if st == nil {
		return 0, &ConfigurationError{Table: e.table, Reason: "no sort strategy"}
	}

	cond := make(condition.Condition, len(st.ConditionFields))
	for _, f := range st.ConditionFields {
		cond[f] = rec[f]
	}
	cl, err := e.compile(sc, cond, nil)
	if err != nil {
		return 0, err
	}

	q := join("SELECT MAX("+st.Field+") AS max_sort FROM", e.table, cl.Where())
	row, err := e.exec.GetOne(ctx, q, cl.Params)
	if err != nil {
		return 0, fmt.Errorf("entity %s: sort value: %w", e.table, err)
	}

	cur, ok, err := toInt64(row["max_sort"])
	if err != nil {
		return 0, fmt.Errorf("entity %s: sort value: %w", e.table, err)
	}
	if !ok {
		return st.InitialValue, nil
	}
	next := cur + st.Step
	if next < st.InitialValue {
		next = st.InitialValue
	}
	return next, nil
}

// toInt64 converts a driver value to int64.  ok is false for NULL.
func toInt64(v any) (n int64, ok bool, err error) {
	switch x := v.(type) {
	case nil:
		return 0, false, nil
	case int64:
		return x, true, nil
	case int:
		return int64(x), true, nil
	case int32:
		return int64(x), true, nil
	case uint64:
		return int64(x), true, nil
	case float64:
		return int64(math.Round(x)), true, nil
	case []byte:
		return parseNumber(string(x))
	case string:
		return parseNumber(x)
	default:
		return 0, false, fmt.Errorf("unexpected max value type %T", v)
	}
}

func parseNumber(s string) (int64, bool, error) {
	if s == "" {
		return 0, false, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, fmt.Errorf("unexpected max value %q", s)
	}
	return int64(math.Round(f)), true, nil
}
