package condition

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Operator is the closed set of comparison operators understood by the
// condition DSL.  The zero value is not a valid operator.
type Operator uint8

const (
	OpGT Operator = iota + 1
	OpGTE
	OpLT
	OpLTE
	OpNE
	OpIn
	OpNotIn
	OpLike
	OpBetween
	OpDateRange

	opCount
)

var operatorNames = [opCount]string{
	OpGT:        "$gt",
	OpGTE:       "$gte",
	OpLT:        "$lt",
	OpLTE:       "$lte",
	OpNE:        "$ne",
	OpIn:        "$in",
	OpNotIn:     "$nin",
	OpLike:      "$like",
	OpBetween:   "$between",
	OpDateRange: "$daterange",
}

var operatorByName = func() map[string]Operator {
	m := make(map[string]Operator, opCount)
	for op := OpGT; op < opCount; op++ {
		m[operatorNames[op]] = op
	}
	return m
}()

// ParseOperator maps a DSL key such as "$gte" to its Operator.
func ParseOperator(name string) (Operator, bool) {
	op, ok := operatorByName[name]
	return op, ok
}

func (o Operator) String() string {
	if o == 0 || o >= opCount {
		return fmt.Sprintf("Operator(%d)", uint8(o))
	}
	return operatorNames[o]
}

// Operators lists every supported DSL key in declaration order.
func Operators() []string {
	out := make([]string, 0, opCount-1)
	for op := OpGT; op < opCount; op++ {
		out = append(out, operatorNames[op])
	}
	return out
}

/*──────────────────────────── predicate templates ──────────────────────────*/

// template renders one operator applied to one field.
type template func(field string, op Operator, arg any) (Predicate, error)

var templates = [opCount]template{
	OpGT:        comparison(">"),
	OpGTE:       comparison(">="),
	OpLT:        comparison("<"),
	OpLTE:       comparison("<="),
	OpNE:        comparison("!="),
	OpIn:        membership("IN", alwaysFalse),
	OpNotIn:     membership("NOT IN", alwaysTrue),
	OpLike:      like,
	OpBetween:   between,
	OpDateRange: between,
}

const (
	alwaysFalse = "1=0"
	alwaysTrue  = "1=1"
)

func comparison(sym string) template {
	return func(field string, _ Operator, arg any) (Predicate, error) {
		return Predicate{Text: field + " " + sym + " ?", Params: []any{arg}}, nil
	}
}

// membership renders IN / NOT IN.  An empty list short-circuits to a
// constant predicate with no parameters.
func membership(keyword, empty string) template {
	return func(field string, op Operator, arg any) (Predicate, error) {
		items, ok := asSlice(arg)
		if !ok {
			return Predicate{}, &InvalidOperatorArgumentError{
				Field: field, Operator: op, Reason: "expects an array",
			}
		}
		if len(items) == 0 {
			return Predicate{Text: empty}, nil
		}
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(items)), ", ")
		return Predicate{
			Text:   field + " " + keyword + " (" + marks + ")",
			Params: items,
		}, nil
	}
}

func like(field string, _ Operator, arg any) (Predicate, error) {
	return Predicate{Text: field + " LIKE ?", Params: []any{"%" + fmt.Sprint(arg) + "%"}}, nil
}

func between(field string, op Operator, arg any) (Predicate, error) {
	items, ok := asSlice(arg)
	if !ok || len(items) != 2 {
		return Predicate{}, &InvalidOperatorArgumentError{
			Field: field, Operator: op, Reason: "expects an array with exactly 2 elements",
		}
	}
	return Predicate{Text: field + " BETWEEN ? AND ?", Params: items}, nil
}

// compileOperators renders every operator of one operator-map, in sorted
// key order so the output is stable.
func compileOperators(field string, ops map[string]any) ([]Predicate, error) {
	names := make([]string, 0, len(ops))
	for k := range ops {
		names = append(names, k)
	}
	sort.Strings(names)

	out := make([]Predicate, 0, len(names))
	for _, name := range names {
		op, ok := ParseOperator(name)
		if !ok {
			return nil, &UnsupportedOperatorError{Field: field, Operator: name}
		}
		tpl := templates[op]
		if tpl == nil {
			return nil, &UnsupportedOperatorError{Field: field, Operator: name}
		}
		p, err := tpl(field, op, ops[name])
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// asSlice flattens any slice or array into []any.  Strings and byte
// slices are scalars here.
func asSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case nil, string, []byte:
		return nil, false
	case []any:
		return s, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
