// internal/condition/condition.go
//
// Declarative condition DSL → parameterised SQL fragments.
//
// Context
// -------
// Callers describe filters as plain maps so they can travel through JSON
// unchanged:
//
//	{"status": "active", "age": {"$gte": 18}, "id": {"$in": [1, 2]}}
//
// A literal compiles to `field = ?`.  A nested map is an operator-map and
// every operator in it compiles to its own predicate.  All predicates are
// joined with AND; values are always bound, never interpolated.  Field
// names are interpolated, so each one must be a plain identifier.
//
// Compile is a pure function.  It performs no I/O and is safe for
// concurrent use.
//
// Notes
// -----
//   - Map iteration order is random, so fields (and operators within a
//     field) are emitted in sorted order.  Order, being a slice, keeps the
//     caller's sequence.
//   - An invalid sort direction falls back to ASC with a warning.
//   - Oxford commas, two spaces after periods.
package condition

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Condition maps field names to a literal (equality) or an operator-map.
type Condition map[string]any

// Ops is a typed operator-map, e.g. Ops{"$gt": 3}.  Plain map[string]any
// values are accepted too.
type Ops map[string]any

// Predicate is one SQL boolean fragment plus its bound parameters.
type Predicate struct {
	Text   string
	Params []any
}

// Equal builds `field = ?`.
func Equal(field string, v any) Predicate {
	return Predicate{Text: field + " = ?", Params: []any{v}}
}

// Clause is the output of Compile.
type Clause struct {
	Predicate string // joined with AND, empty when there is nothing to filter
	Params    []any
	Order     string // "f1 ASC, f2 DESC", empty when unordered
}

// Where renders "WHERE <predicate>" or "" when there is no predicate.
func (c Clause) Where() string {
	if c.Predicate == "" {
		return ""
	}
	return "WHERE " + c.Predicate
}

// OrderBy renders "ORDER BY <order>" or "".
func (c Clause) OrderBy() string {
	if c.Order == "" {
		return ""
	}
	return "ORDER BY " + c.Order
}

/*──────────────────────────── compile ──────────────────────────────────────*/

// Compile translates cond and order into a Clause.  When tenant is non-nil
// it is emitted first.
func Compile(cond Condition, order Order, tenant *Predicate) (Clause, error) {
	var (
		parts  []string
		params []any
	)
	if tenant != nil {
		parts = append(parts, tenant.Text)
		params = append(params, tenant.Params...)
	}

	fields := make([]string, 0, len(cond))
	for f := range cond {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for _, field := range fields {
		if !ValidIdentifier(field) {
			return Clause{}, &InvalidFieldError{Field: field}
		}
		preds, err := compileField(field, cond[field])
		if err != nil {
			return Clause{}, err
		}
		for _, p := range preds {
			parts = append(parts, p.Text)
			params = append(params, p.Params...)
		}
	}

	orderText, err := compileOrder(order)
	if err != nil {
		return Clause{}, err
	}

	return Clause{
		Predicate: strings.Join(parts, " AND "),
		Params:    params,
		Order:     orderText,
	}, nil
}

func compileField(field string, v any) ([]Predicate, error) {
	switch ops := v.(type) {
	case Ops:
		return compileOperators(field, ops)
	case map[string]any:
		return compileOperators(field, ops)
	default:
		return []Predicate{Equal(field, v)}, nil
	}
}

/*──────────────────────────── order ────────────────────────────────────────*/

const (
	Asc  = "ASC"
	Desc = "DESC"
)

// OrderField is one ORDER BY term.
type OrderField struct {
	Field     string `json:"field"`
	Direction string `json:"direction"`
}

// Order is an ordered list of sort terms.
type Order []OrderField

// OrderFromMap converts the map form {"field": "ASC"} into an Order.  Maps
// carry no order of their own, so keys are sorted.
func OrderFromMap(m map[string]any) Order {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(Order, 0, len(keys))
	for _, k := range keys {
		var dir string
		if v := m[k]; v != nil {
			dir = fmt.Sprint(v)
		}
		out = append(out, OrderField{Field: k, Direction: dir})
	}
	return out
}

// UnmarshalJSON accepts either an array of {field, direction} objects or
// the object form {"f1": "ASC", "f2": "DESC"}, keeping key order.
func (o *Order) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*o = nil
		return nil
	}
	if b[0] == '[' {
		var terms []OrderField
		if err := json.Unmarshal(b, &terms); err != nil {
			return err
		}
		*o = terms
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	if tok, err := dec.Token(); err != nil {
		return err
	} else if tok != json.Delim('{') {
		return fmt.Errorf("condition: order must be an object or array")
	}
	var out Order
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		field, _ := tok.(string)
		var dir any
		if err := dec.Decode(&dir); err != nil {
			return err
		}
		term := OrderField{Field: field}
		if dir != nil {
			term.Direction = fmt.Sprint(dir)
		}
		out = append(out, term)
	}
	*o = out
	return nil
}

func compileOrder(order Order) (string, error) {
	if len(order) == 0 {
		return "", nil
	}
	terms := make([]string, 0, len(order))
	for _, of := range order {
		if !ValidIdentifier(of.Field) {
			return "", &InvalidFieldError{Field: of.Field}
		}
		dir := strings.ToUpper(strings.TrimSpace(of.Direction))
		switch dir {
		case Asc, Desc:
		case "":
			dir = Asc
		default:
			zap.L().Warn("invalid sort direction, falling back to ASC",
				zap.String("field", of.Field), zap.String("direction", of.Direction))
			dir = Asc
		}
		terms = append(terms, of.Field+" "+dir)
	}
	return strings.Join(terms, ", "), nil
}

/*──────────────────────────── identifiers ──────────────────────────────────*/

var identRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ValidIdentifier reports whether s may be interpolated as a column or
// table name: letters, digits, and underscores, optionally qualified once.
func ValidIdentifier(s string) bool { return identRE.MatchString(s) }
