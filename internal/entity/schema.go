// internal/entity/schema.go
//
// Declarative entity configuration.
//
// Context
// -------
// A Schema tells the engine how to treat one table's records.  Behaviour
// is switched on by flags rather than by record types:
//
//   - MultiTenant: stamp tenant_id on insert, scope every statement by
//     the caller's tenant.
//   - StandardProperties: stamp create_/update_ date and by fields.
//   - IDGenerator: fill a missing id on insert.
//   - JSONFields: marshal before write, unmarshal after read.
//   - Sort: assign an ordering value within a sibling group.
//
// DefaultSchema returns the platform defaults (multi-tenant, standard
// properties, snowflake ids).  The engine copies and normalises the schema
// at construction, so later edits to the caller's value have no effect.
//
// Notes
// -----
// • Oxford commas, two spaces after periods.
package entity

import (
	"fmt"
	"strings"
)

// Column names the engine reads or stamps.
const (
	FieldID         = "id"
	FieldTenantID   = "tenant_id"
	FieldCreateDate = "create_date"
	FieldUpdateDate = "update_date"
	FieldCreateBy   = "create_by"
	FieldUpdateBy   = "update_by"
)

// IDGenerator selects how a missing id is filled on insert.
type IDGenerator string

const (
	IDGeneratorNone      IDGenerator = "none"
	IDGeneratorUUID      IDGenerator = "uuid"
	IDGeneratorSnowflake IDGenerator = "snowflake"
)

// ParseIDGenerator accepts the names above, case-insensitively.  An empty
// string selects snowflake.
func ParseIDGenerator(s string) (IDGenerator, error) {
	switch g := IDGenerator(strings.ToLower(strings.TrimSpace(s))); g {
	case "":
		return IDGeneratorSnowflake, nil
	case IDGeneratorNone, IDGeneratorUUID, IDGeneratorSnowflake:
		return g, nil
	default:
		return "", fmt.Errorf("entity: unknown id generator %q", s)
	}
}

// Sort defaults.
const (
	DefaultSortField = "sort_num"
	DefaultSortStep  = 10
)

// SortStrategy assigns Field on insert as max(InitialValue, siblingMax +
// Step), where siblings share the new record's ConditionFields values.
type SortStrategy struct {
	Field           string
	InitialValue    int64
	Step            int64
	ConditionFields []string
}

// Schema is the per-table configuration.
type Schema struct {
	MultiTenant        bool
	StandardProperties bool
	IDGenerator        IDGenerator
	JSONFields         []string
	Sort               *SortStrategy
}

// DefaultSchema returns multi-tenant, standard properties, snowflake ids.
func DefaultSchema() Schema {
	return Schema{
		MultiTenant:        true,
		StandardProperties: true,
		IDGenerator:        IDGeneratorSnowflake,
	}
}

// normalized returns a deep copy with defaults filled in.
func (s Schema) normalized() Schema {
	out := s
	if out.IDGenerator == "" {
		out.IDGenerator = IDGeneratorSnowflake
	}
	out.JSONFields = append([]string(nil), s.JSONFields...)
	if s.Sort != nil {
		st := *s.Sort
		if st.Field == "" {
			st.Field = DefaultSortField
		}
		if st.Step == 0 {
			st.Step = DefaultSortStep
		}
		st.ConditionFields = append([]string(nil), s.Sort.ConditionFields...)
		out.Sort = &st
	}
	return out
}

func (s Schema) isJSONField(name string) bool {
	for _, f := range s.JSONFields {
		if f == name {
			return true
		}
	}
	return false
}
