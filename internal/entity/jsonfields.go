package entity

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// marshalJSONFields replaces every configured JSON field in rec that holds
// a structured value with its JSON text.  Strings and nils pass through.
func (e *Engine) marshalJSONFields(rec Record) error {
	for _, f := range e.schema.JSONFields {
		v, ok := rec[f]
		if !ok || v == nil {
			continue
		}
		switch v.(type) {
		case string:
			continue
		case []byte:
			rec[f] = string(v.([]byte))
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("entity %s: marshal %s: %w", e.table, f, err)
		}
		rec[f] = string(b)
	}
	return nil
}

// unmarshalJSONFields decodes configured JSON fields in place.  Text that
// does not parse becomes an empty object.
func (e *Engine) unmarshalJSONFields(rec Record) {
	for _, f := range e.schema.JSONFields {
		var raw []byte
		switch v := rec[f].(type) {
		case string:
			raw = []byte(v)
		case []byte:
			raw = v
		default:
			continue
		}
		if len(raw) == 0 {
			continue
		}
		var out any
		if err := json.Unmarshal(raw, &out); err != nil {
			zap.L().Warn("json field did not parse",
				zap.String("table", e.table), zap.String("field", f), zap.Error(err))
			out = map[string]any{}
		}
		rec[f] = out
	}
}
