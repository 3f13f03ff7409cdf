package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/yanizio/tenantstore/internal/condition"
	"github.com/yanizio/tenantstore/internal/entity"
	"github.com/yanizio/tenantstore/internal/scope"
	"github.com/yanizio/tenantstore/internal/service"
)

// maxBody caps request bodies.
const maxBody = 1 << 20

/*──────────────────────────── request bodies ───────────────────────────────*/

type filterBody struct {
	Conditions condition.Condition `json:"conditions"`
	Orders     condition.Order     `json:"orders"`
}

func (f filterBody) filter() entity.Filter {
	return entity.Filter{Conditions: normalizeCondition(f.Conditions), Orders: f.Orders}
}

type queryBody struct {
	filterBody
	Limit  int `json:"limit"  validate:"min=0,max=10000"`
	Offset int `json:"offset" validate:"min=0"`
}

type listBody struct {
	filterBody
	Limit int `json:"limit" validate:"min=0,max=10000"`
}

type treeBody struct {
	filterBody
	IDField     string `json:"id_field"`
	ParentField string `json:"parent_field"`
	Root        any    `json:"root"`
}

type batchUpdateBody struct {
	IDs  []any          `json:"ids"  validate:"required,min=1"`
	Data map[string]any `json:"data" validate:"required"`
}

type batchRemoveBody struct {
	IDs []any `json:"ids" validate:"required,min=1"`
}

type resultBody struct {
	Result bool `json:"result"`
}

type affectedBody struct {
	AffectedRows int64 `json:"affected_rows"`
}

type totalBody struct {
	Total int64 `json:"total"`
}

/*──────────────────────────── service lookup ───────────────────────────────*/

type serviceKey struct{}

func (a *API) resolveService(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "entity")
		svc, ok := a.services[name]
		if !ok {
			writeJSON(w, http.StatusNotFound, errorBody{Error: fmt.Sprintf("unknown entity %q", name)})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), serviceKey{}, svc)))
	})
}

func serviceFrom(r *http.Request) *service.Service {
	return r.Context().Value(serviceKey{}).(*service.Service)
}

func scopeFrom(r *http.Request) scope.Scope {
	sc, _ := scope.FromContext(r.Context())
	return sc
}

/*──────────────────────────── handlers ─────────────────────────────────────*/

func (a *API) add(w http.ResponseWriter, r *http.Request) {
	var data map[string]any
	if err := a.decode(r, &data, true); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := serviceFrom(r).Add(r.Context(), scopeFrom(r), normalizeRecord(data))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) get(w http.ResponseWriter, r *http.Request) {
	rec, err := serviceFrom(r).Get(r.Context(), scopeFrom(r), pathID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) update(w http.ResponseWriter, r *http.Request) {
	var data map[string]any
	if err := a.decode(r, &data, true); err != nil {
		writeError(w, r, err)
		return
	}
	ok, err := serviceFrom(r).Update(r.Context(), scopeFrom(r), pathID(r), normalizeRecord(data))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resultBody{Result: ok})
}

func (a *API) remove(w http.ResponseWriter, r *http.Request) {
	n, err := serviceFrom(r).Remove(r.Context(), scopeFrom(r), pathID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, affectedBody{AffectedRows: n})
}

func (a *API) query(w http.ResponseWriter, r *http.Request) {
	var body queryBody
	if err := a.decode(r, &body, false); err != nil {
		writeError(w, r, err)
		return
	}
	page, err := serviceFrom(r).Query(r.Context(), scopeFrom(r), body.filter(), body.Limit, body.Offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *API) list(w http.ResponseWriter, r *http.Request) {
	var body listBody
	if err := a.decode(r, &body, false); err != nil {
		writeError(w, r, err)
		return
	}
	items, err := serviceFrom(r).List(r.Context(), scopeFrom(r), body.filter(), body.Limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) findOne(w http.ResponseWriter, r *http.Request) {
	var body filterBody
	if err := a.decode(r, &body, false); err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := serviceFrom(r).FindOne(r.Context(), scopeFrom(r), body.filter().Conditions)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) count(w http.ResponseWriter, r *http.Request) {
	var body filterBody
	if err := a.decode(r, &body, false); err != nil {
		writeError(w, r, err)
		return
	}
	n, err := serviceFrom(r).Count(r.Context(), scopeFrom(r), body.filter().Conditions)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, totalBody{Total: n})
}

func (a *API) tree(w http.ResponseWriter, r *http.Request) {
	var body treeBody
	if err := a.decode(r, &body, false); err != nil {
		writeError(w, r, err)
		return
	}
	opts := service.DefaultTreeOptions()
	if body.IDField != "" {
		opts.IDField = body.IDField
	}
	if body.ParentField != "" {
		opts.ParentField = body.ParentField
	}
	if body.Root != nil {
		opts.Root = normalize(body.Root)
	}
	nodes, err := serviceFrom(r).Tree(r.Context(), scopeFrom(r), body.filter(), opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (a *API) batchUpdate(w http.ResponseWriter, r *http.Request) {
	var body batchUpdateBody
	if err := a.decode(r, &body, true); err != nil {
		writeError(w, r, err)
		return
	}
	n, err := serviceFrom(r).BatchUpdate(r.Context(), scopeFrom(r), normalizeSlice(body.IDs), normalizeRecord(body.Data))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, affectedBody{AffectedRows: n})
}

func (a *API) batchRemove(w http.ResponseWriter, r *http.Request) {
	var body batchRemoveBody
	if err := a.decode(r, &body, true); err != nil {
		writeError(w, r, err)
		return
	}
	n, err := serviceFrom(r).BatchRemove(r.Context(), scopeFrom(r), normalizeSlice(body.IDs))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, affectedBody{AffectedRows: n})
}

/*──────────────────────────── decoding ─────────────────────────────────────*/

// decode reads a JSON body into v and validates structs.  An empty body
// is accepted unless required is set.
func (a *API) decode(r *http.Request, v any, required bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) && !required {
			return a.validateBody(v)
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return a.validateBody(v)
}

func (a *API) validateBody(v any) error {
	switch v.(type) {
	case *map[string]any:
		return nil
	}
	return a.validate.Struct(v)
}

// pathID returns the {id} segment as int64 when it parses, else as-is.
func pathID(r *http.Request) any {
	raw := chi.URLParam(r, "id")
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	return raw
}

// normalize converts json.Number to int64 or float64, recursively.
func normalize(v any) any {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = normalize(e)
		}
		return out
	case []any:
		return normalizeSlice(x)
	default:
		return v
	}
}

func normalizeSlice(in []any) []any {
	out := make([]any, len(in))
	for i, e := range in {
		out[i] = normalize(e)
	}
	return out
}

func normalizeRecord(m map[string]any) entity.Record {
	out := make(entity.Record, len(m))
	for k, e := range m {
		out[k] = normalize(e)
	}
	return out
}

func normalizeCondition(c condition.Condition) condition.Condition {
	if c == nil {
		return nil
	}
	out := make(condition.Condition, len(c))
	for k, e := range c {
		out[k] = normalize(e)
	}
	return out
}
