// internal/httpapi/router.go
//
// REST gateway over entity services.
//
// Context
// -------
// Every configured entity is reachable under `/api/{entity}` with the
// standard actions:
//
//	POST   /api/{entity}               add           → {result, id}
//	GET    /api/{entity}/{id}          get           → record | 404
//	PUT    /api/{entity}/{id}          update        → {result}
//	DELETE /api/{entity}/{id}          remove        → {affected_rows}
//	POST   /api/{entity}/query         query         → {total, items}
//	POST   /api/{entity}/list          list          → [record]
//	POST   /api/{entity}/find-one      find one      → record | null
//	POST   /api/{entity}/count         count         → {total}
//	POST   /api/{entity}/tree          tree          → [node]
//	POST   /api/{entity}/batch-update  batch update  → {affected_rows}
//	POST   /api/{entity}/batch-remove  batch remove  → {affected_rows}
//
// Bodies are JSON.  Numbers decode as int64 when integral, float64
// otherwise, so snowflake ids survive the trip.  Request structs are
// validated with go-playground/validator before reaching the service.
//
// Errors map as follows: tenant missing 401, malformed input 400, not
// found 404, duplicate key 409, anything else 500 with a generic body.
//
// Notes
// -----
// • Oxford commas, two spaces after periods.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/yanizio/tenantstore/internal/service"
)

// API serves a fixed set of services keyed by entity name.
type API struct {
	services map[string]*service.Service
	validate *validator.Validate
	geo      CountryLookup
}

// Option configures an API.
type Option func(*API)

// WithGeoIP enables country lookups for the access log.
func WithGeoIP(geo CountryLookup) Option {
	return func(a *API) { a.geo = geo }
}

// New returns an API over services.  The map is not copied; do not
// modify it afterwards.
func New(services map[string]*service.Service, opts ...Option) *API {
	a := &API{services: services, validate: validator.New()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Routes returns the chi router with middleware installed.
func (a *API) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(a.clientInfo)
	r.Use(accessLog)
	r.Use(Security)
	r.Use(WithScope)

	r.Route("/api/{entity}", func(er chi.Router) {
		er.Use(a.resolveService)

		er.Post("/", a.add)
		er.Post("/query", a.query)
		er.Post("/list", a.list)
		er.Post("/find-one", a.findOne)
		er.Post("/count", a.count)
		er.Post("/tree", a.tree)
		er.Post("/batch-update", a.batchUpdate)
		er.Post("/batch-remove", a.batchRemove)

		er.Get("/{id}", a.get)
		er.Put("/{id}", a.update)
		er.Delete("/{id}", a.remove)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "no such route"})
	})
	return r
}
