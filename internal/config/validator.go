// internal/config/validator.go
//
// Thin wrapper around go-playground/validator.
//
// Context
// -------
// `internal/config/loader.go` calls `validateStruct` immediately after it
// unmarshals the merged Koanf tree into a `Config` instance.  Any tag
// mismatch or validation error aborts startup, ensuring the binary never
// runs with partial, malformed, or missing configuration.
//
// Besides the built-in rules, two custom tags are registered:
//
//   - `ident`  table and column names the engine will interpolate.
//   - `slug`   entity names used as REST path segments.
//
// A struct-level rule checks cross-references: alias targets and entity
// datasources must name a configured datasource, and entity names must
// be unique.
//
// Notes
// -----
//   • Oxford commas, two spaces after periods.
//   • Section dividers use the simple comment style requested.

package config

import (
	"regexp"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/yanizio/tenantstore/internal/condition"
	"github.com/yanizio/tenantstore/internal/rds"
)

//
// validator instance (package-level singleton)
//

var (
	v      = newValidator()
	slugRE = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
)

func newValidator() *validator.Validate {
	val := validator.New()
	_ = val.RegisterValidation("ident", func(fl validator.FieldLevel) bool {
		return condition.ValidIdentifier(fl.Field().String())
	})
	_ = val.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugRE.MatchString(fl.Field().String())
	})
	val.RegisterStructValidation(crossReferences, Config{})
	return val
}

// crossReferences reports dangling datasource names and duplicate
// entities.
func crossReferences(sl validator.StructLevel) {
	c := sl.Current().Interface().(Config)

	known := func(name string) bool {
		if target, ok := c.RDS.Aliases[name]; ok {
			name = target
		}
		_, ok := c.RDS.Datasources[name]
		return ok
	}

	for alias, target := range c.RDS.Aliases {
		if _, ok := c.RDS.Datasources[target]; !ok {
			sl.ReportError(target, "RDS.Aliases["+alias+"]", "Aliases", "datasource", target)
		}
	}

	seen := make(map[string]bool, len(c.Entities))
	for i, e := range c.Entities {
		ds := e.Datasource
		if ds == "" {
			ds = rds.DefaultDatasource
		}
		if !known(ds) {
			sl.ReportError(e.Datasource, "Entities["+strconv.Itoa(i)+"].Datasource", "Datasource", "datasource", ds)
		}
		if seen[e.Name] {
			sl.ReportError(e.Name, "Entities["+strconv.Itoa(i)+"].Name", "Name", "unique", "")
		}
		seen[e.Name] = true
	}
}

//
// public API
//

// validateStruct returns the first validation error, or nil on success.
func validateStruct(c *Config) error {
	return v.Struct(c)
}
