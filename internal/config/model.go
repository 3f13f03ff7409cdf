// internal/config/model.go
//
// Typed configuration model for tenantstore.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   • optional `.env`                               – dotenv values,
//   • `conf/global.yaml`                            – primary static file,
//   • `TENANTSTORE_`-prefixed environment overrides – highest precedence.
//
// Any value whose string begins with the prefix `vault:` is resolved
// through the Vault client *before* unmarshalling, so the model never
// stores Vault URIs, only plain strings.
//
// Validation happens immediately after unmarshal; the app fails fast if
// required fields are missing or cross-references do not resolve.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`, not `yaml:"…"`.  Koanf ignores `yaml` tags
//     unless configured otherwise.
//   • The `Paths` block is filled at runtime; YAML must not try to set it.
//   • Oxford commas, two spaces after periods.  No em-dash.

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/yanizio/tenantstore/internal/entity"
	"github.com/yanizio/tenantstore/internal/idgen"
	"github.com/yanizio/tenantstore/internal/rds"
)

//
// HTTP section
//

// HTTP holds web-server tunables.  Zero timeouts take the server defaults.
// GeoIPDB, when set, points at a GeoLite2 database used to tag access-log
// lines with a country; relative paths resolve against Paths.Root.
type HTTP struct {
	ListenAddr   string        `koanf:"listen_addr"   validate:"required,hostname_port"`
	ReadTimeout  time.Duration `koanf:"read_timeout"  validate:"min=0"`
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"min=0"`
	IdleTimeout  time.Duration `koanf:"idle_timeout"  validate:"min=0"`
	MetricsPath  string        `koanf:"metrics_path"`
	GeoIPDB      string        `koanf:"geoip_db"`
}

//
// Log section
//

// Log controls the file logger.  Dir is relative to Paths.Root unless
// absolute.
type Log struct {
	Dir   string `koanf:"dir"`
	Level string `koanf:"level" validate:"omitempty,oneof=debug info warn error"`
	Tee   bool   `koanf:"tee"`
}

//
// IDGen section
//

// IDGen configures the process-wide snowflake generator.  Epoch is an
// RFC 3339 timestamp; empty selects 2020-01-01T00:00:00Z.
type IDGen struct {
	ProcessID    int64  `koanf:"process_id"    validate:"min=0,max=7"`
	DatacenterID int64  `koanf:"datacenter_id" validate:"min=0,max=1"`
	Epoch        string `koanf:"epoch"         validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

// GeneratorConfig converts the section to an idgen.Config.
func (g IDGen) GeneratorConfig() (idgen.Config, error) {
	out := idgen.Config{ProcessID: g.ProcessID, DatacenterID: g.DatacenterID}
	if g.Epoch != "" {
		t, err := time.Parse(time.RFC3339, g.Epoch)
		if err != nil {
			return idgen.Config{}, fmt.Errorf("config: idgen.epoch: %w", err)
		}
		out.Epoch = t
	}
	return out, nil
}

//
// RDS section
//

// PasswordPlaceholder in a DSN is replaced by the datasource's password.
const PasswordPlaceholder = "{password}"

// Datasource is one connection pool.
//
// The *template* (`DSN`) is kept in YAML so operators can tweak host,
// port, or flags without touching Vault.  The *secret* portion
// (`Password`) is usually a `vault:` reference injected at runtime.
type Datasource struct {
	Driver          string        `koanf:"driver"            validate:"required,oneof=mysql pgx sqlite"`
	DSN             string        `koanf:"dsn"               validate:"required"`
	Password        string        `koanf:"password"`
	MaxOpen         int           `koanf:"max_open"          validate:"min=0"`
	MaxIdle         int           `koanf:"max_idle"          validate:"min=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime" validate:"min=0"`
}

// ResolvedDSN returns DSN with the password placeholder substituted.
func (d Datasource) ResolvedDSN() string {
	return strings.ReplaceAll(d.DSN, PasswordPlaceholder, d.Password)
}

// RDS groups datasources and name aliases.
type RDS struct {
	Datasources map[string]Datasource `koanf:"datasources" validate:"required,min=1,dive"`
	Aliases     map[string]string     `koanf:"aliases"`
}

// Sources converts the section for rds.NewRegistry.
func (r RDS) Sources() map[string]rds.Source {
	out := make(map[string]rds.Source, len(r.Datasources))
	for name, d := range r.Datasources {
		out[name] = rds.Source{
			Driver:          d.Driver,
			DSN:             d.ResolvedDSN(),
			MaxOpen:         d.MaxOpen,
			MaxIdle:         d.MaxIdle,
			ConnMaxLifetime: d.ConnMaxLifetime,
		}
	}
	return out
}

//
// Entities section
//

// Sort mirrors entity.SortStrategy.
type Sort struct {
	Field           string   `koanf:"field"`
	InitialValue    int64    `koanf:"initial_value"`
	Step            int64    `koanf:"step"             validate:"min=0"`
	ConditionFields []string `koanf:"condition_fields"`
}

// Entity binds a name (the REST path segment) to a table and schema.
// Nil booleans take the platform defaults (true).
type Entity struct {
	Name               string   `koanf:"name"                validate:"required,slug"`
	Table              string   `koanf:"table"               validate:"required,ident"`
	Datasource         string   `koanf:"datasource"`
	MultiTenant        *bool    `koanf:"multi_tenant"`
	StandardProperties *bool    `koanf:"standard_properties"`
	IDGenerator        string   `koanf:"id_generator"        validate:"omitempty,oneof=none uuid snowflake"`
	JSONFields         []string `koanf:"json_fields"         validate:"dive,ident"`
	Sort               *Sort    `koanf:"sort"`
}

// Schema converts the entry to an entity.Schema.
func (e Entity) Schema() (entity.Schema, error) {
	s := entity.DefaultSchema()
	if e.MultiTenant != nil {
		s.MultiTenant = *e.MultiTenant
	}
	if e.StandardProperties != nil {
		s.StandardProperties = *e.StandardProperties
	}
	gen, err := entity.ParseIDGenerator(e.IDGenerator)
	if err != nil {
		return entity.Schema{}, err
	}
	s.IDGenerator = gen
	s.JSONFields = append([]string(nil), e.JSONFields...)
	if e.Sort != nil {
		s.Sort = &entity.SortStrategy{
			Field:           e.Sort.Field,
			InitialValue:    e.Sort.InitialValue,
			Step:            e.Sort.Step,
			ConditionFields: append([]string(nil), e.Sort.ConditionFields...),
		}
	}
	return s, nil
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime, never set in YAML or env.  The loader
// discovers `Root` (repo root or TENANTSTORE_ROOT override) so later code
// can build absolute file paths.
type Paths struct {
	Root string // TENANTSTORE_ROOT or discovered parent
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads throughout the app lifetime.
type Config struct {
	HTTP     HTTP     `koanf:"http"`
	Log      Log      `koanf:"log"`
	IDGen    IDGen    `koanf:"idgen"`
	RDS      RDS      `koanf:"rds"`
	Entities []Entity `koanf:"entities" validate:"dive"`
	Paths    Paths    `koanf:"-"` // not loaded from config files
}

// Defaults applied after unmarshal.
const (
	DefaultLogDir      = "logs"
	DefaultLogLevel    = "info"
	DefaultMetricsPath = "/metrics"
)

func (c *Config) applyDefaults() {
	if c.Log.Dir == "" {
		c.Log.Dir = DefaultLogDir
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.HTTP.MetricsPath == "" {
		c.HTTP.MetricsPath = DefaultMetricsPath
	}
	for i := range c.Entities {
		if c.Entities[i].Datasource == "" {
			c.Entities[i].Datasource = rds.DefaultDatasource
		}
	}
}
