package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanizio/tenantstore/internal/entity"
	"github.com/yanizio/tenantstore/internal/idgen"
)

const sampleYAML = `
http:
  listen_addr: "127.0.0.1:8080"
  read_timeout: 5s
log:
  level: debug
idgen:
  process_id: 3
  datacenter_id: 1
  epoch: "2021-06-01T00:00:00Z"
rds:
  datasources:
    default:
      driver: mysql
      dsn: "app:{password}@tcp(db:3306)/core"
      password: "vault:secret/tenantstore/db#password"
      max_open: 20
  aliases:
    org: default
entities:
  - name: org-area
    table: org_area
    datasource: org
    json_fields: [meta]
    sort:
      condition_fields: [pid]
  - name: region
    table: region
    multi_tenant: false
    id_generator: uuid
`

type stubResolver map[string]string

func (s stubResolver) Resolve(_ context.Context, ref string) (string, error) {
	v, ok := s[ref]
	if !ok {
		return "", errors.New("unknown ref")
	}
	return v, nil
}

func writeRoot(t *testing.T, yaml string) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "conf"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "conf", "global.yaml"), []byte(yaml), 0o644))
	return root
}

func TestLoadFrom_ResolvesSecretsAndDefaults(t *testing.T) {
	root := writeRoot(t, sampleYAML)
	sec := stubResolver{"vault:secret/tenantstore/db#password": "pw"}

	cfg, err := LoadFrom(context.Background(), root, sec)
	require.NoError(t, err)
	assert.Same(t, cfg, Get())

	assert.Equal(t, "127.0.0.1:8080", cfg.HTTP.ListenAddr)
	assert.Equal(t, 5*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, DefaultMetricsPath, cfg.HTTP.MetricsPath)
	assert.Equal(t, DefaultLogDir, cfg.Log.Dir)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, root, cfg.Paths.Root)

	src := cfg.RDS.Sources()["default"]
	assert.Equal(t, "app:pw@tcp(db:3306)/core", src.DSN)
	assert.Equal(t, 20, src.MaxOpen)
	assert.Equal(t, "default", cfg.RDS.Aliases["org"])

	gc, err := cfg.IDGen.GeneratorConfig()
	require.NoError(t, err)
	assert.Equal(t, idgen.Config{
		ProcessID:    3,
		DatacenterID: 1,
		Epoch:        time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC),
	}, gc)

	require.Len(t, cfg.Entities, 2)
	area, err := cfg.Entities[0].Schema()
	require.NoError(t, err)
	assert.True(t, area.MultiTenant)
	assert.True(t, area.StandardProperties)
	assert.Equal(t, entity.IDGeneratorSnowflake, area.IDGenerator)
	assert.Equal(t, []string{"meta"}, area.JSONFields)
	require.NotNil(t, area.Sort)
	assert.Equal(t, []string{"pid"}, area.Sort.ConditionFields)

	region, err := cfg.Entities[1].Schema()
	require.NoError(t, err)
	assert.False(t, region.MultiTenant)
	assert.Equal(t, entity.IDGeneratorUUID, region.IDGenerator)
	assert.Equal(t, "default", cfg.Entities[1].Datasource)
}

func TestLoadFrom_EnvOverrides(t *testing.T) {
	root := writeRoot(t, sampleYAML)
	t.Setenv("TENANTSTORE_HTTP__LISTEN_ADDR", "0.0.0.0:9090")
	t.Setenv("TENANTSTORE_RDS__DATASOURCES__DEFAULT__PASSWORD", "plain")

	cfg, err := LoadFrom(context.Background(), root, nil)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9090", cfg.HTTP.ListenAddr)
	assert.Equal(t, "app:plain@tcp(db:3306)/core", cfg.RDS.Sources()["default"].DSN)
}

func TestLoadFrom_VaultRefWithoutResolver(t *testing.T) {
	root := writeRoot(t, sampleYAML)
	_, err := LoadFrom(context.Background(), root, nil)
	assert.True(t, errors.Is(err, ErrNoSecretResolver))
}

func TestLoadFrom_ValidationFailures(t *testing.T) {
	cases := map[string]string{
		"missing listen addr": `
rds: {datasources: {default: {driver: mysql, dsn: x}}}
`,
		"bad driver": `
http: {listen_addr: "127.0.0.1:1"}
rds: {datasources: {default: {driver: oracle, dsn: x}}}
`,
		"process id out of range": `
http: {listen_addr: "127.0.0.1:1"}
idgen: {process_id: 8}
rds: {datasources: {default: {driver: sqlite, dsn: x}}}
`,
		"dangling alias": `
http: {listen_addr: "127.0.0.1:1"}
rds: {datasources: {default: {driver: sqlite, dsn: x}}, aliases: {org: nowhere}}
`,
		"unknown entity datasource": `
http: {listen_addr: "127.0.0.1:1"}
rds: {datasources: {default: {driver: sqlite, dsn: x}}}
entities: [{name: a, table: a, datasource: iam}]
`,
		"duplicate entity": `
http: {listen_addr: "127.0.0.1:1"}
rds: {datasources: {default: {driver: sqlite, dsn: x}}}
entities: [{name: a, table: a}, {name: a, table: b}]
`,
		"unsafe table": `
http: {listen_addr: "127.0.0.1:1"}
rds: {datasources: {default: {driver: sqlite, dsn: x}}}
entities: [{name: a, table: "a; drop"}]
`,
		"bad generator": `
http: {listen_addr: "127.0.0.1:1"}
rds: {datasources: {default: {driver: sqlite, dsn: x}}}
entities: [{name: a, table: a, id_generator: ulid}]
`,
	}
	for name, yaml := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadFrom(context.Background(), writeRoot(t, yaml), nil)
			assert.Error(t, err)
		})
	}
}

func TestLoadFrom_MissingFile(t *testing.T) {
	_, err := LoadFrom(context.Background(), t.TempDir(), nil)
	assert.Error(t, err)
}

func TestRootDir_EnvOverride(t *testing.T) {
	t.Setenv("TENANTSTORE_ROOT", "/srv/tenantstore")
	assert.Equal(t, "/srv/tenantstore", RootDir())
}
