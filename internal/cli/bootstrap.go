package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/yanizio/tenantstore/internal/config"
	"github.com/yanizio/tenantstore/internal/entity"
	"github.com/yanizio/tenantstore/internal/idgen"
	"github.com/yanizio/tenantstore/internal/rds"
	"github.com/yanizio/tenantstore/internal/service"
)

// BuildServices opens one engine per configured entity and wraps each in a
// service keyed by entity name.  Datasources open lazily through reg; the
// first entity on a datasource pays the connect.
func BuildServices(ctx context.Context, cfg *config.Config, reg *rds.Registry, gen *idgen.Generator) (map[string]*service.Service, error) {
	out := make(map[string]*service.Service, len(cfg.Entities))
	for _, ec := range cfg.Entities {
		schema, err := ec.Schema()
		if err != nil {
			return nil, fmt.Errorf("entity %s: %w", ec.Name, err)
		}
		e, err := entity.Open(ctx, reg, ec.Table, ec.Datasource, schema, entity.WithIDGenerator(gen))
		if err != nil {
			return nil, fmt.Errorf("entity %s: %w", ec.Name, err)
		}
		out[ec.Name] = service.New(ec.Name, e)
		zap.L().Info("entity online",
			zap.String("entity", ec.Name),
			zap.String("table", ec.Table),
			zap.String("datasource", reg.Resolve(ec.Datasource)),
			zap.Bool("multi_tenant", schema.MultiTenant))
	}
	return out, nil
}
