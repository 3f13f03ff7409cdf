// internal/rds/registry.go
//
// Named datasource registry.
//
// Context
// -------
// Entities name the datasource they live in ("org", "iam", "default").
// Operators may point several names at one physical pool through the
// alias table, so `org → default` shares the default pool.  The registry
// resolves the alias, then lazily opens one Client per resolved name on
// first use.  Concurrent first calls for the same name share one open via
// singleflight.
//
// Notes
// -----
//   - Unknown names fail with ErrUnknownDatasource, unsupported drivers
//     with ErrUnsupportedDriver; neither is retried.
//   - Close closes every pool opened so far.
//   - Oxford commas, two spaces after periods.
package rds

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/yanizio/tenantstore/internal/database"
)

// DefaultDatasource is used when an entity names none.
const DefaultDatasource = "default"

var (
	ErrUnknownDatasource = errors.New("rds: unknown datasource")
	ErrUnsupportedDriver = errors.New("rds: unsupported driver")
)

// Source describes how to open one datasource.
type Source struct {
	Driver          string
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
}

// Opener opens a pool; database.OpenWithOptions in production.
type Opener func(ctx context.Context, driver, dsn string, opts database.Options) (*sqlx.DB, error)

// Registry maps datasource names to lazily opened Clients.
type Registry struct {
	sources map[string]Source
	aliases map[string]string
	open    Opener

	sfg singleflight.Group
	m   sync.Map // resolved name → *Client
}

// NewRegistry builds a registry.  A nil open selects
// database.OpenWithOptions.
func NewRegistry(sources map[string]Source, aliases map[string]string, open Opener) *Registry {
	if open == nil {
		open = database.OpenWithOptions
	}
	return &Registry{sources: sources, aliases: aliases, open: open}
}

// Resolve applies the alias table.  An empty name means DefaultDatasource.
func (r *Registry) Resolve(name string) string {
	if name == "" {
		name = DefaultDatasource
	}
	if alias, ok := r.aliases[name]; ok && alias != "" {
		return alias
	}
	return name
}

// Register installs an already-open client under name, bypassing the
// source table.
func (r *Registry) Register(name string, c *Client) {
	r.m.Store(name, c)
}

// Client returns the client for name, opening its pool on first use.
func (r *Registry) Client(ctx context.Context, name string) (*Client, error) {
	resolved := r.Resolve(name)
	if v, ok := r.m.Load(resolved); ok {
		return v.(*Client), nil
	}

	v, err, _ := r.sfg.Do(resolved, func() (interface{}, error) {
		// Double-check after singleflight barrier.
		if v, ok := r.m.Load(resolved); ok {
			return v.(*Client), nil
		}
		src, ok := r.sources[resolved]
		if !ok {
			return nil, fmt.Errorf("%w: %q (requested %q)", ErrUnknownDatasource, resolved, name)
		}
		if !database.Supported(src.Driver) {
			return nil, fmt.Errorf("%w: %q for datasource %q", ErrUnsupportedDriver, src.Driver, resolved)
		}

		opts := database.DefaultOptions
		if src.MaxOpen > 0 {
			opts.MaxOpenConns = src.MaxOpen
		}
		if src.MaxIdle > 0 {
			opts.MaxIdleConns = src.MaxIdle
		}
		if src.ConnMaxLifetime > 0 {
			opts.ConnMaxLifetime = src.ConnMaxLifetime
		}
		db, err := r.open(ctx, src.Driver, src.DSN, opts)
		if err != nil {
			return nil, fmt.Errorf("rds: open datasource %q: %w", resolved, err)
		}

		c := NewClient(resolved, db)
		r.m.Store(resolved, c)
		zap.L().Info("datasource online",
			zap.String("datasource", resolved),
			zap.String("requested", name),
			zap.String("driver", src.Driver))
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Client), nil
}

// Close closes every opened pool and returns the first error.
func (r *Registry) Close() error {
	var first error
	r.m.Range(func(key, value any) bool {
		if err := value.(*Client).Close(); err != nil && first == nil {
			first = err
		}
		r.m.Delete(key)
		return true
	})
	return first
}
