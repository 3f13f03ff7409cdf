// Package database centralises sqlx connection helpers.  Three drivers are
// linked in:
//
//	mysql   go-sql-driver/mysql (also MariaDB and TiDB)
//	pgx     jackc/pgx stdlib adapter for PostgreSQL
//	sqlite  modernc.org/sqlite, pure Go, used for embedded and test pools
//
// Public entry points:
//
//	Open(ctx, driver, dsn)                  – conservative pool sizes.
//	OpenWithOptions(ctx, driver, dsn, opts) – fine-grained control.
//
// Both helpers Ping the database before returning so callers can fail fast
// during bootstrap.  Transient ping failures are retried with exponential
// backoff up to opts.Retries times.  Callers should Close() the returned
// *sqlx.DB when no longer needed.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Supported driver names, as registered with database/sql.
const (
	DriverMySQL  = "mysql"
	DriverPgx    = "pgx"
	DriverSQLite = "sqlite"
)

// Supported reports whether driver is one of the linked drivers.
func Supported(driver string) bool {
	switch driver {
	case DriverMySQL, DriverPgx, DriverSQLite:
		return true
	}
	return false
}

// Options tunes one pool.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Retries         uint64
	RetryBackoff    time.Duration
}

// DefaultOptions are 15 max open, 5 idle, a 30-minute connection lifetime,
// and two ping retries starting at 500 ms.
var DefaultOptions = Options{
	MaxOpenConns:    15,
	MaxIdleConns:    5,
	ConnMaxLifetime: 30 * time.Minute,
	Retries:         2,
	RetryBackoff:    500 * time.Millisecond,
}

// Open returns a *sqlx.DB using DefaultOptions.
func Open(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	return OpenWithOptions(ctx, driver, dsn, DefaultOptions)
}

// OpenWithOptions lets callers tune pool sizes and retry policy.
func OpenWithOptions(ctx context.Context, driver, dsn string, opts Options) (*sqlx.DB, error) {
	if !Supported(driver) {
		return nil, fmt.Errorf("database: unsupported driver %q", driver)
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	eb := backoff.NewExponentialBackOff()
	if opts.RetryBackoff > 0 {
		eb.InitialInterval = opts.RetryBackoff
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, opts.Retries), ctx)

	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		if err := db.PingContext(ctx); err != nil {
			zap.L().Warn("database ping failed",
				zap.String("driver", driver), zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		return nil
	}, policy)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database: ping %s: %w", driver, err)
	}
	return db, nil
}
