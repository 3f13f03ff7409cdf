package rds

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanizio/tenantstore/internal/database"
)

func TestRegistry_ResolvesAliasesAndOpensOnce(t *testing.T) {
	var opened atomic.Int32
	open := func(_ context.Context, driver, dsn string, opts database.Options) (*sqlx.DB, error) {
		opened.Add(1)
		assert.Equal(t, "mysql", driver)
		assert.Equal(t, "root@/main", dsn)
		assert.Equal(t, 20, opts.MaxOpenConns)
		db, _, err := sqlmock.New()
		if err != nil {
			return nil, err
		}
		return sqlx.NewDb(db, "mysql"), nil
	}

	r := NewRegistry(
		map[string]Source{"default": {Driver: "mysql", DSN: "root@/main", MaxOpen: 20}},
		map[string]string{"org": "default", "iam": "default"},
		open,
	)
	defer r.Close()

	var wg sync.WaitGroup
	for _, name := range []string{"org", "iam", "", "default", "org"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			c, err := r.Client(context.Background(), name)
			if assert.NoError(t, err) {
				assert.Equal(t, "default", c.Name())
			}
		}(name)
	}
	wg.Wait()
	assert.Equal(t, int32(1), opened.Load())
}

func TestRegistry_UnknownDatasource(t *testing.T) {
	r := NewRegistry(nil, nil, nil)
	_, err := r.Client(context.Background(), "bpm")
	assert.True(t, errors.Is(err, ErrUnknownDatasource))
}

func TestRegistry_UnsupportedDriver(t *testing.T) {
	r := NewRegistry(map[string]Source{"default": {Driver: "oracle"}}, nil, nil)
	_, err := r.Client(context.Background(), "")
	assert.True(t, errors.Is(err, ErrUnsupportedDriver))
}

func TestRegistry_RegisterBypassesSources(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()
	r := NewRegistry(nil, map[string]string{"dcm": "mem"}, nil)
	r.Register("mem", NewClient("mem", sqlx.NewDb(db, "mysql")))

	c, err := r.Client(context.Background(), "dcm")
	require.NoError(t, err)
	assert.Equal(t, "mem", c.Name())
	require.NoError(t, r.Close())
}

func TestIsDuplicateKey(t *testing.T) {
	assert.True(t, IsDuplicateKey(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}))
	assert.False(t, IsDuplicateKey(&mysql.MySQLError{Number: 1146}))
	assert.True(t, IsDuplicateKey(errors.New("constraint failed: UNIQUE constraint failed: tag.name (2067)")))
	assert.False(t, IsDuplicateKey(nil))
}
