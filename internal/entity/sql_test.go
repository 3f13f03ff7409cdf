// internal/entity/sql_test.go
//
// Statement shapes as seen by the driver, via sqlmock behind rds.Client.

package entity

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanizio/tenantstore/internal/condition"
	"github.com/yanizio/tenantstore/internal/rds"
)

func newMockEngine(t *testing.T, driver string, schema Schema) (*Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return newEngine(t, schema, rds.NewClient("test", sqlx.NewDb(db, driver))), mock
}

func TestSQL_QueryCountsThenPages(t *testing.T) {
	e, mock := newMockEngine(t, "mysql", DefaultSchema())

	base := `SELECT * FROM org_area WHERE tenant_id = ? AND status = ? ORDER BY sort_num DESC`
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) AS total FROM (` + base + `) AS count_table`)).
		WithArgs("t-1", "on").
		WillReturnRows(sqlmock.NewRows([]string{"total"}).AddRow(int64(12)))
	mock.ExpectQuery(regexp.QuoteMeta(base + ` LIMIT 5 OFFSET 10`)).
		WithArgs("t-1", "on").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(11), []byte("east")))

	page, err := e.Query(context.Background(), tenantOnly, Filter{
		Conditions: condition.Condition{"status": "on"},
		Orders:     condition.Order{{Field: "sort_num", Direction: "desc"}},
	}, 5, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(12), page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "east", page.Items[0]["name"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQL_ListUsesDefaultLimit(t *testing.T) {
	e, mock := newMockEngine(t, "mysql", DefaultSchema())

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM org_area WHERE tenant_id = ? LIMIT 1000`)).
		WithArgs("t-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	items, err := e.List(context.Background(), tenantOnly, Filter{}, 0)
	require.NoError(t, err)
	assert.Empty(t, items)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQL_PostgresPlaceholders(t *testing.T) {
	e, mock := newMockEngine(t, "pgx", DefaultSchema())

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM org_area WHERE tenant_id = $1 AND id IN ($2, $3)`)).
		WithArgs("t-1", int64(1), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := e.BatchRemove(context.Background(), tenantOnly, []any{int64(1), int64(2)}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQL_ExistsAndGet(t *testing.T) {
	e, mock := newMockEngine(t, "mysql", DefaultSchema())

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM org_area WHERE tenant_id = ? AND code = ? LIMIT 1`)).
		WithArgs("t-1", "N").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM org_area WHERE tenant_id = ? AND id = ? LIMIT 1`)).
		WithArgs("t-1", int64(404)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	ok, err := e.Exists(context.Background(), tenantOnly, condition.Condition{"code": "N"})
	require.NoError(t, err)
	assert.True(t, ok)

	rec, err := e.Get(context.Background(), tenantOnly, int64(404), nil)
	require.NoError(t, err)
	assert.Nil(t, rec)
	require.NoError(t, mock.ExpectationsWereMet())
}
