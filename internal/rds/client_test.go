// internal/rds/client_test.go
//
// Unit-tests for Client using sqlmock.
//
// Run: go test ./internal/rds -v

package rds

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockClient(t *testing.T) (*Client, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewClient("test", sqlx.NewDb(db, "mysql")), mock
}

func TestInsert_SortedColumnsAndExplicitID(t *testing.T) {
	c, mock := newMockClient(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO org_area (id, name, pid) VALUES (?, ?, ?)`)).
		WithArgs(int64(99), "north", int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	res, err := c.Insert(context.Background(), "org_area",
		map[string]any{"pid": int64(5), "id": int64(99), "name": "north"})
	require.NoError(t, err)
	assert.Equal(t, int64(99), res.InsertID)
	assert.Equal(t, int64(1), res.AffectedRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_FallsBackToLastInsertID(t *testing.T) {
	c, mock := newMockClient(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO tag (name) VALUES (?)`)).
		WithArgs("go").
		WillReturnResult(sqlmock.NewResult(17, 1))

	res, err := c.Insert(context.Background(), "tag", map[string]any{"name": "go"})
	require.NoError(t, err)
	assert.Equal(t, int64(17), res.InsertID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_RejectsBadColumn(t *testing.T) {
	c, mock := newMockClient(t)
	_, err := c.Insert(context.Background(), "tag", map[string]any{"name) VALUES (1); --": "x"})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecute_WrapsDriverErrors(t *testing.T) {
	c, mock := newMockClient(t)
	boom := errors.New("boom")
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM tag WHERE id = ?`)).
		WithArgs(1).
		WillReturnError(boom)

	_, err := c.Execute(context.Background(), `DELETE FROM tag WHERE id = ?`, []any{1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Contains(t, err.Error(), "rds test: execute")
}

func TestQuery_AppendsWindowAndNormalisesBytes(t *testing.T) {
	c, mock := newMockClient(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM tag WHERE tenant_id = ? LIMIT 10 OFFSET 20`)).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(int64(1), []byte("go")).
			AddRow(int64(2), []byte("sql")))

	rows, err := c.Query(context.Background(), `SELECT * FROM tag WHERE tenant_id = ?`, []any{"t1"}, 10, 20)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "go", rows[0]["name"])
	assert.Equal(t, int64(2), rows[1]["id"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryWithTotal_SkipsItemsWhenEmpty(t *testing.T) {
	c, mock := newMockClient(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) AS total FROM (SELECT * FROM tag) AS count_table`)).
		WillReturnRows(sqlmock.NewRows([]string{"total"}).AddRow(int64(0)))

	page, err := c.QueryWithTotal(context.Background(), `SELECT * FROM tag`, nil, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), page.Total)
	assert.Empty(t, page.Items)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryWithTotal_FetchesWindow(t *testing.T) {
	c, mock := newMockClient(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) AS total FROM (SELECT * FROM tag) AS count_table`)).
		WillReturnRows(sqlmock.NewRows([]string{"total"}).AddRow(int64(3)))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM tag LIMIT 2`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).AddRow(int64(2)))

	page, err := c.QueryWithTotal(context.Background(), `SELECT * FROM tag`, nil, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Len(t, page.Items, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOne_NotFound(t *testing.T) {
	c, mock := newMockClient(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM tag WHERE id = ? LIMIT 1`)).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := c.GetOne(context.Background(), `SELECT * FROM tag WHERE id = ?`, []any{5})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFindOne_EmptyIsNotAnError(t *testing.T) {
	c, mock := newMockClient(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM tag WHERE id = ? LIMIT 1`)).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	row, err := c.FindOne(context.Background(), `SELECT * FROM tag WHERE id = ?`, []any{5})
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestExists(t *testing.T) {
	c, mock := newMockClient(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM tag WHERE name = ? LIMIT 1`)).
		WithArgs("go").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

	ok, err := c.Exists(context.Background(), `SELECT * FROM tag WHERE name = ?`, []any{"go"})
	require.NoError(t, err)
	assert.True(t, ok)
}
