// internal/entity/sqlite_test.go
//
// Round-trips through a real database (modernc sqlite, in memory).

package entity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanizio/tenantstore/internal/condition"
	"github.com/yanizio/tenantstore/internal/database"
	"github.com/yanizio/tenantstore/internal/rds"
	"github.com/yanizio/tenantstore/internal/scope"
)

const orgAreaDDL = `CREATE TABLE org_area (
	id          INTEGER PRIMARY KEY,
	tenant_id   TEXT NOT NULL,
	pid         INTEGER,
	name        TEXT,
	status      TEXT,
	meta        TEXT,
	sort_num    INTEGER,
	create_date TEXT,
	update_date TEXT,
	create_by   TEXT,
	update_by   TEXT
)`

func newSQLiteEngine(t *testing.T) *Engine {
	t.Helper()
	ctx := context.Background()

	// One connection: every :memory: connection is its own database.
	db, err := database.OpenWithOptions(ctx, database.DriverSQLite, ":memory:",
		database.Options{MaxOpenConns: 1, MaxIdleConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.ExecContext(ctx, orgAreaDDL)
	require.NoError(t, err)

	schema := DefaultSchema()
	schema.JSONFields = []string{"meta"}
	schema.Sort = &SortStrategy{ConditionFields: []string{"pid"}}
	return newEngine(t, schema, rds.NewClient("sqlite", db))
}

func TestSQLite_TenantIsolation(t *testing.T) {
	ctx := context.Background()
	e := newSQLiteEngine(t)
	a := scope.New("tenant-a", "u-1")
	b := scope.New("tenant-b", "u-2")

	res, err := e.Insert(ctx, a, Record{"pid": 0, "name": "alpha", "status": "on"})
	require.NoError(t, err)
	idA := res.InsertID

	_, err = e.Insert(ctx, b, Record{"pid": 0, "name": "beta", "status": "on"})
	require.NoError(t, err)

	// b cannot see, change, or delete a's row.
	rec, err := e.Get(ctx, b, idA, nil)
	require.NoError(t, err)
	assert.Nil(t, rec)

	ok, err := e.Update(ctx, b, idA, Record{"name": "hijacked"}, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := e.Remove(ctx, b, idA, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	page, err := e.Query(ctx, b, Filter{Conditions: condition.Condition{"tenant_id": "tenant-a"}}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "beta", page.Items[0]["name"])

	rec, err = e.Get(ctx, a, idA, nil)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "alpha", rec["name"])
	assert.Equal(t, "tenant-a", rec["tenant_id"])
	assert.Equal(t, "u-1", rec["create_by"])
}

func TestSQLite_UpdateCannotMoveRecords(t *testing.T) {
	ctx := context.Background()
	e := newSQLiteEngine(t)
	a := scope.New("tenant-a", "u-1")

	res, err := e.Insert(ctx, a, Record{"pid": 0, "name": "alpha"})
	require.NoError(t, err)

	ok, err := e.Update(ctx, scope.New("tenant-a", "u-3"), res.InsertID,
		Record{"id": int64(1), "tenant_id": "tenant-b", "name": "renamed"}, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	rec, err := e.Get(ctx, a, res.InsertID, nil)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, res.InsertID, rec["id"])
	assert.Equal(t, "tenant-a", rec["tenant_id"])
	assert.Equal(t, "renamed", rec["name"])
	assert.Equal(t, "u-1", rec["create_by"])
	assert.Equal(t, "u-3", rec["update_by"])
}

func TestSQLite_JSONFieldsRoundTrip(t *testing.T) {
	ctx := context.Background()
	e := newSQLiteEngine(t)
	a := scope.New("tenant-a", "")

	res, err := e.Insert(ctx, a, Record{"pid": 0, "meta": map[string]any{"tags": []any{"x", "y"}}})
	require.NoError(t, err)

	rec, err := e.Get(ctx, a, res.InsertID, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"tags": []any{"x", "y"}}, rec["meta"])

	items, err := e.List(ctx, a, Filter{}, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, map[string]any{"tags": []any{"x", "y"}}, items[0]["meta"])
}

func TestSQLite_SortValuesPerSiblingGroup(t *testing.T) {
	ctx := context.Background()
	e := newSQLiteEngine(t)
	a := scope.New("tenant-a", "")

	first, err := e.Insert(ctx, a, Record{"pid": 5, "name": "one"})
	require.NoError(t, err)
	second, err := e.Insert(ctx, a, Record{"pid": 5, "name": "two"})
	require.NoError(t, err)
	other, err := e.Insert(ctx, a, Record{"pid": 6, "name": "three"})
	require.NoError(t, err)

	assert.NotEqual(t, first.InsertID, second.InsertID)
	for _, id := range []any{first.InsertID, second.InsertID, other.InsertID} {
		assert.Positive(t, id.(int64))
	}

	sortOf := func(id any) int64 {
		rec, err := e.Get(ctx, a, id, nil)
		require.NoError(t, err)
		require.NotNil(t, rec)
		return rec["sort_num"].(int64)
	}
	s1, s2, s3 := sortOf(first.InsertID), sortOf(second.InsertID), sortOf(other.InsertID)
	assert.Equal(t, int64(0), s1)
	assert.Equal(t, s1+DefaultSortStep, s2)
	assert.Equal(t, int64(0), s3)

	// Another tenant's group with the same pid starts over.
	b := scope.New("tenant-b", "")
	next, err := e.NextSortValue(ctx, b, Record{"pid": 5})
	require.NoError(t, err)
	assert.Equal(t, int64(0), next)

	items, err := e.List(ctx, a, Filter{
		Conditions: condition.Condition{"pid": 5},
		Orders:     condition.Order{{Field: "sort_num", Direction: "DESC"}},
	}, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "two", items[0]["name"])
}

func TestSQLite_BatchOperationsStayInTenant(t *testing.T) {
	ctx := context.Background()
	e := newSQLiteEngine(t)
	a := scope.New("tenant-a", "")
	b := scope.New("tenant-b", "")

	var ids []any
	for _, name := range []string{"x", "y"} {
		res, err := e.Insert(ctx, a, Record{"pid": 0, "name": name, "status": "on"})
		require.NoError(t, err)
		ids = append(ids, res.InsertID)
	}

	n, err := e.BatchUpdate(ctx, b, ids, Record{"status": "off"}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = e.BatchUpdate(ctx, a, ids, Record{"status": "off"}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	count, err := e.Count(ctx, a, condition.Condition{"status": "off"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	n, err = e.BatchRemove(ctx, b, ids, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = e.BatchRemove(ctx, a, ids, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	exists, err := e.Exists(ctx, a, nil)
	require.NoError(t, err)
	assert.False(t, exists)
}
