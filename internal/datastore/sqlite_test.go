package datastore

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relfind/internal/dbexec"
	"relfind/internal/filter"
	"relfind/internal/sqlutil"
	"relfind/internal/testutil/world"
)

// openSQLite returns an in-memory database, skipping when the cgo driver is
// unavailable.
func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Skipf("sqlite3 unavailable: %v", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("sqlite3 unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLStore_SQLiteIntegration(t *testing.T) {
	db := openSQLite(t)
	world.LoadSQL(t, db)

	reg := world.Registry(t)
	store := NewSQLStore(dbexec.NewStandardExecutor(db), reg, sqlutil.SQLite, nil)
	ctx := context.Background()

	people, err := store.Find(ctx, entity(t, reg, "Person"), FindOptions{
		Where: filter.Condition{"cityId": map[string]any{"in": []any{110, 220}}},
		Include: []filter.Include{{
			Relation: "city",
			Scope:    &filter.Scope{Include: []filter.Include{{Relation: "country"}}},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(111), int64(112), int64(221), int64(222)}, ids(people))
	assert.Equal(t, "AUS", people[3]["city"].(Node)["country"].(Node)["name"])

	countries, err := store.Find(ctx, entity(t, reg, "Country"), FindOptions{
		Include: []filter.Include{{Relation: "cities", Scope: &filter.Scope{
			Include: []filter.Include{{Relation: "people", Scope: &filter.Scope{
				Where: filter.Condition{"name": "Seth"},
			}}},
		}}},
	})
	require.NoError(t, err)
	require.Len(t, countries, 2)
	aus := countries[1]["cities"].([]Node)
	require.Len(t, aus, 2)
	assert.Empty(t, aus[0]["people"])
	assert.Equal(t, "Seth", aus[1]["people"].([]Node)[0]["name"])

	paged, err := store.Find(ctx, entity(t, reg, "Product"), FindOptions{
		Order: []filter.OrderBy{{Field: "name", Desc: true}},
		Limit: 3,
		Skip:  1,
	})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(2210), int64(2120), int64(2110)}, ids(paged))
}
