// Package dbtest provisions a throwaway PostgreSQL schema for store tests.
// Tests skip unless ACCUMULATOR_TEST_DATABASE_URL points at a database the
// test user may create schemas in.
package dbtest

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/benefits/accumulator/internal/platform/db"
	"github.com/benefits/accumulator/migrations"
)

const EnvURL = "ACCUMULATOR_TEST_DATABASE_URL"

// Pool migrates a fresh schema and returns a pool whose search_path points
// at it. The schema is dropped when the test ends.
func Pool(t testing.TB) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv(EnvURL)
	if url == "" {
		t.Skipf("%s not set", EnvURL)
	}
	ctx := context.Background()

	admin, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	schema := "it_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if _, err := db.NewMigrator(admin, migrations.FS).Up(ctx, schema); err != nil {
		admin.Close()
		t.Fatalf("migrate %s: %v", schema, err)
	}

	pool, err := db.NewPool(ctx, db.PoolOptions{URL: url, SearchPath: schema})
	if err != nil {
		admin.Close()
		t.Fatalf("connect to %s: %v", schema, err)
	}

	t.Cleanup(func() {
		pool.Close()
		if _, err := admin.Exec(context.Background(), "DROP SCHEMA IF EXISTS "+schema+" CASCADE"); err != nil {
			t.Logf("drop schema %s: %v", schema, err)
		}
		admin.Close()
	})
	return pool
}
