package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "migrate.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestApplyMigrations(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	fsys := fstest.MapFS{
		"m/001_init.sql": {Data: []byte("-- +migrate Up\nCREATE TABLE a (id INTEGER);\n-- +migrate Down\nDROP TABLE a;\n")},
		"m/002_more.sql": {Data: []byte("CREATE TABLE b (id INTEGER);")},
		"m/README.md":    {Data: []byte("ignored")},
	}

	if err := ApplyMigrations(ctx, db, fsys, "m"); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	// Second run must be a no-op; re-executing CREATE TABLE would fail.
	if err := ApplyMigrations(ctx, db, fsys, "m"); err != nil {
		t.Fatalf("second apply: %v", err)
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("recorded migrations = %d, want 2", n)
	}
	for _, table := range []string{"a", "b"} {
		if _, err := db.Exec(`INSERT INTO ` + table + ` (id) VALUES (1)`); err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestApplyMigrationsFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	fsys := fstest.MapFS{
		"001_bad.sql": {Data: []byte("CREATE TABLE ok (id INTEGER); THIS IS NOT SQL;")},
	}
	if err := ApplyMigrations(ctx, db, fsys, ""); err == nil {
		t.Fatal("expected error")
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("failed migration recorded")
	}
}

func TestUpSection(t *testing.T) {
	if got := upSection("SELECT 1;"); got != "SELECT 1;" {
		t.Errorf("upSection plain = %q", got)
	}
	if got := upSection("-- +migrate Up\nX\n-- +migrate Down\nY"); got != "\nX\n" {
		t.Errorf("upSection = %q", got)
	}
}

func TestApplyMigrationsNilDB(t *testing.T) {
	if err := ApplyMigrations(context.Background(), nil, fstest.MapFS{}, ""); err == nil {
		t.Error("expected error for nil db")
	}
}
