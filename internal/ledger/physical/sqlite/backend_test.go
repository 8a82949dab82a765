package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/MasterChonk/SkillToken-V2/internal/ledger/physical"
	"github.com/MasterChonk/SkillToken-V2/internal/ledger/physical/backendtest"
	"github.com/MasterChonk/SkillToken-V2/internal/storage"
)

func openAt(t testing.TB, path string) physical.Backend {
	t.Helper()
	be, err := NewFactory(context.Background(), map[string]string{KeyPath: path})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { be.Close() })
	return be
}

func newTestBackend(t testing.TB) physical.Backend {
	t.Helper()
	return openAt(t, filepath.Join(t.TempDir(), "test.db"))
}

func TestConformance(t *testing.T) {
	paths := map[physical.Backend]string{}
	backendtest.RunAll(t, func(t testing.TB) physical.Backend {
		path := filepath.Join(t.TempDir(), "ledger.db")
		be := openAt(t, path)
		paths[be] = path
		return be
	}, backendtest.Config{
		Reopen: func(t testing.TB, closed physical.Backend) physical.Backend {
			return openAt(t, paths[closed])
		},
	})
}

func TestDataDirResolution(t *testing.T) {
	dir := t.TempDir()
	be, err := physical.New(context.Background(), "sqlite", nil, dir, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer be.Close()

	if _, err := os.Stat(filepath.Join(dir, "ledger.db")); err != nil {
		t.Errorf("default path not created under data dir: %v", err)
	}
}

func TestEmptyPath(t *testing.T) {
	_, err := NewFactory(context.Background(), map[string]string{KeyPath: ""})
	var cfgErr *storage.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want *storage.ConfigError", err)
	}
	if cfgErr.Field != KeyPath {
		t.Errorf("Field = %q, want %q", cfgErr.Field, KeyPath)
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	first := openAt(t, path)
	if err := first.Apply(context.Background(), backendtest.SeedCommit(1)); err != nil {
		t.Fatal(err)
	}
	first.Close()

	second := openAt(t, path)
	var applied int
	row := second.(*Backend).db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`)
	if err := row.Scan(&applied); err != nil {
		t.Fatal(err)
	}
	if applied != 1 {
		t.Errorf("schema_migrations rows = %d, want 1", applied)
	}
}

func TestStatsSize(t *testing.T) {
	be := newTestBackend(t)
	stats, err := be.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.BackendType != "sqlite" {
		t.Errorf("BackendType = %q", stats.BackendType)
	}
	if stats.SizeBytes <= 0 {
		t.Errorf("SizeBytes = %d, want > 0", stats.SizeBytes)
	}
}

func BenchmarkApply(b *testing.B) {
	backendtest.RunBench(b, newTestBackend)
}
