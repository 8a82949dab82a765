package badger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/MasterChonk/SkillToken-V2/internal/ledger/physical"
	"github.com/MasterChonk/SkillToken-V2/internal/ledger/physical/backendtest"
	"github.com/MasterChonk/SkillToken-V2/internal/storage"
)

func openAt(t testing.TB, path string) physical.Backend {
	t.Helper()
	be, err := NewFactory(context.Background(), map[string]string{KeyPath: path, KeySyncWrites: "false"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { be.Close() })
	return be
}

func newInMemoryBackend(t testing.TB) physical.Backend {
	t.Helper()
	be, err := NewFactory(context.Background(), map[string]string{KeyInMemory: "true"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { be.Close() })
	return be
}

func TestConformance(t *testing.T) {
	backendtest.RunAll(t, newInMemoryBackend, backendtest.Config{})
}

func TestConformanceOnDisk(t *testing.T) {
	paths := map[physical.Backend]string{}
	backendtest.RunAll(t, func(t testing.TB) physical.Backend {
		path := filepath.Join(t.TempDir(), "ledger")
		be := openAt(t, path)
		paths[be] = path
		return be
	}, backendtest.Config{
		Reopen: func(t testing.TB, closed physical.Backend) physical.Backend {
			return openAt(t, paths[closed])
		},
	})
}

func TestIDKeyOrdering(t *testing.T) {
	tests := []struct {
		a, b uint64
	}{
		{1, 2},
		{9, 10},
		{255, 256},
		{1 << 32, 1<<32 + 1},
	}
	for _, tt := range tests {
		ka, kb := string(idKey(prefixEvent, tt.a)), string(idKey(prefixEvent, tt.b))
		if ka >= kb {
			t.Errorf("idKey(%d) >= idKey(%d)", tt.a, tt.b)
		}
	}
}

func TestInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		config map[string]string
		field  string
	}{
		{"bad in_memory", map[string]string{KeyInMemory: "maybe"}, KeyInMemory},
		{"empty path", map[string]string{KeyPath: ""}, KeyPath},
		{"bad sync_writes", map[string]string{KeyPath: "x", KeySyncWrites: "sometimes"}, KeySyncWrites},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.config[KeyPath] == "x" {
				tt.config[KeyPath] = filepath.Join(t.TempDir(), "x")
			}
			_, err := NewFactory(context.Background(), tt.config)
			var cfgErr *storage.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("err = %v, want *storage.ConfigError", err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("Field = %q, want %q", cfgErr.Field, tt.field)
			}
		})
	}
}

func BenchmarkApply(b *testing.B) {
	backendtest.RunBench(b, newInMemoryBackend)
}
