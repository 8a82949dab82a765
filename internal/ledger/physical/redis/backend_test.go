package redis

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/MasterChonk/SkillToken-V2/internal/ledger/physical"
	"github.com/MasterChonk/SkillToken-V2/internal/ledger/physical/backendtest"
	"github.com/MasterChonk/SkillToken-V2/internal/storage"
)

// testAddr returns the Redis address to test against, skipping when unset.
func testAddr(t testing.TB) string {
	t.Helper()
	addr := os.Getenv("SKILLTOKEN_TEST_REDIS")
	if addr == "" {
		t.Skip("SKILLTOKEN_TEST_REDIS not set")
	}
	return addr
}

func openWithPrefix(t testing.TB, addr, prefix string) physical.Backend {
	t.Helper()
	be, err := NewFactory(context.Background(), map[string]string{
		KeyAddr:      addr,
		KeyKeyPrefix: prefix,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		rb := be.(*Backend)
		if !rb.closed.Load() {
			rb.client.Del(context.Background(), rb.Keys()...)
		}
		be.Close()
	})
	return be
}

func TestConformance(t *testing.T) {
	addr := testAddr(t)
	prefixes := map[physical.Backend]string{}
	backendtest.RunAll(t, func(t testing.TB) physical.Backend {
		prefix := "skilltoken-test:" + uuid.NewString() + ":"
		be := openWithPrefix(t, addr, prefix)
		prefixes[be] = prefix
		return be
	}, backendtest.Config{
		Reopen: func(t testing.TB, closed physical.Backend) physical.Backend {
			return openWithPrefix(t, addr, prefixes[closed])
		},
	})
}

func TestEmptyAddr(t *testing.T) {
	_, err := NewFactory(context.Background(), map[string]string{KeyAddr: ""})
	var cfgErr *storage.ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Field != KeyAddr {
		t.Fatalf("err = %v, want ConfigError on %s", err, KeyAddr)
	}
}

func TestInvalidDB(t *testing.T) {
	tests := []struct {
		name string
		db   string
	}{
		{"not a number", "zero"},
		{"negative", "-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFactory(context.Background(), map[string]string{KeyAddr: "localhost:6379", KeyDB: tt.db})
			var cfgErr *storage.ConfigError
			if !errors.As(err, &cfgErr) || cfgErr.Field != KeyDB {
				t.Fatalf("err = %v, want ConfigError on %s", err, KeyDB)
			}
		})
	}
}

func TestKeys(t *testing.T) {
	b := NewWithClient(nil, "p:")
	want := []string{"p:roles", "p:courses", "p:certificates", "p:grants", "p:events", "p:seq"}
	got := b.Keys()
	if len(got) != len(want) {
		t.Fatalf("Keys() = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Keys()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
