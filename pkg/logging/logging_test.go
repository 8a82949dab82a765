package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/MasterChonk/SkillToken-V2/pkg/credential"
)

func TestLoggerAttributes(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	acct := credential.MustParseAccount("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	l := New(base).
		WithComponent("registry").
		WithAccount("caller", acct).
		WithCourse(4).
		WithToken(9).
		WithError(errors.New("boom")).
		WithError(nil)

	l.InfoContext(context.Background(), "issued", "extra", 1)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON: %v (%s)", err, buf.String())
	}
	want := map[string]any{
		"msg":       "issued",
		"component": "registry",
		"caller":    "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed",
		"course_id": float64(4),
		"token_id":  float64(9),
		"error":     "boom",
		"extra":     float64(1),
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s = %v, want %v", k, entry[k], v)
		}
	}
}

func TestWithDoesNotMutateParent(t *testing.T) {
	parent := Discard().WithComponent("a")
	child := parent.WithCorrelation("sub-1")
	if len(parent.attrs) != 1 || len(child.attrs) != 2 {
		t.Fatalf("parent attrs = %d, child attrs = %d", len(parent.attrs), len(child.attrs))
	}
}

func TestNewNilUsesDefault(t *testing.T) {
	if New(nil).Slog() != slog.Default() {
		t.Error("New(nil) should wrap slog.Default()")
	}
}
