package archive

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.yaml.in/yaml/v3"

	"github.com/MasterChonk/SkillToken-V2/internal/ledger/physical"
	"github.com/MasterChonk/SkillToken-V2/internal/observability"
	"github.com/MasterChonk/SkillToken-V2/internal/storage"
	"github.com/MasterChonk/SkillToken-V2/pkg/credential"
	"github.com/MasterChonk/SkillToken-V2/pkg/logging"
)

var at = time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)

func testSnapshot(seq uint64) *physical.Snapshot {
	return &physical.Snapshot{
		Courses: []credential.Course{{
			ID:        1,
			Name:      "Intro",
			Owner:     credential.MustParseAccount("0x1111111111111111111111111111111111111111"),
			Active:    true,
			CreatedAt: at,
		}},
		LastSeq: seq,
	}
}

type memSink struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    error
}

func newMemSink() *memSink { return &memSink{objects: make(map[string][]byte)} }

func (m *memSink) Put(_ context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.objects[name] = data
	return nil
}

func (m *memSink) Get(_ context.Context, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.objects[name]
	if !ok {
		return nil, ErrNotFound
	}
	return d, nil
}

func (m *memSink) Close() error { return nil }

func (m *memSink) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

type fakeSource struct {
	mu  sync.Mutex
	seq uint64
}

func (f *fakeSource) Snapshot(context.Context) (*physical.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return testSnapshot(f.seq), nil
}

func (f *fakeSource) set(seq uint64) {
	f.mu.Lock()
	f.seq = seq
	f.mu.Unlock()
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatJSON, false},
		{"json", FormatJSON, false},
		{"YAML", FormatYAML, false},
		{"yml", FormatYAML, false},
		{"toml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEncode(t *testing.T) {
	snap := testSnapshot(7)

	t.Run("json", func(t *testing.T) {
		data, err := Encode(snap, FormatJSON)
		if err != nil {
			t.Fatal(err)
		}
		var got physical.Snapshot
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatal(err)
		}
		if got.LastSeq != 7 || len(got.Courses) != 1 || got.Courses[0].Name != "Intro" {
			t.Errorf("decoded = %+v", got)
		}
	})

	t.Run("yaml", func(t *testing.T) {
		data, err := Encode(snap, FormatYAML)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(data), "last_seq: 7") {
			t.Errorf("yaml missing last_seq:\n%s", data)
		}
		var got map[string]any
		if err := yaml.Unmarshal(data, &got); err != nil {
			t.Fatal(err)
		}
		if _, ok := got["courses"]; !ok {
			t.Errorf("yaml missing courses: %v", got)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		if _, err := Encode(snap, "xml"); err == nil {
			t.Error("expected error")
		}
	})
}

func TestObjectName(t *testing.T) {
	got := ObjectName(42, at, FormatYAML)
	want := "snapshot-00000000000000000042-20260102T150405Z.yaml"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if ObjectName(1, at, "") != "snapshot-00000000000000000001-20260102T150405Z.json" {
		t.Error("empty format should default to json")
	}
}

func TestArchiverSkipsUnchanged(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{seq: 3}
	sink := newMemSink()
	metrics := observability.NewMetrics()
	a := NewArchiver(src, sink, ArchiverConfig{
		SinkName: "mem",
		Metrics:  metrics,
		Logger:   logging.Discard(),
		Now:      func() time.Time { return at },
	})

	name, err := a.ArchiveOnce(ctx)
	if err != nil || name == "" {
		t.Fatalf("first archive = %q, %v", name, err)
	}
	data, err := sink.Get(ctx, name)
	if err != nil {
		t.Fatal(err)
	}
	if got := testutil.ToFloat64(metrics.ArchiveBytes.WithLabelValues("mem")); got != float64(len(data)) {
		t.Errorf("archive bytes = %v, want %d", got, len(data))
	}

	name, err = a.ArchiveOnce(ctx)
	if err != nil || name != "" {
		t.Fatalf("unchanged archive = %q, %v", name, err)
	}

	src.set(5)
	name, err = a.ArchiveOnce(ctx)
	if err != nil || !strings.Contains(name, "00000000000000000005") {
		t.Fatalf("changed archive = %q, %v", name, err)
	}
	if sink.len() != 2 {
		t.Errorf("objects = %d, want 2", sink.len())
	}
}

func TestArchiverSinkFailure(t *testing.T) {
	src := &fakeSource{seq: 1}
	sink := newMemSink()
	sink.fail = errors.New("disk full")
	a := NewArchiver(src, sink, ArchiverConfig{Logger: logging.Discard()})

	if _, err := a.ArchiveOnce(context.Background()); err == nil {
		t.Fatal("expected error")
	}

	// a failed write must not count as archived
	sink.fail = nil
	name, err := a.ArchiveOnce(context.Background())
	if err != nil || name == "" {
		t.Fatalf("retry = %q, %v", name, err)
	}
}

func TestArchiverRunWritesFinalSnapshot(t *testing.T) {
	src := &fakeSource{seq: 9}
	sink := newMemSink()
	a := NewArchiver(src, sink, ArchiverConfig{Logger: logging.Discard()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	if sink.len() != 1 {
		t.Errorf("objects = %d, want 1", sink.len())
	}
}

func TestNewUnknownSink(t *testing.T) {
	_, err := New(context.Background(), "tape", nil, "")
	var cfgErr *storage.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want *storage.ConfigError", err)
	}
}
