package s3

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/MasterChonk/SkillToken-V2/internal/archive"
	"github.com/MasterChonk/SkillToken-V2/internal/storage"
)

// mockS3 is a path-style S3 endpoint holding objects in memory.
type mockS3 struct {
	mu           sync.Mutex
	objects      map[string][]byte
	contentTypes map[string]string
}

func newMockS3() *mockS3 {
	return &mockS3{objects: make(map[string][]byte), contentTypes: make(map[string]string)}
}

func (m *mockS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
	if len(parts) < 2 || parts[1] == "" {
		w.WriteHeader(http.StatusOK)
		return
	}
	key := parts[1]

	m.mu.Lock()
	defer m.mu.Unlock()
	switch r.Method {
	case http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		m.objects[key] = data
		m.contentTypes[key] = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		data, ok := m.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`))
			return
		}
		w.Write(data)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestSink(t *testing.T) (*Sink, *mockS3) {
	t.Helper()
	mock := newMockS3()
	srv := httptest.NewServer(mock)
	t.Cleanup(srv.Close)

	s, err := NewFactory(context.Background(), map[string]string{
		KeyBucket:          "archive",
		KeyEndpoint:        srv.URL,
		KeyPrefix:          "skilltoken/",
		KeyForcePathStyle:  "true",
		KeyAccessKeyID:     "test",
		KeySecretAccessKey: "test",
	})
	if err != nil {
		t.Fatal(err)
	}
	return s.(*Sink), mock
}

func TestPutGet(t *testing.T) {
	ctx := context.Background()
	s, mock := newTestSink(t)

	if err := s.Put(ctx, "snap.yaml", []byte("last_seq: 3\n")); err != nil {
		t.Fatal(err)
	}
	mock.mu.Lock()
	_, stored := mock.objects["skilltoken/snap.yaml"]
	ct := mock.contentTypes["skilltoken/snap.yaml"]
	mock.mu.Unlock()
	if !stored {
		t.Fatal("object not stored under prefix")
	}
	if ct != "application/yaml" {
		t.Errorf("content type = %q", ct)
	}

	got, err := s.Get(ctx, "snap.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "last_seq: 3\n" {
		t.Errorf("got %q", got)
	}
}

func TestGetMissing(t *testing.T) {
	s, _ := newTestSink(t)
	if _, err := s.Get(context.Background(), "missing.json"); !errors.Is(err, archive.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestClosed(t *testing.T) {
	s, _ := newTestSink(t)
	s.Close()
	if err := s.Put(context.Background(), "a.json", nil); !errors.Is(err, archive.ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}

func TestRequiresBucket(t *testing.T) {
	_, err := NewFactory(context.Background(), map[string]string{})
	var cfgErr *storage.ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Field != KeyBucket {
		t.Errorf("err = %v, want config error on bucket", err)
	}
}

func TestContentType(t *testing.T) {
	tests := map[string]string{
		"a.json": "application/json",
		"a.yaml": "application/yaml",
		"a.bin":  "application/octet-stream",
	}
	for name, want := range tests {
		if got := contentType(name); got != want {
			t.Errorf("contentType(%q) = %q, want %q", name, got, want)
		}
	}
}
