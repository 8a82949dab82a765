package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

type fakeViper map[string]string

func (f fakeViper) GetString(key string) string { return f[key] }

type fakeConn struct {
	closed bool
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

func clearClientEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"SKILLTOKEN_ADDR", "SKILLTOKEN_ACCOUNT", "SKILLTOKEN_OUTPUT", "SKILLTOKEN_TIMEOUT"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadClientSettings(t *testing.T) {
	t.Run("env", func(t *testing.T) {
		clearClientEnv(t)
		t.Setenv("SKILLTOKEN_ADDR", "registry:50051")
		t.Setenv("SKILLTOKEN_ACCOUNT", teacherHex)
		t.Setenv("SKILLTOKEN_OUTPUT", "json")

		s, err := LoadClientSettings(fakeViper{})
		if err != nil {
			t.Fatal(err)
		}
		if s.Addr != "registry:50051" || string(s.Account) != teacherHex || s.Output != FormatJSON || s.Timeout != 10*time.Second {
			t.Errorf("settings = %+v", s)
		}
		if len(s.DialOptions()) != 1 {
			t.Error("account should produce a dial option")
		}
	})

	t.Run("flags win", func(t *testing.T) {
		clearClientEnv(t)
		t.Setenv("SKILLTOKEN_ADDR", "registry:50051")
		s, err := LoadClientSettings(fakeViper{
			"addr":    "localhost:9999",
			"account": "0x2222222222222222222222222222222222222222",
			"output":  "yaml",
			"timeout": "2s",
		})
		if err != nil {
			t.Fatal(err)
		}
		if s.Addr != "localhost:9999" || s.Output != FormatYAML || s.Timeout != 2*time.Second {
			t.Errorf("settings = %+v", s)
		}
	})

	t.Run("anonymous", func(t *testing.T) {
		clearClientEnv(t)
		s, err := LoadClientSettings(fakeViper{})
		if err != nil {
			t.Fatal(err)
		}
		if !s.Account.IsZero() || s.DialOptions() != nil {
			t.Errorf("settings = %+v", s)
		}
	})

	t.Run("bad account", func(t *testing.T) {
		clearClientEnv(t)
		if _, err := LoadClientSettings(fakeViper{"account": "bob"}); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("bad timeout", func(t *testing.T) {
		clearClientEnv(t)
		if _, err := LoadClientSettings(fakeViper{"timeout": "later"}); err == nil {
			t.Error("expected error")
		}
	})
}

func TestRunCommand(t *testing.T) {
	t.Run("runs and closes", func(t *testing.T) {
		conn := &fakeConn{}
		var buf bytes.Buffer
		err := RunCommand(context.Background(), CommandConfig[*fakeConn]{
			Name:     "course get",
			Settings: ClientSettings{Output: FormatText, Timeout: time.Second},
			Connect:  func(context.Context, ClientSettings) (*fakeConn, error) { return conn, nil },
			Run: func(ctx context.Context, c *fakeConn, out *Output) error {
				if _, ok := ctx.Deadline(); !ok {
					t.Error("timeout not applied")
				}
				return out.Result("ok", "done").Render()
			},
			Writer: &buf,
		})
		if err != nil {
			t.Fatal(err)
		}
		if !conn.closed {
			t.Error("client not closed")
		}
		if buf.String() != "done\n" {
			t.Errorf("output = %q", buf.String())
		}
	})

	t.Run("stream has no deadline", func(t *testing.T) {
		err := RunCommand(context.Background(), CommandConfig[*fakeConn]{
			Name:     "events watch",
			Settings: ClientSettings{Timeout: time.Second},
			Stream:   true,
			Connect:  func(context.Context, ClientSettings) (*fakeConn, error) { return &fakeConn{}, nil },
			Run: func(ctx context.Context, _ *fakeConn, _ *Output) error {
				if _, ok := ctx.Deadline(); ok {
					t.Error("stream command got a deadline")
				}
				return nil
			},
			Writer: &bytes.Buffer{},
		})
		if err != nil {
			t.Fatal(err)
		}
	})

	t.Run("connect error", func(t *testing.T) {
		want := errors.New("refused")
		err := RunCommand(context.Background(), CommandConfig[*fakeConn]{
			Name:    "x",
			Connect: func(context.Context, ClientSettings) (*fakeConn, error) { return nil, want },
			Run:     func(context.Context, *fakeConn, *Output) error { return nil },
		})
		if !errors.Is(err, want) {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("missing pieces", func(t *testing.T) {
		if err := RunCommand(context.Background(), CommandConfig[*fakeConn]{Name: "x"}); err == nil {
			t.Error("expected error")
		}
		if err := RunCommand(context.Background(), CommandConfig[*fakeConn]{}); err == nil {
			t.Error("expected error")
		}
	})
}
