package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

const (
	teacherHex = "0x1111111111111111111111111111111111111111"
	studentHex = "0x2222222222222222222222222222222222222222"
	issuerHex  = "0x3333333333333333333333333333333333333333"
)

func clearClientEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"SKILLTOKEN_ADDR", "SKILLTOKEN_ACCOUNT", "SKILLTOKEN_OUTPUT", "SKILLTOKEN_TIMEOUT"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

// execute runs the root command against mc and returns what it wrote to
// stdout.
func execute(t *testing.T, mc *mockClient, args ...string) (string, error) {
	t.Helper()
	clearClientEnv(t)

	var c RegistryClient
	if mc != nil {
		c = mc
	}
	root := newRootCmd(viper.New(), c)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// decodeData runs a command with -o json and decodes the data member of
// the envelope into v.
func decodeData(t *testing.T, mc *mockClient, v any, args ...string) {
	t.Helper()
	out, err := execute(t, mc, append(args, "-o", "json")...)
	if err != nil {
		t.Fatalf("%s: %v", strings.Join(args, " "), err)
	}
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal([]byte(out), &env); err != nil {
		t.Fatalf("decode envelope: %v\n%s", err, out)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("decode data: %v\n%s", err, env.Data)
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, nil, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "skilltoken dev\n") || !strings.Contains(out, "go:") {
		t.Errorf("version output:\n%s", out)
	}
}

func TestCommandTree(t *testing.T) {
	root := newRootCmd(viper.New(), nil)
	for _, path := range [][]string{
		{"serve"},
		{"role", "grant"},
		{"course", "register"},
		{"cert", "issue"},
		{"cert", "query"},
		{"delegate", "grant"},
		{"delegate", "revoke"},
		{"verify"},
		{"events", "watch"},
		{"export"},
	} {
		cmd, _, err := root.Find(path)
		if err != nil || cmd.Name() != path[len(path)-1] {
			t.Errorf("command %v not found: %v", path, err)
		}
	}
}
