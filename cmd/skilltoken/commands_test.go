package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MasterChonk/SkillToken-V2/pkg/credential"
	skerrors "github.com/MasterChonk/SkillToken-V2/pkg/errors"
	"github.com/MasterChonk/SkillToken-V2/pkg/transport"
)

var at = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func TestRoleGrant(t *testing.T) {
	var gotAccount credential.Account
	var gotRole credential.Role
	mc := &mockClient{
		grantRoleFn: func(_ context.Context, a credential.Account, r credential.Role) error {
			gotAccount, gotRole = a, r
			return nil
		},
	}
	out, err := execute(t, mc, "role", "grant", teacherHex, "teacher")
	if err != nil {
		t.Fatal(err)
	}
	if gotAccount != credential.Account(teacherHex) || gotRole != credential.RoleTeacher {
		t.Errorf("granted %s %s", gotAccount, gotRole)
	}
	if !strings.HasPrefix(out, "role granted\n") {
		t.Errorf("output:\n%s", out)
	}
	if !mc.closed {
		t.Error("client not closed")
	}
}

func TestRoleGrantBadInput(t *testing.T) {
	mc := &mockClient{}
	tests := [][]string{
		{"role", "grant", "alice", "teacher"},
		{"role", "grant", teacherHex, "dean"},
		{"role", "grant", teacherHex},
	}
	for _, args := range tests {
		if _, err := execute(t, mc, args...); err == nil {
			t.Errorf("%v: expected error", args)
		}
	}
}

func TestRoleListDefaultsToSelf(t *testing.T) {
	mc := &mockClient{
		account: credential.Account(issuerHex),
		rolesFn: func(_ context.Context, a credential.Account) ([]credential.Role, error) {
			if a != credential.Account(issuerHex) {
				return nil, errors.New("wrong account")
			}
			return []credential.Role{credential.RoleIssuer}, nil
		},
	}
	var roles []string
	decodeData(t, mc, &roles, "role", "list")
	if len(roles) != 1 || roles[0] != "ISSUER" {
		t.Errorf("roles = %v", roles)
	}

	anon := &mockClient{}
	if _, err := execute(t, anon, "role", "list"); err == nil {
		t.Error("anonymous role list without account should fail")
	}
}

func TestCourseRegister(t *testing.T) {
	mc := &mockClient{
		registerCourseFn: func(_ context.Context, name string) (credential.Course, error) {
			return credential.Course{ID: 4, Name: name, Owner: credential.Account(teacherHex), Active: true, CreatedAt: at}, nil
		},
	}
	var data map[string]any
	decodeData(t, mc, &data, "course", "register", "Intro", "to", "Solidity")
	if data["name"] != "Intro to Solidity" || data["id"] != float64(4) {
		t.Errorf("data = %v", data)
	}
}

func TestCourseList(t *testing.T) {
	mc := &mockClient{
		account: credential.Account(teacherHex),
		teacherCoursesFn: func(_ context.Context, teacher credential.Account) ([]credential.Course, error) {
			return []credential.Course{
				{ID: 1, Name: "A", Owner: teacher, Active: true, CreatedAt: at},
				{ID: 2, Name: "B", Owner: teacher, CreatedAt: at},
			}, nil
		},
	}
	var rows []map[string]string
	decodeData(t, mc, &rows, "course", "list")
	if len(rows) != 2 || rows[1]["active"] != "false" {
		t.Errorf("rows = %v", rows)
	}
}

func TestCertIssue(t *testing.T) {
	t.Run("hash", func(t *testing.T) {
		var got *transport.IssueCertificateRequest
		mc := &mockClient{
			issueFn: func(_ context.Context, req *transport.IssueCertificateRequest) (credential.Certificate, error) {
				got = req
				return credential.Certificate{TokenID: 9, Student: req.Student, CourseID: req.CourseID, ContentHash: req.ContentHash}, nil
			},
		}
		var data map[string]any
		decodeData(t, mc, &data, "cert", "issue", "--student", studentHex, "--course", "2", "--hash", "ipfs:abc", "--uri", "ipfs://meta")
		if got == nil || got.CourseID != 2 || got.ContentHash != "ipfs:abc" || got.TokenURI != "ipfs://meta" {
			t.Fatalf("request = %+v", got)
		}
		if data["token_id"] != float64(9) {
			t.Errorf("data = %v", data)
		}
	})

	t.Run("file digest", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "essay.pdf")
		if err := os.WriteFile(path, []byte("final project"), 0o600); err != nil {
			t.Fatal(err)
		}
		want, err := credential.DigestContent(strings.NewReader("final project"))
		if err != nil {
			t.Fatal(err)
		}
		var hash string
		mc := &mockClient{
			issueFn: func(_ context.Context, req *transport.IssueCertificateRequest) (credential.Certificate, error) {
				hash = req.ContentHash
				return credential.Certificate{TokenID: 1}, nil
			},
		}
		if _, err := execute(t, mc, "cert", "issue", "--student", studentHex, "--course", "1", "--file", path); err != nil {
			t.Fatal(err)
		}
		if hash != want {
			t.Errorf("hash = %q, want %q", hash, want)
		}
	})

	t.Run("bad flags", func(t *testing.T) {
		mc := &mockClient{}
		for _, args := range [][]string{
			{"cert", "issue", "--student", studentHex, "--course", "1"},
			{"cert", "issue", "--student", studentHex, "--hash", "x"},
			{"cert", "issue", "--course", "1", "--hash", "x"},
			{"cert", "issue", "--student", studentHex, "--course", "1", "--hash", "x", "--file", "y"},
		} {
			if _, err := execute(t, mc, args...); err == nil {
				t.Errorf("%v: expected error", args)
			}
		}
	})
}

func TestCertErrorsPropagate(t *testing.T) {
	mc := &mockClient{
		validateFn: func(context.Context, uint64) (credential.Certificate, error) {
			return credential.Certificate{}, skerrors.ErrAlreadyValidated
		},
	}
	_, err := execute(t, mc, "cert", "validate", "3")
	if !errors.Is(err, skerrors.ErrAlreadyValidated) {
		t.Errorf("err = %v, want ErrAlreadyValidated", err)
	}

	if _, err := execute(t, mc, "cert", "validate", "0"); err == nil {
		t.Error("token id 0 should be rejected")
	}
}

func TestCertGet(t *testing.T) {
	validated := at.Add(time.Hour)
	mc := &mockClient{
		getCertificateFn: func(_ context.Context, id uint64) (credential.Certificate, error) {
			return credential.Certificate{
				TokenID:     id,
				Student:     credential.Account(studentHex),
				CourseID:    1,
				ContentHash: "sha256:" + strings.Repeat("a", 64),
				Issuer:      credential.Account(teacherHex),
				IssuedAt:    at,
				Validated:   true,
				ValidatedBy: credential.Account(issuerHex),
				ValidatedAt: &validated,
			}, nil
		},
	}
	var data map[string]any
	decodeData(t, mc, &data, "cert", "get", "5")
	if data["token_id"] != float64(5) || data["validated_by"] != issuerHex {
		t.Errorf("data = %v", data)
	}
	if _, ok := data["token_uri"]; ok {
		t.Error("empty token uri should be omitted")
	}
}

func TestCertQuery(t *testing.T) {
	var gotExpr string
	var gotLimit int
	mc := &mockClient{
		queryFn: func(_ context.Context, expr string, limit int) ([]credential.Certificate, error) {
			gotExpr, gotLimit = expr, limit
			return []credential.Certificate{{TokenID: 1, IssuedAt: at}}, nil
		},
	}
	var rows []map[string]string
	decodeData(t, mc, &rows, "cert", "query", "cert.validated", "--limit", "5")
	if gotExpr != "cert.validated" || gotLimit != 5 || len(rows) != 1 {
		t.Errorf("expr=%q limit=%d rows=%v", gotExpr, gotLimit, rows)
	}
}

func TestDelegateGrant(t *testing.T) {
	var scopes []credential.Scope
	mc := &mockClient{
		delegateFn: func(_ context.Context, grantee credential.Account, scope credential.Scope) (credential.Grant, error) {
			scopes = append(scopes, scope)
			return credential.Grant{ID: uint64(len(scopes)), Grantor: credential.Account(teacherHex), Grantee: grantee, Scope: scope, Active: true, CreatedAt: at}, nil
		},
	}
	if _, err := execute(t, mc, "delegate", "grant", issuerHex, "--all"); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, mc, "delegate", "grant", issuerHex, "--course", "7"); err != nil {
		t.Fatal(err)
	}
	if len(scopes) != 2 || scopes[0] != credential.AllCourses() || scopes[1] != credential.ForCourse(7) {
		t.Errorf("scopes = %v", scopes)
	}

	if _, err := execute(t, mc, "delegate", "grant", issuerHex); err == nil {
		t.Error("missing scope should fail")
	}
	if _, err := execute(t, mc, "delegate", "grant", issuerHex, "--all", "--course", "7"); err == nil {
		t.Error("--all with --course should fail")
	}
}

func TestDelegateRevokeNotFound(t *testing.T) {
	mc := &mockClient{
		revokeFn: func(context.Context, credential.Account, credential.Scope) (credential.Grant, error) {
			return credential.Grant{}, skerrors.NotFound("no active grant")
		},
	}
	_, err := execute(t, mc, "delegate", "revoke", issuerHex, "--course", "1")
	if !errors.Is(err, skerrors.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDelegateList(t *testing.T) {
	var byCalled, toCalled bool
	mc := &mockClient{
		account: credential.Account(teacherHex),
		grantsByFn: func(_ context.Context, grantor credential.Account) ([]credential.Grant, error) {
			byCalled = grantor == credential.Account(teacherHex)
			return nil, nil
		},
		grantsToFn: func(_ context.Context, grantee credential.Account) ([]credential.Grant, error) {
			toCalled = grantee == credential.Account(issuerHex)
			revoked := at.Add(time.Minute)
			return []credential.Grant{{ID: 1, Grantor: credential.Account(teacherHex), Grantee: grantee, Scope: credential.AllCourses(), CreatedAt: at, RevokedAt: &revoked}}, nil
		},
	}
	out, err := execute(t, mc, "delegate", "list")
	if err != nil || !byCalled {
		t.Fatalf("list by self: called=%v err=%v", byCalled, err)
	}
	if out != "(none)\n" {
		t.Errorf("empty list output = %q", out)
	}

	var rows []map[string]string
	decodeData(t, mc, &rows, "delegate", "list", "--to", issuerHex)
	if !toCalled || len(rows) != 1 || rows[0]["scope"] != "all" || rows[0]["revoked_at"] == "" {
		t.Errorf("rows = %v", rows)
	}
}

func TestVerify(t *testing.T) {
	var gotExpected credential.Account
	mc := &mockClient{
		verifyFn: func(_ context.Context, id uint64, expected credential.Account) (credential.VerificationResult, error) {
			gotExpected = expected
			if id == 404 {
				return credential.VerificationResult{Reason: credential.ReasonCertificateNotFound}, nil
			}
			cert := credential.Certificate{TokenID: id, Student: credential.Account(studentHex), CourseID: 1, Issuer: credential.Account(teacherHex), IssuedAt: at, Validated: true, ValidatedBy: credential.Account(teacherHex)}
			course := credential.Course{ID: 1, Name: "Intro", Owner: credential.Account(teacherHex), Active: true}
			return credential.VerificationResult{Valid: true, Certificate: &cert, Course: &course}, nil
		},
	}

	var data map[string]any
	decodeData(t, mc, &data, "verify", "1", "--issuer", teacherHex)
	if data["valid"] != "yes" || data["course"] != "Intro" || gotExpected != credential.Account(teacherHex) {
		t.Errorf("data = %v expected = %s", data, gotExpected)
	}

	data = nil
	decodeData(t, mc, &data, "verify", "404")
	if data["valid"] != "no" || data["reason"] != credential.ReasonCertificateNotFound {
		t.Errorf("data = %v", data)
	}
	if !gotExpected.IsZero() {
		t.Errorf("expected = %s, want zero", gotExpected)
	}
}

func TestEventsList(t *testing.T) {
	mc := &mockClient{
		eventsFn: func(_ context.Context, after uint64, limit int) ([]credential.Event, error) {
			var events []credential.Event
			for seq := after + 1; seq <= after+uint64(limit) && seq <= 5; seq++ {
				events = append(events, credential.Event{Seq: seq, Type: credential.EventCourseRegistered, At: at, Actor: credential.Account(teacherHex), CourseID: seq, Name: "C"})
			}
			return events, nil
		},
	}

	out, err := execute(t, mc, "events", "list", "--limit", "2")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "More results: --after=2") {
		t.Errorf("missing pagination hint:\n%s", out)
	}

	out, err = execute(t, mc, "events", "list", "--after", "3", "--limit", "10")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "More results") || !strings.Contains(out, "CourseRegistered") {
		t.Errorf("output:\n%s", out)
	}
}

func TestEventsWatch(t *testing.T) {
	stream := &sliceStream{events: []credential.Event{
		{Seq: 4, Type: credential.EventCertificateIssued, At: at, TokenID: 1, CourseID: 2},
		{Seq: 5, Type: credential.EventCertificateValidated, At: at, TokenID: 1},
	}}
	var gotAfter uint64
	var gotFilter string
	mc := &mockClient{
		watchFn: func(_ context.Context, after uint64, expr string) (EventStream, error) {
			gotAfter, gotFilter = after, expr
			return stream, nil
		},
	}

	out, err := execute(t, mc, "events", "watch", "--after", "3", "--filter", `event.token_id == 1`, "-o", "json")
	if err != nil {
		t.Fatal(err)
	}
	if gotAfter != 3 || gotFilter != "event.token_id == 1" {
		t.Errorf("after=%d filter=%q", gotAfter, gotFilter)
	}
	if !stream.closed {
		t.Error("stream not closed")
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %q", lines)
	}
	var e credential.Event
	if err := json.Unmarshal([]byte(lines[1]), &e); err != nil {
		t.Fatal(err)
	}
	if e.Seq != 5 || e.Type != credential.EventCertificateValidated {
		t.Errorf("event = %+v", e)
	}
}

func TestEventsWatchBadFilter(t *testing.T) {
	mc := &mockClient{
		watchFn: func(context.Context, uint64, string) (EventStream, error) {
			return nil, skerrors.InvalidInput("filter: syntax error")
		},
	}
	_, err := execute(t, mc, "events", "watch", "--filter", "event.seq >")
	if !errors.Is(err, skerrors.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func testSnapshot() *transport.Snapshot {
	return &transport.Snapshot{
		Courses: []credential.Course{{ID: 1, Name: "Intro", Owner: credential.Account(teacherHex), Active: true, CreatedAt: at}},
		LastSeq: 12,
	}
}

func TestExport(t *testing.T) {
	mc := &mockClient{
		snapshotFn: func(context.Context) (*transport.Snapshot, error) { return testSnapshot(), nil },
	}

	t.Run("stdout", func(t *testing.T) {
		out, err := execute(t, mc, "export", "--format", "yaml")
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(out, "last_seq: 12") || !strings.Contains(out, "name: Intro") {
			t.Errorf("output:\n%s", out)
		}
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "registry.json")
		if _, err := execute(t, mc, "export", "--file", path); err != nil {
			t.Fatal(err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		var snap transport.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			t.Fatal(err)
		}
		if snap.LastSeq != 12 || len(snap.Courses) != 1 {
			t.Errorf("snapshot = %+v", snap)
		}
	})

	t.Run("file sink", func(t *testing.T) {
		dir := t.TempDir()
		var data map[string]any
		decodeData(t, mc, &data, "export", "--sink", "file", "--sink-config", "path="+dir)
		name, _ := data["object"].(string)
		if !strings.HasPrefix(name, "snapshot-00000000000000000012-") || !strings.HasSuffix(name, ".json") {
			t.Fatalf("object = %q", name)
		}
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Error(err)
		}
	})

	t.Run("bad flags", func(t *testing.T) {
		for _, args := range [][]string{
			{"export", "--format", "toml"},
			{"export", "--sink", "file", "--file", "x.json"},
			{"export", "--sink", "file", "--sink-config", "path"},
			{"export", "--sink", "tape"},
		} {
			if _, err := execute(t, mc, args...); err == nil {
				t.Errorf("%v: expected error", args)
			}
		}
	})
}

func TestParseSinkConfig(t *testing.T) {
	cfg, err := parseSinkConfig([]string{"bucket=b", "prefix=a=b", "endpoint="})
	if err != nil {
		t.Fatal(err)
	}
	if cfg["bucket"] != "b" || cfg["prefix"] != "a=b" || cfg["endpoint"] != "" {
		t.Errorf("cfg = %v", cfg)
	}
	if _, err := parseSinkConfig([]string{"=x"}); err == nil {
		t.Error("expected error for empty key")
	}
}
