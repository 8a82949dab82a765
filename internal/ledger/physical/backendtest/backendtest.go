// Package backendtest provides a shared conformance suite for ledger backends.
package backendtest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MasterChonk/SkillToken-V2/internal/ledger/physical"
	"github.com/MasterChonk/SkillToken-V2/pkg/credential"
)

// Factory opens a fresh backend for one subtest. Cleanup is the caller's job.
type Factory func(t testing.TB) physical.Backend

// Config controls optional parts of the suite.
type Config struct {
	// Reopen, when set, opens a new handle on the storage behind closed,
	// which the suite has already closed.
	Reopen func(t testing.TB, closed physical.Backend) physical.Backend
}

// Base is a fixed timestamp with millisecond precision, the resolution every
// backend preserves.
var Base = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

var (
	Admin   = credential.MustParseAccount("0x00000000000000000000000000000000000000ad")
	Teacher = credential.MustParseAccount("0x1111111111111111111111111111111111111111")
	Student = credential.MustParseAccount("0x2222222222222222222222222222222222222222")
	Issuer  = credential.MustParseAccount("0x3333333333333333333333333333333333333333")
)

// SeedCommit returns a commit touching every record kind, with events
// numbered from first.
func SeedCommit(first uint64) *physical.Commit {
	at := Base.Add(time.Duration(first) * time.Minute)
	scope := credential.ForCourse(1)
	return &physical.Commit{
		Roles: []credential.RoleAssignment{
			{Account: Teacher, Role: credential.RoleTeacher, GrantedBy: Admin, GrantedAt: at},
		},
		Courses: []credential.Course{
			{ID: 1, Name: "Go Basics", Owner: Teacher, Active: true, CreatedAt: at},
		},
		Certificates: []credential.Certificate{
			{TokenID: 1, Student: Student, CourseID: 1, ContentHash: "sha256:abc", TokenURI: "ipfs://cert", Issuer: Teacher, IssuedAt: at},
		},
		Grants: []credential.Grant{
			{ID: 1, Grantor: Teacher, Grantee: Issuer, Scope: scope, Active: true, CreatedAt: at},
		},
		Events: []credential.Event{
			{Seq: first, Type: credential.EventRoleGranted, At: at, Actor: Admin, Account: Teacher, Role: credential.RoleTeacher},
			{Seq: first + 1, Type: credential.EventIssuerDelegated, At: at, Actor: Teacher, GrantID: 1, Grantee: Issuer, Scope: &scope},
		},
	}
}

// EventCommit returns a commit carrying n CourseRegistered events from first.
func EventCommit(first uint64, n int) *physical.Commit {
	c := &physical.Commit{}
	for i := range n {
		seq := first + uint64(i)
		c.Events = append(c.Events, credential.Event{
			Seq:      seq,
			Type:     credential.EventCourseRegistered,
			At:       Base.Add(time.Duration(seq) * time.Second),
			Actor:    Teacher,
			CourseID: seq,
			Name:     fmt.Sprintf("course-%d", seq),
			Owner:    Teacher,
		})
	}
	return c
}

// RunAll runs the conformance suite against backends produced by newBackend.
func RunAll(t *testing.T, newBackend Factory, cfg Config) {
	t.Run("EmptyLoad", func(t *testing.T) { testEmptyLoad(t, newBackend(t)) })
	t.Run("ApplyAndLoad", func(t *testing.T) { testApplyAndLoad(t, newBackend(t)) })
	t.Run("Upsert", func(t *testing.T) { testUpsert(t, newBackend(t)) })
	t.Run("EventsPaging", func(t *testing.T) { testEventsPaging(t, newBackend(t)) })
	t.Run("SequenceConflict", func(t *testing.T) { testSequenceConflict(t, newBackend(t)) })
	t.Run("Stats", func(t *testing.T) { testStats(t, newBackend(t)) })
	t.Run("Closed", func(t *testing.T) { testClosed(t, newBackend(t)) })
	if cfg.Reopen != nil {
		t.Run("Reopen", func(t *testing.T) { testReopen(t, newBackend(t), cfg.Reopen) })
	}
}

func apply(t testing.TB, be physical.Backend, c *physical.Commit) {
	t.Helper()
	if err := be.Apply(context.Background(), c); err != nil {
		t.Fatalf("Apply: %v", err)
	}
}

func load(t testing.TB, be physical.Backend) *physical.Snapshot {
	t.Helper()
	snap, err := be.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return snap
}

func testEmptyLoad(t *testing.T, be physical.Backend) {
	snap := load(t, be)
	if len(snap.Roles)+len(snap.Courses)+len(snap.Certificates)+len(snap.Grants) != 0 {
		t.Errorf("fresh backend not empty: %+v", snap)
	}
	if snap.LastSeq != 0 {
		t.Errorf("LastSeq = %d, want 0", snap.LastSeq)
	}
	events, err := be.Events(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("len(events) = %d, want 0", len(events))
	}
}

func testApplyAndLoad(t *testing.T, be physical.Backend) {
	apply(t, be, SeedCommit(1))
	checkSeeded(t, load(t, be))

	events, err := be.Events(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	delegated := events[1]
	if delegated.Type != credential.EventIssuerDelegated || delegated.Grantee != Issuer {
		t.Errorf("events[1] = %+v", delegated)
	}
	if delegated.Scope == nil || delegated.Scope.CourseID != 1 {
		t.Errorf("events[1].Scope = %v, want course 1", delegated.Scope)
	}
	if !delegated.At.Equal(Base.Add(time.Minute)) {
		t.Errorf("events[1].At = %v", delegated.At)
	}
}

func checkSeeded(t testing.TB, snap *physical.Snapshot) {
	t.Helper()
	if snap.LastSeq != 2 {
		t.Errorf("LastSeq = %d, want 2", snap.LastSeq)
	}
	if len(snap.Roles) != 1 || snap.Roles[0].Account != Teacher || snap.Roles[0].Role != credential.RoleTeacher {
		t.Errorf("Roles = %+v", snap.Roles)
	}
	if len(snap.Courses) != 1 {
		t.Fatalf("len(Courses) = %d, want 1", len(snap.Courses))
	}
	if c := snap.Courses[0]; c.Name != "Go Basics" || c.Owner != Teacher || !c.Active || !c.CreatedAt.Equal(Base.Add(time.Minute)) {
		t.Errorf("Courses[0] = %+v", c)
	}
	if len(snap.Certificates) != 1 {
		t.Fatalf("len(Certificates) = %d, want 1", len(snap.Certificates))
	}
	cert := snap.Certificates[0]
	if cert.Student != Student || cert.ContentHash != "sha256:abc" || cert.TokenURI != "ipfs://cert" {
		t.Errorf("Certificates[0] = %+v", cert)
	}
	if cert.Validated || cert.ValidatedAt != nil || !cert.ValidatedBy.IsZero() {
		t.Errorf("fresh certificate carries validation: %+v", cert)
	}
	if len(snap.Grants) != 1 {
		t.Fatalf("len(Grants) = %d, want 1", len(snap.Grants))
	}
	if g := snap.Grants[0]; g.Grantee != Issuer || g.Scope != credential.ForCourse(1) || !g.Active || g.RevokedAt != nil {
		t.Errorf("Grants[0] = %+v", g)
	}
}

func testUpsert(t *testing.T, be physical.Backend) {
	apply(t, be, SeedCommit(1))

	validatedAt := Base.Add(time.Hour)
	revokedAt := Base.Add(2 * time.Hour)
	apply(t, be, &physical.Commit{
		Courses: []credential.Course{
			{ID: 1, Name: "Go Basics", Owner: Teacher, Active: false, CreatedAt: Base.Add(time.Minute)},
		},
		Certificates: []credential.Certificate{{
			TokenID: 1, Student: Student, CourseID: 1, ContentHash: "sha256:abc", TokenURI: "ipfs://cert",
			Issuer: Teacher, IssuedAt: Base.Add(time.Minute),
			Validated: true, ValidatedBy: Teacher, ValidatedAt: &validatedAt,
		}},
		Grants: []credential.Grant{
			{ID: 1, Grantor: Teacher, Grantee: Issuer, Scope: credential.ForCourse(1), Active: false, CreatedAt: Base.Add(time.Minute), RevokedAt: &revokedAt},
			{ID: 2, Grantor: Teacher, Grantee: Issuer, Scope: credential.AllCourses(), Active: true, CreatedAt: revokedAt},
		},
		Events: []credential.Event{
			{Seq: 3, Type: credential.EventCertificateValidated, At: validatedAt, Actor: Teacher, TokenID: 1, Validator: Teacher},
		},
	})

	snap := load(t, be)
	if len(snap.Courses) != 1 || snap.Courses[0].Active {
		t.Errorf("Courses = %+v, want one inactive", snap.Courses)
	}
	cert := snap.Certificates[0]
	if !cert.Validated || cert.ValidatedBy != Teacher || cert.ValidatedAt == nil || !cert.ValidatedAt.Equal(validatedAt) {
		t.Errorf("Certificates[0] = %+v", cert)
	}
	if len(snap.Grants) != 2 {
		t.Fatalf("len(Grants) = %d, want 2", len(snap.Grants))
	}
	if g := snap.Grants[0]; g.Active || g.RevokedAt == nil || !g.RevokedAt.Equal(revokedAt) {
		t.Errorf("Grants[0] = %+v, want revoked", g)
	}
	if g := snap.Grants[1]; g.ID != 2 || !g.Scope.All || !g.Active {
		t.Errorf("Grants[1] = %+v", g)
	}
	if snap.LastSeq != 3 {
		t.Errorf("LastSeq = %d, want 3", snap.LastSeq)
	}
}

func testEventsPaging(t *testing.T, be physical.Backend) {
	ctx := context.Background()
	apply(t, be, EventCommit(1, 5))
	apply(t, be, EventCommit(6, 5))

	tests := []struct {
		name      string
		after     uint64
		limit     int
		wantFirst uint64
		wantLen   int
	}{
		{"all", 0, 0, 1, 10},
		{"limited", 0, 3, 1, 3},
		{"middle", 4, 3, 5, 3},
		{"tail", 8, 0, 9, 2},
		{"past end", 10, 0, 0, 0},
		{"limit beyond end", 7, 50, 8, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := be.Events(ctx, tt.after, tt.limit)
			if err != nil {
				t.Fatalf("Events: %v", err)
			}
			if len(events) != tt.wantLen {
				t.Fatalf("len = %d, want %d", len(events), tt.wantLen)
			}
			for i, e := range events {
				if want := tt.wantFirst + uint64(i); e.Seq != want {
					t.Errorf("events[%d].Seq = %d, want %d", i, e.Seq, want)
				}
			}
		})
	}
}

func testSequenceConflict(t *testing.T, be physical.Backend) {
	apply(t, be, SeedCommit(1))

	bad := EventCommit(5, 1)
	bad.Courses = []credential.Course{{ID: 9, Name: "ghost", Owner: Teacher, Active: true, CreatedAt: Base}}
	err := be.Apply(context.Background(), bad)
	if !errors.Is(err, physical.ErrSequenceConflict) {
		t.Fatalf("Apply gap = %v, want ErrSequenceConflict", err)
	}

	snap := load(t, be)
	if len(snap.Courses) != 1 {
		t.Errorf("rejected commit stored a course: %+v", snap.Courses)
	}
	if snap.LastSeq != 2 {
		t.Errorf("LastSeq = %d, want 2", snap.LastSeq)
	}

	replay := SeedCommit(1)
	if err := be.Apply(context.Background(), replay); !errors.Is(err, physical.ErrSequenceConflict) {
		t.Errorf("Apply replayed seq = %v, want ErrSequenceConflict", err)
	}
}

func testStats(t *testing.T, be physical.Backend) {
	apply(t, be, EventCommit(1, 4))
	stats, err := be.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.BackendType == "" {
		t.Error("BackendType is empty")
	}
	if stats.Events != 4 {
		t.Errorf("Events = %d, want 4", stats.Events)
	}
}

func testClosed(t *testing.T, be physical.Backend) {
	ctx := context.Background()
	if err := be.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := be.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
	if _, err := be.Load(ctx); !errors.Is(err, physical.ErrClosed) {
		t.Errorf("Load = %v, want ErrClosed", err)
	}
	if err := be.Apply(ctx, EventCommit(1, 1)); !errors.Is(err, physical.ErrClosed) {
		t.Errorf("Apply = %v, want ErrClosed", err)
	}
	if _, err := be.Events(ctx, 0, 0); !errors.Is(err, physical.ErrClosed) {
		t.Errorf("Events = %v, want ErrClosed", err)
	}
	if err := be.Ping(ctx); !errors.Is(err, physical.ErrClosed) {
		t.Errorf("Ping = %v, want ErrClosed", err)
	}
}

func testReopen(t *testing.T, be physical.Backend, reopen func(testing.TB, physical.Backend) physical.Backend) {
	apply(t, be, SeedCommit(1))
	if err := be.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	again := reopen(t, be)
	checkSeeded(t, load(t, again))
	apply(t, again, EventCommit(3, 2))

	events, err := again.Events(context.Background(), 2, 0)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 2 || events[0].Seq != 3 {
		t.Errorf("events after reopen = %+v", events)
	}
}

// RunBench measures commit throughput for a backend.
func RunBench(b *testing.B, newBackend Factory) {
	be := newBackend(b)
	ctx := context.Background()
	b.ResetTimer()
	for i := range b.N {
		c := EventCommit(uint64(i)+1, 1)
		c.Courses = []credential.Course{{ID: uint64(i) + 1, Name: "bench", Owner: Teacher, Active: true, CreatedAt: Base}}
		if err := be.Apply(ctx, c); err != nil {
			b.Fatal(err)
		}
	}
}
