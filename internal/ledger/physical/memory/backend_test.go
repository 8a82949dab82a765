package memory

import (
	"context"
	"testing"

	"github.com/MasterChonk/SkillToken-V2/internal/ledger/physical"
	"github.com/MasterChonk/SkillToken-V2/internal/ledger/physical/backendtest"
	"github.com/MasterChonk/SkillToken-V2/pkg/credential"
)

func newTestBackend(t testing.TB) physical.Backend {
	t.Helper()
	be, err := NewFactory(context.Background(), map[string]string{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { be.Close() })
	return be
}

func TestConformance(t *testing.T) {
	backendtest.RunAll(t, newTestBackend, backendtest.Config{})
}

func TestRegistered(t *testing.T) {
	if !physical.IsRegistered("memory") {
		t.Fatal("memory backend not registered")
	}
}

func TestLoadReturnsCopies(t *testing.T) {
	be := newTestBackend(t)
	ctx := context.Background()
	if err := be.Apply(ctx, backendtest.SeedCommit(1)); err != nil {
		t.Fatal(err)
	}

	snap, err := be.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	snap.Grants[0].Active = false
	snap.Courses[0].Name = "mutated"

	again, err := be.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !again.Grants[0].Active || again.Courses[0].Name != "Go Basics" {
		t.Errorf("caller mutation leaked into backend: %+v %+v", again.Grants[0], again.Courses[0])
	}

	events, err := be.Events(ctx, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	events[1].Scope.CourseID = 42
	events, _ = be.Events(ctx, 0, 0)
	if events[1].Scope.CourseID != 1 {
		t.Errorf("event scope mutated through returned copy: %v", events[1].Scope)
	}
}

func TestApplyEmptyCommit(t *testing.T) {
	be := newTestBackend(t)
	if err := be.Apply(context.Background(), &physical.Commit{}); err != nil {
		t.Fatalf("Apply(empty) = %v", err)
	}
	c := &physical.Commit{Roles: []credential.RoleAssignment{{Account: backendtest.Teacher, Role: credential.RoleIssuer}}}
	if c.Empty() {
		t.Error("commit with a role reports Empty")
	}
}

func BenchmarkApply(b *testing.B) {
	backendtest.RunBench(b, newTestBackend)
}
