// Package memory provides a volatile ledger backend for tests and ephemeral
// servers. Everything is lost on Close.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/MasterChonk/SkillToken-V2/internal/ledger/physical"
	"github.com/MasterChonk/SkillToken-V2/pkg/credential"
)

func init() {
	physical.Register("memory", NewFactory, Defaults)
}

// Defaults returns the default configuration for the memory backend.
func Defaults() map[string]string {
	return map[string]string{}
}

// NewFactory creates a new memory backend. The config is ignored.
func NewFactory(_ context.Context, _ map[string]string) (physical.Backend, error) {
	return New(), nil
}

type roleKey struct {
	account credential.Account
	role    credential.Role
}

// Backend is an in-memory implementation of physical.Backend.
type Backend struct {
	mu     sync.RWMutex
	closed bool

	roles   map[roleKey]credential.RoleAssignment
	courses map[uint64]credential.Course
	certs   map[uint64]credential.Certificate
	grants  map[uint64]credential.Grant
	events  []credential.Event
}

// New returns an empty backend.
func New() *Backend {
	return &Backend{
		roles:   make(map[roleKey]credential.RoleAssignment),
		courses: make(map[uint64]credential.Course),
		certs:   make(map[uint64]credential.Certificate),
		grants:  make(map[uint64]credential.Grant),
	}
}

func (b *Backend) lastSeq() uint64 {
	if len(b.events) == 0 {
		return 0
	}
	return b.events[len(b.events)-1].Seq
}

// Load returns a copy of the stored state.
func (b *Backend) Load(_ context.Context) (*physical.Snapshot, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, physical.ErrClosed
	}

	snap := &physical.Snapshot{
		Roles:        slices.Collect(maps.Values(b.roles)),
		Courses:      slices.Collect(maps.Values(b.courses)),
		Certificates: make([]credential.Certificate, 0, len(b.certs)),
		Grants:       make([]credential.Grant, 0, len(b.grants)),
		LastSeq:      b.lastSeq(),
	}
	for _, c := range b.certs {
		snap.Certificates = append(snap.Certificates, cloneCert(c))
	}
	for _, g := range b.grants {
		snap.Grants = append(snap.Grants, cloneGrant(g))
	}
	snap.Sort()
	return snap, nil
}

// Apply stores the commit. The sequence check runs before any write so a
// rejected commit leaves nothing behind.
func (b *Backend) Apply(_ context.Context, c *physical.Commit) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return physical.ErrClosed
	}
	if err := physical.CheckSequence(b.lastSeq(), c.Events); err != nil {
		return err
	}

	for _, r := range c.Roles {
		b.roles[roleKey{r.Account, r.Role}] = r
	}
	for _, course := range c.Courses {
		b.courses[course.ID] = course
	}
	for _, cert := range c.Certificates {
		b.certs[cert.TokenID] = cloneCert(cert)
	}
	for _, g := range c.Grants {
		b.grants[g.ID] = cloneGrant(g)
	}
	for _, e := range c.Events {
		b.events = append(b.events, cloneEvent(e))
	}
	return nil
}

// Events returns up to limit events after the given sequence.
func (b *Backend) Events(_ context.Context, after uint64, limit int) ([]credential.Event, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, physical.ErrClosed
	}

	// Seq is gapless from 1, so the slice index of seq n is n-1.
	if after >= uint64(len(b.events)) {
		return nil, nil
	}
	tail := b.events[after:]
	if limit > 0 && len(tail) > limit {
		tail = tail[:limit]
	}
	out := make([]credential.Event, len(tail))
	for i, e := range tail {
		out[i] = cloneEvent(e)
	}
	return out, nil
}

func (b *Backend) Ping(_ context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return physical.ErrClosed
	}
	return nil
}

// Stats returns storage statistics.
func (b *Backend) Stats(_ context.Context) (*physical.Stats, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, physical.ErrClosed
	}
	return &physical.Stats{
		BackendType: "memory",
		Events:      int64(len(b.events)),
	}, nil
}

// Close releases all stored data.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.roles, b.courses, b.certs, b.grants, b.events = nil, nil, nil, nil, nil
	return nil
}

func cloneCert(c credential.Certificate) credential.Certificate {
	if c.ValidatedAt != nil {
		t := *c.ValidatedAt
		c.ValidatedAt = &t
	}
	return c
}

func cloneGrant(g credential.Grant) credential.Grant {
	if g.RevokedAt != nil {
		t := *g.RevokedAt
		g.RevokedAt = &t
	}
	return g
}

func cloneEvent(e credential.Event) credential.Event {
	if e.Scope != nil {
		s := *e.Scope
		e.Scope = &s
	}
	return e
}
