package ledger

import (
	"fmt"
	"slices"

	"github.com/MasterChonk/SkillToken-V2/internal/ledger/physical"
	"github.com/MasterChonk/SkillToken-V2/pkg/credential"
)

// state is the in-memory image of the ledger. Ids are gapless from 1, so
// record n lives at index n-1. Every write goes through put* so the
// secondary indexes and counters stay in step.
type state struct {
	roles   map[credential.Account]map[credential.Role]credential.RoleAssignment
	courses []credential.Course
	certs   []credential.Certificate
	grants  []credential.Grant

	coursesByOwner map[credential.Account][]uint64
	certsByStudent map[credential.Account][]uint64
	grantsBy       map[credential.Account][]uint64
	grantsTo       map[credential.Account][]uint64

	roleCount      int
	validatedCount int
	activeGrants   int
	lastSeq        uint64
}

func newState() *state {
	return &state{
		roles:          make(map[credential.Account]map[credential.Role]credential.RoleAssignment),
		coursesByOwner: make(map[credential.Account][]uint64),
		certsByStudent: make(map[credential.Account][]uint64),
		grantsBy:       make(map[credential.Account][]uint64),
		grantsTo:       make(map[credential.Account][]uint64),
	}
}

// load rebuilds state from a persisted snapshot.
func load(snap *physical.Snapshot) (*state, error) {
	st := newState()
	c := physical.Commit{
		Roles:        snap.Roles,
		Courses:      snap.Courses,
		Certificates: snap.Certificates,
		Grants:       snap.Grants,
	}
	if err := st.apply(&c); err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	st.lastSeq = snap.LastSeq
	return st, nil
}

// apply upserts every record in c. Events only move lastSeq.
func (st *state) apply(c *physical.Commit) error {
	for _, r := range c.Roles {
		st.putRole(r)
	}
	for _, course := range c.Courses {
		if err := st.putCourse(course); err != nil {
			return err
		}
	}
	for _, cert := range c.Certificates {
		if err := st.putCert(cert); err != nil {
			return err
		}
	}
	for _, g := range c.Grants {
		if err := st.putGrant(g); err != nil {
			return err
		}
	}
	if n := len(c.Events); n > 0 {
		st.lastSeq = c.Events[n-1].Seq
	}
	return nil
}

func (st *state) putRole(r credential.RoleAssignment) {
	held, ok := st.roles[r.Account]
	if !ok {
		held = make(map[credential.Role]credential.RoleAssignment, 2)
		st.roles[r.Account] = held
	}
	if _, exists := held[r.Role]; !exists {
		st.roleCount++
	}
	held[r.Role] = r
}

func (st *state) putCourse(c credential.Course) error {
	switch n := uint64(len(st.courses)); {
	case c.ID == n+1:
		st.courses = append(st.courses, c)
		st.coursesByOwner[c.Owner] = append(st.coursesByOwner[c.Owner], c.ID)
	case c.ID >= 1 && c.ID <= n:
		st.courses[c.ID-1] = c
	default:
		return fmt.Errorf("course id %d out of sequence (have %d)", c.ID, n)
	}
	return nil
}

func (st *state) putCert(c credential.Certificate) error {
	c = cloneCert(c)
	switch n := uint64(len(st.certs)); {
	case c.TokenID == n+1:
		st.certs = append(st.certs, c)
		st.certsByStudent[c.Student] = append(st.certsByStudent[c.Student], c.TokenID)
		if c.Validated {
			st.validatedCount++
		}
	case c.TokenID >= 1 && c.TokenID <= n:
		if c.Validated && !st.certs[c.TokenID-1].Validated {
			st.validatedCount++
		}
		st.certs[c.TokenID-1] = c
	default:
		return fmt.Errorf("token id %d out of sequence (have %d)", c.TokenID, n)
	}
	return nil
}

func (st *state) putGrant(g credential.Grant) error {
	g = cloneGrant(g)
	switch n := uint64(len(st.grants)); {
	case g.ID == n+1:
		st.grants = append(st.grants, g)
		st.grantsBy[g.Grantor] = append(st.grantsBy[g.Grantor], g.ID)
		st.grantsTo[g.Grantee] = append(st.grantsTo[g.Grantee], g.ID)
		if g.Active {
			st.activeGrants++
		}
	case g.ID >= 1 && g.ID <= n:
		prev := st.grants[g.ID-1]
		if prev.Active && !g.Active {
			st.activeGrants--
		}
		st.grants[g.ID-1] = g
	default:
		return fmt.Errorf("grant id %d out of sequence (have %d)", g.ID, n)
	}
	return nil
}

func (st *state) hasRole(a credential.Account, r credential.Role) bool {
	_, ok := st.roles[a][r]
	return ok
}

func (st *state) course(id uint64) (credential.Course, bool) {
	if id == 0 || id > uint64(len(st.courses)) {
		return credential.Course{}, false
	}
	return st.courses[id-1], true
}

func (st *state) cert(id uint64) (credential.Certificate, bool) {
	if id == 0 || id > uint64(len(st.certs)) {
		return credential.Certificate{}, false
	}
	return cloneCert(st.certs[id-1]), true
}

// activeGrant returns the active grant from grantor to grantee whose scope
// equals scope exactly.
func (st *state) activeGrant(grantor, grantee credential.Account, scope credential.Scope) (credential.Grant, bool) {
	for _, id := range st.grantsTo[grantee] {
		g := st.grants[id-1]
		if g.Active && g.Grantor == grantor && g.Scope == scope {
			return cloneGrant(g), true
		}
	}
	return credential.Grant{}, false
}

// covered reports whether grantee holds an active grant from grantor that
// covers courseID.
func (st *state) covered(grantor, grantee credential.Account, courseID uint64) bool {
	for _, id := range st.grantsTo[grantee] {
		g := st.grants[id-1]
		if g.Active && g.Grantor == grantor && g.Scope.Covers(courseID) {
			return true
		}
	}
	return false
}

// mayIssue is the issuing and validating authority check for a course.
func (st *state) mayIssue(caller credential.Account, course credential.Course) bool {
	return caller == course.Owner || st.covered(course.Owner, caller, course.ID)
}

func (st *state) grantList(ids []uint64) []credential.Grant {
	out := make([]credential.Grant, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneGrant(st.grants[id-1]))
	}
	return out
}

func (st *state) snapshot() *physical.Snapshot {
	snap := &physical.Snapshot{
		Courses:      slices.Clone(st.courses),
		Certificates: make([]credential.Certificate, 0, len(st.certs)),
		Grants:       make([]credential.Grant, 0, len(st.grants)),
		LastSeq:      st.lastSeq,
	}
	for _, held := range st.roles {
		for _, r := range held {
			snap.Roles = append(snap.Roles, r)
		}
	}
	for _, c := range st.certs {
		snap.Certificates = append(snap.Certificates, cloneCert(c))
	}
	for _, g := range st.grants {
		snap.Grants = append(snap.Grants, cloneGrant(g))
	}
	snap.Sort()
	return snap
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
