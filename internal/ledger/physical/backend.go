// Package physical defines the durable storage interface behind the ledger.
//
// The ledger keeps its working state in memory and persists every accepted
// mutation as one Commit. Backends only need to apply a Commit atomically,
// replay the full state on startup and page through the notification log.
package physical

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/MasterChonk/SkillToken-V2/pkg/credential"
)

var (
	// ErrClosed indicates the backend has been closed.
	ErrClosed = errors.New("backend closed")

	// ErrSequenceConflict indicates a commit's events do not continue the
	// stored sequence. It means two writers share one backend.
	ErrSequenceConflict = errors.New("event sequence conflict")
)

// Commit is the unit of persistence: every record touched by one ledger
// mutation plus the notifications it emits. Records are upserts keyed by
// their natural id.
type Commit struct {
	Roles        []credential.RoleAssignment
	Courses      []credential.Course
	Certificates []credential.Certificate
	Grants       []credential.Grant
	Events       []credential.Event
}

// Empty reports whether the commit carries nothing.
func (c *Commit) Empty() bool {
	return len(c.Roles) == 0 && len(c.Courses) == 0 && len(c.Certificates) == 0 &&
		len(c.Grants) == 0 && len(c.Events) == 0
}

// Snapshot is the complete persisted state. Slices are ordered by id (roles
// by grant time) and LastSeq is the highest stored event sequence.
type Snapshot struct {
	Roles        []credential.RoleAssignment `json:"roles" yaml:"roles"`
	Courses      []credential.Course         `json:"courses" yaml:"courses"`
	Certificates []credential.Certificate    `json:"certificates" yaml:"certificates"`
	Grants       []credential.Grant          `json:"grants" yaml:"grants"`
	LastSeq      uint64                      `json:"last_seq" yaml:"last_seq"`
}

// Stats contains storage statistics.
type Stats struct {
	BackendType string
	Events      int64
	SizeBytes   int64
}

// Backend is the physical storage interface for the ledger.
// All implementations must be thread-safe.
type Backend interface {
	// Load returns the full persisted state.
	Load(ctx context.Context) (*Snapshot, error)
	// Apply persists c atomically: either everything in it is stored or nothing is.
	Apply(ctx context.Context, c *Commit) error
	// Events returns up to limit notifications with Seq > after, in order.
	// A limit <= 0 returns all of them.
	Events(ctx context.Context, after uint64, limit int) ([]credential.Event, error)
	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error
	Stats(ctx context.Context) (*Stats, error)
	Close() error
}

// CheckSequence verifies events continue a log whose highest seq is last.
func CheckSequence(last uint64, events []credential.Event) error {
	for i, e := range events {
		if want := last + uint64(i) + 1; e.Seq != want {
			return fmt.Errorf("%w: got seq %d, want %d", ErrSequenceConflict, e.Seq, want)
		}
	}
	return nil
}

// Sort orders every slice of the snapshot canonically.
func (s *Snapshot) Sort() {
	slices.SortFunc(s.Roles, func(a, b credential.RoleAssignment) int {
		if c := a.GrantedAt.Compare(b.GrantedAt); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Account, b.Account); c != 0 {
			return c
		}
		return cmp.Compare(a.Role, b.Role)
	})
	slices.SortFunc(s.Courses, func(a, b credential.Course) int { return cmp.Compare(a.ID, b.ID) })
	slices.SortFunc(s.Certificates, func(a, b credential.Certificate) int { return cmp.Compare(a.TokenID, b.TokenID) })
	slices.SortFunc(s.Grants, func(a, b credential.Grant) int { return cmp.Compare(a.ID, b.ID) })
}
