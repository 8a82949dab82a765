package credential

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Role is a capability held by an account. Roles are additive and never expire.
type Role string

const (
	RoleTeacher Role = "TEACHER"
	RoleIssuer  Role = "ISSUER"
)

// ParseRole accepts a role name in any case.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleTeacher, RoleIssuer:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

func (r Role) Valid() bool { return r == RoleTeacher || r == RoleIssuer }

// RoleAssignment records who granted a role and when.
type RoleAssignment struct {
	Account   Account   `json:"account" yaml:"account"`
	Role      Role      `json:"role" yaml:"role"`
	GrantedBy Account   `json:"granted_by" yaml:"granted_by"`
	GrantedAt time.Time `json:"granted_at" yaml:"granted_at"`
}

// Course is a teacher-owned subject. Everything except Active is immutable.
type Course struct {
	ID        uint64    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Owner     Account   `json:"owner" yaml:"owner"`
	Active    bool      `json:"active" yaml:"active"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Certificate is a soulbound credential. Only the validation triple ever
// changes, and only once.
type Certificate struct {
	TokenID     uint64     `json:"token_id" yaml:"token_id"`
	Student     Account    `json:"student" yaml:"student"`
	CourseID    uint64     `json:"course_id" yaml:"course_id"`
	ContentHash string     `json:"content_hash" yaml:"content_hash"`
	TokenURI    string     `json:"token_uri,omitempty" yaml:"token_uri,omitempty"`
	Issuer      Account    `json:"issuer" yaml:"issuer"`
	IssuedAt    time.Time  `json:"issued_at" yaml:"issued_at"`
	Validated   bool       `json:"validated" yaml:"validated"`
	ValidatedBy Account    `json:"validated_by,omitempty" yaml:"validated_by,omitempty"`
	ValidatedAt *time.Time `json:"validated_at,omitempty" yaml:"validated_at,omitempty"`
}

// Scope is the reach of a delegation grant: every course of the grantor, or
// exactly one.
type Scope struct {
	All      bool   `json:"all" yaml:"all"`
	CourseID uint64 `json:"course_id,omitempty" yaml:"course_id,omitempty"`
}

// AllCourses covers the grantor's current and future courses.
func AllCourses() Scope { return Scope{All: true} }

// ForCourse covers a single course.
func ForCourse(id uint64) Scope { return Scope{CourseID: id} }

// ParseScope accepts "all" or a course id.
func ParseScope(s string) (Scope, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "all") {
		return AllCourses(), nil
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return Scope{}, fmt.Errorf("scope %q: want \"all\" or a course id", s)
	}
	return ForCourse(id), nil
}

// Covers reports whether the scope includes courseID.
func (s Scope) Covers(courseID uint64) bool {
	return s.All || s.CourseID == courseID
}

func (s Scope) Valid() bool { return s.All != (s.CourseID != 0) }

func (s Scope) String() string {
	if s.All {
		return "all"
	}
	return strconv.FormatUint(s.CourseID, 10)
}

// Grant delegates issuing rights from a course owner to another account.
// Revoked grants are kept for history and never reactivated.
type Grant struct {
	ID        uint64     `json:"id" yaml:"id"`
	Grantor   Account    `json:"grantor" yaml:"grantor"`
	Grantee   Account    `json:"grantee" yaml:"grantee"`
	Scope     Scope      `json:"scope" yaml:"scope"`
	Active    bool       `json:"active" yaml:"active"`
	CreatedAt time.Time  `json:"created_at" yaml:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty" yaml:"revoked_at,omitempty"`
}

// VerificationResult is the outcome of a verify query.
type VerificationResult struct {
	Valid       bool         `json:"valid" yaml:"valid"`
	Reason      string       `json:"reason,omitempty" yaml:"reason,omitempty"`
	Certificate *Certificate `json:"certificate,omitempty" yaml:"certificate,omitempty"`
	Course      *Course      `json:"course,omitempty" yaml:"course,omitempty"`
}

// Verification failure reasons.
const (
	ReasonCertificateNotFound = "certificate not found"
	ReasonNotValidated        = "certificate not validated"
	ReasonCourseNotFound      = "course not found"
	ReasonIssuerMismatch      = "expected account is neither course owner nor issuer"
)
