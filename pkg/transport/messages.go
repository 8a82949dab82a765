package transport

import "github.com/MasterChonk/SkillToken-V2/pkg/credential"

type Empty struct{}

type GrantRoleRequest struct {
	Account credential.Account `json:"account"`
	Role    credential.Role    `json:"role"`
}

type HasRoleRequest struct {
	Account credential.Account `json:"account"`
	Role    credential.Role    `json:"role"`
}

type AccountRequest struct {
	Account credential.Account `json:"account"`
}

type BoolResponse struct {
	Value bool `json:"value"`
}

type CountResponse struct {
	Count uint64 `json:"count"`
}

type RolesResponse struct {
	Roles []credential.Role `json:"roles"`
}

type RegisterCourseRequest struct {
	Name string `json:"name"`
}

type CourseRequest struct {
	CourseID uint64 `json:"course_id"`
}

type CourseResponse struct {
	Course credential.Course `json:"course"`
}

type CoursesResponse struct {
	Courses []credential.Course `json:"courses"`
}

type IssueCertificateRequest struct {
	Student     credential.Account `json:"student"`
	CourseID    uint64             `json:"course_id"`
	ContentHash string             `json:"content_hash"`
	TokenURI    string             `json:"token_uri,omitempty"`
}

type TokenRequest struct {
	TokenID uint64 `json:"token_id"`
}

type CertificateResponse struct {
	Certificate credential.Certificate `json:"certificate"`
}

type TokenIDsResponse struct {
	TokenIDs []uint64 `json:"token_ids"`
}

type HasCompletedCourseRequest struct {
	Student  credential.Account `json:"student"`
	CourseID uint64             `json:"course_id"`
}

type QueryCertificatesRequest struct {
	Expression string `json:"expression,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

type CertificatesResponse struct {
	Certificates []credential.Certificate `json:"certificates"`
}

// DelegationRequest serves both DelegateIssuer and RevokeDelegation.
type DelegationRequest struct {
	Grantee credential.Account `json:"grantee"`
	Scope   credential.Scope   `json:"scope"`
}

type GrantResponse struct {
	Grant credential.Grant `json:"grant"`
}

type IsAuthorizedRequest struct {
	Grantor  credential.Account `json:"grantor"`
	Grantee  credential.Account `json:"grantee"`
	CourseID uint64             `json:"course_id"`
}

// ListGrantsRequest selects grants by exactly one of Grantor or Grantee.
type ListGrantsRequest struct {
	Grantor credential.Account `json:"grantor,omitempty"`
	Grantee credential.Account `json:"grantee,omitempty"`
}

type GrantsResponse struct {
	Grants []credential.Grant `json:"grants"`
}

// VerifyRequest checks a certificate. Expected is optional.
type VerifyRequest struct {
	TokenID  uint64             `json:"token_id"`
	Expected credential.Account `json:"expected,omitempty"`
}

type VerifyResponse struct {
	Result credential.VerificationResult `json:"result"`
}

type EventsRequest struct {
	After uint64 `json:"after"`
	Limit int    `json:"limit,omitempty"`
}

type EventsResponse struct {
	Events []credential.Event `json:"events"`
}

// WatchEventsRequest opens an event stream starting after After, filtered
// by a CEL expression over the event variable.
type WatchEventsRequest struct {
	After      uint64 `json:"after"`
	Expression string `json:"expression,omitempty"`
}

// Snapshot is the full ledger state at LastSeq.
type Snapshot struct {
	Roles        []credential.RoleAssignment `json:"roles" yaml:"roles"`
	Courses      []credential.Course         `json:"courses" yaml:"courses"`
	Certificates []credential.Certificate    `json:"certificates" yaml:"certificates"`
	Grants       []credential.Grant          `json:"grants" yaml:"grants"`
	LastSeq      uint64                      `json:"last_seq" yaml:"last_seq"`
}
