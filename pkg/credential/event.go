package credential

import "time"

// EventType names a registry notification.
type EventType string

const (
	EventRoleGranted          EventType = "RoleGranted"
	EventCourseRegistered     EventType = "CourseRegistered"
	EventCourseDeactivated    EventType = "CourseDeactivated"
	EventCertificateIssued    EventType = "CertificateIssued"
	EventCertificateValidated EventType = "CertificateValidated"
	EventIssuerDelegated      EventType = "IssuerDelegated"
	EventDelegationRevoked    EventType = "DelegationRevoked"
)

// Event is an append-only notification. Seq is global, gapless and starts at 1.
// Only the fields relevant to Type are set.
type Event struct {
	Seq         uint64    `json:"seq" yaml:"seq"`
	Type        EventType `json:"type" yaml:"type"`
	At          time.Time `json:"at" yaml:"at"`
	Actor       Account   `json:"actor" yaml:"actor"`
	CourseID    uint64    `json:"course_id,omitempty" yaml:"course_id,omitempty"`
	TokenID     uint64    `json:"token_id,omitempty" yaml:"token_id,omitempty"`
	GrantID     uint64    `json:"grant_id,omitempty" yaml:"grant_id,omitempty"`
	Name        string    `json:"name,omitempty" yaml:"name,omitempty"`
	Owner       Account   `json:"owner,omitempty" yaml:"owner,omitempty"`
	Student     Account   `json:"student,omitempty" yaml:"student,omitempty"`
	Issuer      Account   `json:"issuer,omitempty" yaml:"issuer,omitempty"`
	Validator   Account   `json:"validator,omitempty" yaml:"validator,omitempty"`
	ContentHash string    `json:"content_hash,omitempty" yaml:"content_hash,omitempty"`
	Account     Account   `json:"account,omitempty" yaml:"account,omitempty"`
	Role        Role      `json:"role,omitempty" yaml:"role,omitempty"`
	Grantee     Account   `json:"grantee,omitempty" yaml:"grantee,omitempty"`
	Scope       *Scope    `json:"scope,omitempty" yaml:"scope,omitempty"`
}

// Attributes flattens the event for filter evaluation. Every key is always
// present so expressions never fail on a missing field.
func (e *Event) Attributes() map[string]any {
	scope := ""
	if e.Scope != nil {
		scope = e.Scope.String()
	}
	return map[string]any{
		"seq":          int64(e.Seq),
		"type":         string(e.Type),
		"at":           e.At.UnixMilli(),
		"actor":        string(e.Actor),
		"course_id":    int64(e.CourseID),
		"token_id":     int64(e.TokenID),
		"grant_id":     int64(e.GrantID),
		"name":         e.Name,
		"owner":        string(e.Owner),
		"student":      string(e.Student),
		"issuer":       string(e.Issuer),
		"validator":    string(e.Validator),
		"content_hash": e.ContentHash,
		"account":      string(e.Account),
		"role":         string(e.Role),
		"grantee":      string(e.Grantee),
		"scope":        scope,
	}
}

// Attributes flattens the certificate for filter evaluation.
func (c *Certificate) Attributes() map[string]any {
	var validatedAt int64
	if c.ValidatedAt != nil {
		validatedAt = c.ValidatedAt.UnixMilli()
	}
	return map[string]any{
		"token_id":     int64(c.TokenID),
		"student":      string(c.Student),
		"course_id":    int64(c.CourseID),
		"content_hash": c.ContentHash,
		"token_uri":    c.TokenURI,
		"issuer":       string(c.Issuer),
		"issued_at":    c.IssuedAt.UnixMilli(),
		"validated":    c.Validated,
		"validated_by": string(c.ValidatedBy),
		"validated_at": validatedAt,
	}
}
