package main

import (
	"strconv"
	"time"

	"github.com/MasterChonk/SkillToken-V2/internal/cli"
	"github.com/MasterChonk/SkillToken-V2/pkg/credential"
)

func renderCourse(out *cli.Output, c credential.Course) error {
	return out.KV("course").
		Set("ID", c.ID).
		Set("Name", c.Name).
		Set("Owner", c.Owner).
		Set("Active", c.Active).
		Set("Created At", c.CreatedAt).
		Render()
}

func renderCourses(out *cli.Output, courses []credential.Course) error {
	t := out.Table("courses", "ID", "Name", "Owner", "Active", "Created At")
	for _, c := range courses {
		t.AddRow(fmtID(c.ID), c.Name, c.Owner.String(), strconv.FormatBool(c.Active), fmtTime(c.CreatedAt))
	}
	return t.Render()
}

func certificateKV(out *cli.Output, resultType string, c credential.Certificate) *cli.KV {
	return out.KV(resultType).
		Set("Token ID", c.TokenID).
		Set("Student", c.Student).
		Set("Course ID", c.CourseID).
		Set("Content Hash", c.ContentHash).
		SetIf(c.TokenURI != "", "Token URI", c.TokenURI).
		Set("Issuer", c.Issuer).
		Set("Issued At", c.IssuedAt).
		Set("Validated", c.Validated).
		SetIf(c.Validated, "Validated By", c.ValidatedBy).
		SetIf(c.ValidatedAt != nil, "Validated At", c.ValidatedAt)
}

func renderCertificates(out *cli.Output, certs []credential.Certificate) error {
	t := out.Table("certificates", "Token ID", "Student", "Course ID", "Issuer", "Validated", "Issued At")
	for _, c := range certs {
		t.AddRow(fmtID(c.TokenID), c.Student.String(), fmtID(c.CourseID), c.Issuer.String(), strconv.FormatBool(c.Validated), fmtTime(c.IssuedAt))
	}
	return t.Render()
}

func renderGrant(out *cli.Output, resultType, message string, g credential.Grant) error {
	r := out.Result(resultType, message).
		With("grant id", g.ID).
		With("grantor", g.Grantor).
		With("grantee", g.Grantee).
		With("scope", g.Scope.String()).
		With("active", g.Active)
	if g.RevokedAt != nil {
		r.With("revoked at", *g.RevokedAt)
	}
	return r.Render()
}

func renderGrants(out *cli.Output, grants []credential.Grant) error {
	t := out.Table("grants", "ID", "Grantor", "Grantee", "Scope", "Active", "Created At", "Revoked At")
	for _, g := range grants {
		revoked := ""
		if g.RevokedAt != nil {
			revoked = fmtTime(*g.RevokedAt)
		}
		t.AddRow(fmtID(g.ID), g.Grantor.String(), g.Grantee.String(), g.Scope.String(), strconv.FormatBool(g.Active), fmtTime(g.CreatedAt), revoked)
	}
	return t.Render()
}

// eventSummary is a one-line description of the fields relevant to the
// event type.
func eventSummary(e *credential.Event) string {
	switch e.Type {
	case credential.EventRoleGranted:
		return string(e.Role) + " -> " + e.Account.Short()
	case credential.EventCourseRegistered:
		return "course " + fmtID(e.CourseID) + " " + strconv.Quote(e.Name) + " by " + e.Owner.Short()
	case credential.EventCourseDeactivated:
		return "course " + fmtID(e.CourseID)
	case credential.EventCertificateIssued:
		return "token " + fmtID(e.TokenID) + " course " + fmtID(e.CourseID) + " to " + e.Student.Short() + " by " + e.Issuer.Short()
	case credential.EventCertificateValidated:
		return "token " + fmtID(e.TokenID) + " by " + e.Validator.Short()
	case credential.EventIssuerDelegated, credential.EventDelegationRevoked:
		scope := "all"
		if e.Scope != nil {
			scope = e.Scope.String()
		}
		return "grant " + fmtID(e.GrantID) + " " + e.Owner.Short() + " -> " + e.Grantee.Short() + " scope " + scope
	}
	return ""
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
