package ledger

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MasterChonk/SkillToken-V2/internal/observability"
	"github.com/MasterChonk/SkillToken-V2/pkg/credential"
)

// Verify checks that tokenID is a validated certificate of a known course.
// When expected is set it must also be the course owner or the issuer.
// Verify never fails; the outcome and reason are in the result.
func (l *Ledger) Verify(ctx context.Context, tokenID uint64, expected credential.Account) credential.VerificationResult {
	_, span := observability.StartSpan(ctx, "ledger.verify", attribute.Int64("token_id", int64(tokenID)))
	defer span.End()

	res := l.verify(tokenID, expected)
	span.SetAttributes(attribute.Bool("valid", res.Valid))
	if l.metrics != nil {
		l.metrics.Verifications.WithLabelValues(verifyOutcome(res)).Inc()
	}
	return res
}

func (l *Ledger) verify(tokenID uint64, expected credential.Account) credential.VerificationResult {
	l.mu.RLock()
	defer l.mu.RUnlock()

	cert, ok := l.st.cert(tokenID)
	if !ok {
		return credential.VerificationResult{Reason: credential.ReasonCertificateNotFound}
	}
	res := credential.VerificationResult{Certificate: &cert}
	if !cert.Validated {
		res.Reason = credential.ReasonNotValidated
		return res
	}
	course, ok := l.st.course(cert.CourseID)
	if !ok {
		res.Reason = credential.ReasonCourseNotFound
		return res
	}
	res.Course = &course
	if !expected.IsZero() && expected != course.Owner && expected != cert.Issuer {
		res.Reason = credential.ReasonIssuerMismatch
		return res
	}
	res.Valid = true
	return res
}

func verifyOutcome(res credential.VerificationResult) string {
	if res.Valid {
		return "valid"
	}
	switch res.Reason {
	case credential.ReasonCertificateNotFound:
		return "not_found"
	case credential.ReasonNotValidated:
		return "not_validated"
	case credential.ReasonCourseNotFound:
		return "course_not_found"
	default:
		return "issuer_mismatch"
	}
}
