package ledger

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	celeval "github.com/MasterChonk/SkillToken-V2/internal/ledger/cel"
	"github.com/MasterChonk/SkillToken-V2/internal/observability"
	"github.com/MasterChonk/SkillToken-V2/pkg/credential"
	skerrors "github.com/MasterChonk/SkillToken-V2/pkg/errors"
)

const (
	defaultQueryLimit = 100
	maxQueryLimit     = 1000
)

// IssueRequest describes a certificate to mint.
type IssueRequest struct {
	Student     credential.Account
	CourseID    uint64
	ContentHash string
	TokenURI    string
}

// IssueCertificate mints a certificate for req.Student. The caller must own
// the course or hold an active grant from its owner covering it. A failed
// call consumes no token id.
func (l *Ledger) IssueCertificate(ctx context.Context, caller credential.Account, req IssueRequest) (_ credential.Certificate, err error) {
	op, ctx := observability.StartOperation(ctx, l.metrics, "ledger.issue_certificate",
		attribute.Int64("course_id", int64(req.CourseID)))
	defer func() { op.End(err) }()

	l.mu.Lock()
	defer l.mu.Unlock()

	course, ok := l.st.course(req.CourseID)
	if !ok {
		return credential.Certificate{}, skerrors.NotFound("course %d", req.CourseID)
	}
	if !course.Active {
		return credential.Certificate{}, skerrors.Newf(skerrors.CodeCourseInactive, "course %d is inactive", req.CourseID)
	}
	if !l.st.mayIssue(caller, course) {
		return credential.Certificate{}, skerrors.Unauthorized("%s may not issue for course %d", caller, req.CourseID)
	}
	if err := req.Student.Validate(); err != nil {
		return credential.Certificate{}, skerrors.Wrap(skerrors.CodeInvalidInput, "student", err)
	}
	if err := credential.ValidateContentHash(req.ContentHash); err != nil {
		return credential.Certificate{}, skerrors.Wrap(skerrors.CodeInvalidInput, "content hash", err)
	}
	if err := credential.ValidateTokenURI(req.TokenURI); err != nil {
		return credential.Certificate{}, skerrors.Wrap(skerrors.CodeInvalidInput, "token uri", err)
	}

	c := l.begin(caller)
	cert := credential.Certificate{
		TokenID:     uint64(len(l.st.certs)) + 1,
		Student:     req.Student,
		CourseID:    course.ID,
		ContentHash: req.ContentHash,
		TokenURI:    req.TokenURI,
		Issuer:      caller,
		IssuedAt:    c.at,
	}
	c.Certificates = append(c.Certificates, cert)
	c.emit(credential.Event{
		Type:        credential.EventCertificateIssued,
		TokenID:     cert.TokenID,
		Student:     cert.Student,
		CourseID:    cert.CourseID,
		Issuer:      cert.Issuer,
		ContentHash: cert.ContentHash,
	})
	if err := l.apply(ctx, c); err != nil {
		return credential.Certificate{}, err
	}

	l.log.WithToken(cert.TokenID).WithCourse(cert.CourseID).Info("certificate issued",
		"student", cert.Student.Short(),
		"issuer", caller.Short(),
	)
	return cert, nil
}

// Validate marks a certificate validated. The caller must own the course or
// hold a grant covering it, and may never be the certificate's student.
// Deactivated courses still accept validation.
func (l *Ledger) Validate(ctx context.Context, caller credential.Account, tokenID uint64) (_ credential.Certificate, err error) {
	op, ctx := observability.StartOperation(ctx, l.metrics, "ledger.validate",
		attribute.Int64("token_id", int64(tokenID)))
	defer func() { op.End(err) }()

	l.mu.Lock()
	defer l.mu.Unlock()

	cert, ok := l.st.cert(tokenID)
	if !ok {
		return credential.Certificate{}, skerrors.NotFound("certificate %d", tokenID)
	}
	if cert.Validated {
		return credential.Certificate{}, skerrors.Newf(skerrors.CodeAlreadyValidated, "certificate %d already validated by %s", tokenID, cert.ValidatedBy)
	}
	course, ok := l.st.course(cert.CourseID)
	if !ok {
		return credential.Certificate{}, skerrors.NotFound("course %d", cert.CourseID)
	}
	if caller == cert.Student {
		return credential.Certificate{}, skerrors.Unauthorized("a student cannot validate their own certificate")
	}
	if !l.st.mayIssue(caller, course) {
		return credential.Certificate{}, skerrors.Unauthorized("%s may not validate for course %d", caller, course.ID)
	}

	c := l.begin(caller)
	at := c.at
	cert.Validated = true
	cert.ValidatedBy = caller
	cert.ValidatedAt = &at
	c.Certificates = append(c.Certificates, cert)
	c.emit(credential.Event{
		Type:      credential.EventCertificateValidated,
		TokenID:   cert.TokenID,
		Validator: caller,
		Student:   cert.Student,
		CourseID:  cert.CourseID,
	})
	if err := l.apply(ctx, c); err != nil {
		return credential.Certificate{}, err
	}

	l.log.WithToken(tokenID).Info("certificate validated", "validator", caller.Short())
	return cert, nil
}

// GetCertificate returns a certificate by token id.
func (l *Ledger) GetCertificate(_ context.Context, tokenID uint64) (credential.Certificate, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	cert, ok := l.st.cert(tokenID)
	if !ok {
		return credential.Certificate{}, skerrors.NotFound("certificate %d", tokenID)
	}
	return cert, nil
}

// GetStudentCertificates returns the token ids held by student in issuance
// order.
func (l *Ledger) GetStudentCertificates(_ context.Context, student credential.Account) []uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := l.st.certsByStudent[student]
	out := make([]uint64, len(ids))
	copy(out, ids)
	return out
}

// HasCompletedCourse reports whether student holds a validated certificate
// for courseID.
func (l *Ledger) HasCompletedCourse(_ context.Context, student credential.Account, courseID uint64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, id := range l.st.certsByStudent[student] {
		c := &l.st.certs[id-1]
		if c.CourseID == courseID && c.Validated {
			return true
		}
	}
	return false
}

// TotalCertificates returns the number of certificates ever issued.
func (l *Ledger) TotalCertificates(_ context.Context) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.st.certs))
}

// QueryCertificates returns certificates matching a CEL expression over the
// cert variable, in token id order. An empty expression matches everything.
func (l *Ledger) QueryCertificates(ctx context.Context, expression string, limit int) (_ []credential.Certificate, err error) {
	op, ctx := observability.StartOperation(ctx, l.metrics, "ledger.query_certificates")
	defer func() { op.End(err) }()

	if expression == "" {
		expression = "true"
	}
	prg, err := l.certEval.Compile(ctx, expression)
	if err != nil {
		return nil, skerrors.Wrap(skerrors.CodeInvalidInput, "filter", err)
	}
	limit = clampLimit(limit, defaultQueryLimit, maxQueryLimit)

	l.mu.RLock()
	certs := make([]credential.Certificate, 0, len(l.st.certs))
	for _, c := range l.st.certs {
		certs = append(certs, cloneCert(c))
	}
	l.mu.RUnlock()

	out := celeval.Filter(ctx, l.certEval, prg, certs, (*credential.Certificate).Attributes)
	if out == nil {
		out = []credential.Certificate{}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
