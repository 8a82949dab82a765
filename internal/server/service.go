package server

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/MasterChonk/SkillToken-V2/internal/ledger"
	"github.com/MasterChonk/SkillToken-V2/pkg/credential"
	skerrors "github.com/MasterChonk/SkillToken-V2/pkg/errors"
	"github.com/MasterChonk/SkillToken-V2/pkg/transport"
)

type registryService struct {
	ledger *ledger.Ledger
}

var _ transport.RegistryServer = (*registryService)(nil)

// caller returns the authenticated account of a mutating call.
func caller(ctx context.Context) (credential.Account, error) {
	a := CallerFrom(ctx)
	if a.IsZero() {
		return "", skerrors.Unauthorized("missing %s metadata", transport.MetadataAccount)
	}
	return a, nil
}

// account rejects a request field that did not decode to a canonical account.
// Mutations leave this to the ledger so its check order is preserved.
func account(field string, a credential.Account) error {
	if err := a.Validate(); err != nil {
		return skerrors.Wrap(skerrors.CodeInvalidInput, field, err)
	}
	return nil
}

func (s *registryService) GrantRole(ctx context.Context, req *transport.GrantRoleRequest) (*transport.Empty, error) {
	from, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.ledger.GrantRole(ctx, from, req.Account, req.Role); err != nil {
		return nil, err
	}
	return &transport.Empty{}, nil
}

func (s *registryService) HasRole(ctx context.Context, req *transport.HasRoleRequest) (*transport.BoolResponse, error) {
	if err := account("account", req.Account); err != nil {
		return nil, err
	}
	return &transport.BoolResponse{Value: s.ledger.HasRole(ctx, req.Account, req.Role)}, nil
}

func (s *registryService) Roles(ctx context.Context, req *transport.AccountRequest) (*transport.RolesResponse, error) {
	if err := account("account", req.Account); err != nil {
		return nil, err
	}
	return &transport.RolesResponse{Roles: s.ledger.Roles(ctx, req.Account)}, nil
}

func (s *registryService) RegisterCourse(ctx context.Context, req *transport.RegisterCourseRequest) (*transport.CourseResponse, error) {
	from, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	c, err := s.ledger.RegisterCourse(ctx, from, req.Name)
	if err != nil {
		return nil, err
	}
	return &transport.CourseResponse{Course: c}, nil
}

func (s *registryService) DeactivateCourse(ctx context.Context, req *transport.CourseRequest) (*transport.CourseResponse, error) {
	from, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	c, err := s.ledger.DeactivateCourse(ctx, from, req.CourseID)
	if err != nil {
		return nil, err
	}
	return &transport.CourseResponse{Course: c}, nil
}

func (s *registryService) GetCourse(ctx context.Context, req *transport.CourseRequest) (*transport.CourseResponse, error) {
	c, err := s.ledger.GetCourse(ctx, req.CourseID)
	if err != nil {
		return nil, err
	}
	return &transport.CourseResponse{Course: c}, nil
}

func (s *registryService) GetTeacherCourses(ctx context.Context, req *transport.AccountRequest) (*transport.CoursesResponse, error) {
	if err := account("account", req.Account); err != nil {
		return nil, err
	}
	return &transport.CoursesResponse{Courses: s.ledger.GetCoursesByOwner(ctx, req.Account)}, nil
}

func (s *registryService) TotalCourses(ctx context.Context, _ *transport.Empty) (*transport.CountResponse, error) {
	return &transport.CountResponse{Count: s.ledger.TotalCourses(ctx)}, nil
}

func (s *registryService) IssueCertificate(ctx context.Context, req *transport.IssueCertificateRequest) (*transport.CertificateResponse, error) {
	from, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	c, err := s.ledger.IssueCertificate(ctx, from, ledger.IssueRequest{
		Student:     req.Student,
		CourseID:    req.CourseID,
		ContentHash: req.ContentHash,
		TokenURI:    req.TokenURI,
	})
	if err != nil {
		return nil, err
	}
	return &transport.CertificateResponse{Certificate: c}, nil
}

func (s *registryService) Validate(ctx context.Context, req *transport.TokenRequest) (*transport.CertificateResponse, error) {
	from, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	c, err := s.ledger.Validate(ctx, from, req.TokenID)
	if err != nil {
		return nil, err
	}
	return &transport.CertificateResponse{Certificate: c}, nil
}

func (s *registryService) GetCertificate(ctx context.Context, req *transport.TokenRequest) (*transport.CertificateResponse, error) {
	c, err := s.ledger.GetCertificate(ctx, req.TokenID)
	if err != nil {
		return nil, err
	}
	return &transport.CertificateResponse{Certificate: c}, nil
}

func (s *registryService) GetStudentCertificates(ctx context.Context, req *transport.AccountRequest) (*transport.TokenIDsResponse, error) {
	if err := account("account", req.Account); err != nil {
		return nil, err
	}
	return &transport.TokenIDsResponse{TokenIDs: s.ledger.GetStudentCertificates(ctx, req.Account)}, nil
}

func (s *registryService) TotalCertificates(ctx context.Context, _ *transport.Empty) (*transport.CountResponse, error) {
	return &transport.CountResponse{Count: s.ledger.TotalCertificates(ctx)}, nil
}

func (s *registryService) HasCompletedCourse(ctx context.Context, req *transport.HasCompletedCourseRequest) (*transport.BoolResponse, error) {
	if err := account("student", req.Student); err != nil {
		return nil, err
	}
	return &transport.BoolResponse{Value: s.ledger.HasCompletedCourse(ctx, req.Student, req.CourseID)}, nil
}

func (s *registryService) QueryCertificates(ctx context.Context, req *transport.QueryCertificatesRequest) (*transport.CertificatesResponse, error) {
	certs, err := s.ledger.QueryCertificates(ctx, req.Expression, req.Limit)
	if err != nil {
		return nil, err
	}
	return &transport.CertificatesResponse{Certificates: certs}, nil
}

func (s *registryService) DelegateIssuer(ctx context.Context, req *transport.DelegationRequest) (*transport.GrantResponse, error) {
	from, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	g, err := s.ledger.DelegateIssuer(ctx, from, req.Grantee, req.Scope)
	if err != nil {
		return nil, err
	}
	return &transport.GrantResponse{Grant: g}, nil
}

func (s *registryService) RevokeDelegation(ctx context.Context, req *transport.DelegationRequest) (*transport.GrantResponse, error) {
	from, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := account("grantee", req.Grantee); err != nil {
		return nil, err
	}
	g, err := s.ledger.RevokeDelegation(ctx, from, req.Grantee, req.Scope)
	if err != nil {
		return nil, err
	}
	return &transport.GrantResponse{Grant: g}, nil
}

func (s *registryService) IsAuthorized(ctx context.Context, req *transport.IsAuthorizedRequest) (*transport.BoolResponse, error) {
	if err := account("grantor", req.Grantor); err != nil {
		return nil, err
	}
	if err := account("grantee", req.Grantee); err != nil {
		return nil, err
	}
	return &transport.BoolResponse{Value: s.ledger.IsAuthorized(ctx, req.Grantor, req.Grantee, req.CourseID)}, nil
}

func (s *registryService) ListGrants(ctx context.Context, req *transport.ListGrantsRequest) (*transport.GrantsResponse, error) {
	switch {
	case !req.Grantor.IsZero() && req.Grantee.IsZero():
		if err := account("grantor", req.Grantor); err != nil {
			return nil, err
		}
		return &transport.GrantsResponse{Grants: s.ledger.GrantsBy(ctx, req.Grantor)}, nil
	case req.Grantor.IsZero() && !req.Grantee.IsZero():
		if err := account("grantee", req.Grantee); err != nil {
			return nil, err
		}
		return &transport.GrantsResponse{Grants: s.ledger.GrantsTo(ctx, req.Grantee)}, nil
	default:
		return nil, skerrors.InvalidInput("exactly one of grantor or grantee is required")
	}
}

func (s *registryService) Verify(ctx context.Context, req *transport.VerifyRequest) (*transport.VerifyResponse, error) {
	if !req.Expected.IsZero() {
		if err := account("expected", req.Expected); err != nil {
			return nil, err
		}
	}
	return &transport.VerifyResponse{Result: s.ledger.Verify(ctx, req.TokenID, req.Expected)}, nil
}

func (s *registryService) Events(ctx context.Context, req *transport.EventsRequest) (*transport.EventsResponse, error) {
	events, err := s.ledger.Events(ctx, req.After, req.Limit)
	if err != nil {
		return nil, err
	}
	return &transport.EventsResponse{Events: events}, nil
}

func (s *registryService) Snapshot(ctx context.Context, _ *transport.Empty) (*transport.Snapshot, error) {
	snap, err := s.ledger.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := transport.Snapshot(*snap)
	return &out, nil
}

func (s *registryService) WatchEvents(req *transport.WatchEventsRequest, stream transport.WatchEventsServer) error {
	ctx := stream.Context()
	sub, err := s.ledger.Watch(ctx, req.After, req.Expression, nil)
	if err != nil {
		if errors.Is(err, ledger.ErrSubscriptionClosed) {
			return status.Error(codes.Unavailable, err.Error())
		}
		return err
	}
	defer sub.Cancel()

	for e := range sub.Events() {
		if err := stream.Send(e); err != nil {
			return err
		}
	}
	if err := sub.Err(); err != nil {
		return status.Error(codes.ResourceExhausted, err.Error())
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return status.Error(codes.Unavailable, "registry shutting down")
}
