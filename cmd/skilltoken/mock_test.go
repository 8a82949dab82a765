package main

import (
	"context"
	"errors"
	"io"

	"github.com/MasterChonk/SkillToken-V2/pkg/credential"
	"github.com/MasterChonk/SkillToken-V2/pkg/transport"
)

var errNotMocked = errors.New("not mocked")

type mockClient struct {
	account credential.Account

	grantRoleFn        func(ctx context.Context, account credential.Account, role credential.Role) error
	hasRoleFn          func(ctx context.Context, account credential.Account, role credential.Role) (bool, error)
	rolesFn            func(ctx context.Context, account credential.Account) ([]credential.Role, error)
	registerCourseFn   func(ctx context.Context, name string) (credential.Course, error)
	deactivateCourseFn func(ctx context.Context, courseID uint64) (credential.Course, error)
	getCourseFn        func(ctx context.Context, courseID uint64) (credential.Course, error)
	teacherCoursesFn   func(ctx context.Context, teacher credential.Account) ([]credential.Course, error)
	totalCoursesFn     func(ctx context.Context) (uint64, error)
	issueFn            func(ctx context.Context, req *transport.IssueCertificateRequest) (credential.Certificate, error)
	validateFn         func(ctx context.Context, tokenID uint64) (credential.Certificate, error)
	getCertificateFn   func(ctx context.Context, tokenID uint64) (credential.Certificate, error)
	studentCertsFn     func(ctx context.Context, student credential.Account) ([]uint64, error)
	totalCertsFn       func(ctx context.Context) (uint64, error)
	completedFn        func(ctx context.Context, student credential.Account, courseID uint64) (bool, error)
	queryFn            func(ctx context.Context, expression string, limit int) ([]credential.Certificate, error)
	delegateFn         func(ctx context.Context, grantee credential.Account, scope credential.Scope) (credential.Grant, error)
	revokeFn           func(ctx context.Context, grantee credential.Account, scope credential.Scope) (credential.Grant, error)
	isAuthorizedFn     func(ctx context.Context, grantor, grantee credential.Account, courseID uint64) (bool, error)
	grantsByFn         func(ctx context.Context, grantor credential.Account) ([]credential.Grant, error)
	grantsToFn         func(ctx context.Context, grantee credential.Account) ([]credential.Grant, error)
	verifyFn           func(ctx context.Context, tokenID uint64, expected credential.Account) (credential.VerificationResult, error)
	eventsFn           func(ctx context.Context, after uint64, limit int) ([]credential.Event, error)
	watchFn            func(ctx context.Context, after uint64, expression string) (EventStream, error)
	snapshotFn         func(ctx context.Context) (*transport.Snapshot, error)

	closed bool
}

func (m *mockClient) Account() credential.Account { return m.account }

func (m *mockClient) GrantRole(ctx context.Context, account credential.Account, role credential.Role) error {
	if m.grantRoleFn == nil {
		return errNotMocked
	}
	return m.grantRoleFn(ctx, account, role)
}

func (m *mockClient) HasRole(ctx context.Context, account credential.Account, role credential.Role) (bool, error) {
	if m.hasRoleFn == nil {
		return false, errNotMocked
	}
	return m.hasRoleFn(ctx, account, role)
}

func (m *mockClient) Roles(ctx context.Context, account credential.Account) ([]credential.Role, error) {
	if m.rolesFn == nil {
		return nil, errNotMocked
	}
	return m.rolesFn(ctx, account)
}

func (m *mockClient) RegisterCourse(ctx context.Context, name string) (credential.Course, error) {
	if m.registerCourseFn == nil {
		return credential.Course{}, errNotMocked
	}
	return m.registerCourseFn(ctx, name)
}

func (m *mockClient) DeactivateCourse(ctx context.Context, courseID uint64) (credential.Course, error) {
	if m.deactivateCourseFn == nil {
		return credential.Course{}, errNotMocked
	}
	return m.deactivateCourseFn(ctx, courseID)
}

func (m *mockClient) GetCourse(ctx context.Context, courseID uint64) (credential.Course, error) {
	if m.getCourseFn == nil {
		return credential.Course{}, errNotMocked
	}
	return m.getCourseFn(ctx, courseID)
}

func (m *mockClient) GetTeacherCourses(ctx context.Context, teacher credential.Account) ([]credential.Course, error) {
	if m.teacherCoursesFn == nil {
		return nil, errNotMocked
	}
	return m.teacherCoursesFn(ctx, teacher)
}

func (m *mockClient) TotalCourses(ctx context.Context) (uint64, error) {
	if m.totalCoursesFn == nil {
		return 0, errNotMocked
	}
	return m.totalCoursesFn(ctx)
}

func (m *mockClient) IssueCertificate(ctx context.Context, req *transport.IssueCertificateRequest) (credential.Certificate, error) {
	if m.issueFn == nil {
		return credential.Certificate{}, errNotMocked
	}
	return m.issueFn(ctx, req)
}

func (m *mockClient) Validate(ctx context.Context, tokenID uint64) (credential.Certificate, error) {
	if m.validateFn == nil {
		return credential.Certificate{}, errNotMocked
	}
	return m.validateFn(ctx, tokenID)
}

func (m *mockClient) GetCertificate(ctx context.Context, tokenID uint64) (credential.Certificate, error) {
	if m.getCertificateFn == nil {
		return credential.Certificate{}, errNotMocked
	}
	return m.getCertificateFn(ctx, tokenID)
}

func (m *mockClient) GetStudentCertificates(ctx context.Context, student credential.Account) ([]uint64, error) {
	if m.studentCertsFn == nil {
		return nil, errNotMocked
	}
	return m.studentCertsFn(ctx, student)
}

func (m *mockClient) TotalCertificates(ctx context.Context) (uint64, error) {
	if m.totalCertsFn == nil {
		return 0, errNotMocked
	}
	return m.totalCertsFn(ctx)
}

func (m *mockClient) HasCompletedCourse(ctx context.Context, student credential.Account, courseID uint64) (bool, error) {
	if m.completedFn == nil {
		return false, errNotMocked
	}
	return m.completedFn(ctx, student, courseID)
}

func (m *mockClient) QueryCertificates(ctx context.Context, expression string, limit int) ([]credential.Certificate, error) {
	if m.queryFn == nil {
		return nil, errNotMocked
	}
	return m.queryFn(ctx, expression, limit)
}

func (m *mockClient) DelegateIssuer(ctx context.Context, grantee credential.Account, scope credential.Scope) (credential.Grant, error) {
	if m.delegateFn == nil {
		return credential.Grant{}, errNotMocked
	}
	return m.delegateFn(ctx, grantee, scope)
}

func (m *mockClient) RevokeDelegation(ctx context.Context, grantee credential.Account, scope credential.Scope) (credential.Grant, error) {
	if m.revokeFn == nil {
		return credential.Grant{}, errNotMocked
	}
	return m.revokeFn(ctx, grantee, scope)
}

func (m *mockClient) IsAuthorized(ctx context.Context, grantor, grantee credential.Account, courseID uint64) (bool, error) {
	if m.isAuthorizedFn == nil {
		return false, errNotMocked
	}
	return m.isAuthorizedFn(ctx, grantor, grantee, courseID)
}

func (m *mockClient) GrantsBy(ctx context.Context, grantor credential.Account) ([]credential.Grant, error) {
	if m.grantsByFn == nil {
		return nil, errNotMocked
	}
	return m.grantsByFn(ctx, grantor)
}

func (m *mockClient) GrantsTo(ctx context.Context, grantee credential.Account) ([]credential.Grant, error) {
	if m.grantsToFn == nil {
		return nil, errNotMocked
	}
	return m.grantsToFn(ctx, grantee)
}

func (m *mockClient) Verify(ctx context.Context, tokenID uint64, expected credential.Account) (credential.VerificationResult, error) {
	if m.verifyFn == nil {
		return credential.VerificationResult{}, errNotMocked
	}
	return m.verifyFn(ctx, tokenID, expected)
}

func (m *mockClient) Events(ctx context.Context, after uint64, limit int) ([]credential.Event, error) {
	if m.eventsFn == nil {
		return nil, errNotMocked
	}
	return m.eventsFn(ctx, after, limit)
}

func (m *mockClient) WatchEvents(ctx context.Context, after uint64, expression string) (EventStream, error) {
	if m.watchFn == nil {
		return nil, errNotMocked
	}
	return m.watchFn(ctx, after, expression)
}

func (m *mockClient) Snapshot(ctx context.Context) (*transport.Snapshot, error) {
	if m.snapshotFn == nil {
		return nil, errNotMocked
	}
	return m.snapshotFn(ctx)
}

func (m *mockClient) Close() error {
	m.closed = true
	return nil
}

// sliceStream replays events and then ends with io.EOF.
type sliceStream struct {
	events []credential.Event
	closed bool
}

func (s *sliceStream) Recv() (*credential.Event, error) {
	if len(s.events) == 0 {
		return nil, io.EOF
	}
	e := s.events[0]
	s.events = s.events[1:]
	return &e, nil
}

func (s *sliceStream) Close() { s.closed = true }
