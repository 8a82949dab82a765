package main

import (
	"context"

	"github.com/MasterChonk/SkillToken-V2/pkg/client"
	"github.com/MasterChonk/SkillToken-V2/pkg/credential"
	"github.com/MasterChonk/SkillToken-V2/pkg/transport"
)

// RegistryClient is the subset of *client.Client used by the commands.
// *client.Client satisfies it without modification.
type RegistryClient interface {
	Account() credential.Account

	GrantRole(ctx context.Context, account credential.Account, role credential.Role) error
	HasRole(ctx context.Context, account credential.Account, role credential.Role) (bool, error)
	Roles(ctx context.Context, account credential.Account) ([]credential.Role, error)

	RegisterCourse(ctx context.Context, name string) (credential.Course, error)
	DeactivateCourse(ctx context.Context, courseID uint64) (credential.Course, error)
	GetCourse(ctx context.Context, courseID uint64) (credential.Course, error)
	GetTeacherCourses(ctx context.Context, teacher credential.Account) ([]credential.Course, error)
	TotalCourses(ctx context.Context) (uint64, error)

	IssueCertificate(ctx context.Context, req *transport.IssueCertificateRequest) (credential.Certificate, error)
	Validate(ctx context.Context, tokenID uint64) (credential.Certificate, error)
	GetCertificate(ctx context.Context, tokenID uint64) (credential.Certificate, error)
	GetStudentCertificates(ctx context.Context, student credential.Account) ([]uint64, error)
	TotalCertificates(ctx context.Context) (uint64, error)
	HasCompletedCourse(ctx context.Context, student credential.Account, courseID uint64) (bool, error)
	QueryCertificates(ctx context.Context, expression string, limit int) ([]credential.Certificate, error)

	DelegateIssuer(ctx context.Context, grantee credential.Account, scope credential.Scope) (credential.Grant, error)
	RevokeDelegation(ctx context.Context, grantee credential.Account, scope credential.Scope) (credential.Grant, error)
	IsAuthorized(ctx context.Context, grantor, grantee credential.Account, courseID uint64) (bool, error)
	GrantsBy(ctx context.Context, grantor credential.Account) ([]credential.Grant, error)
	GrantsTo(ctx context.Context, grantee credential.Account) ([]credential.Grant, error)

	Verify(ctx context.Context, tokenID uint64, expected credential.Account) (credential.VerificationResult, error)
	Events(ctx context.Context, after uint64, limit int) ([]credential.Event, error)
	WatchEvents(ctx context.Context, after uint64, expression string) (EventStream, error)
	Snapshot(ctx context.Context) (*transport.Snapshot, error)

	Close() error
}

// EventStream is an open event watch.
type EventStream interface {
	Recv() (*credential.Event, error)
	Close()
}

// grpcClient adapts *client.Client, whose WatchEvents returns a concrete
// stream type.
type grpcClient struct {
	*client.Client
}

func (c grpcClient) WatchEvents(ctx context.Context, after uint64, expression string) (EventStream, error) {
	s, err := c.Client.WatchEvents(ctx, after, expression)
	if err != nil {
		return nil, err
	}
	return s, nil
}
