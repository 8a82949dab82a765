// Package client is a Go client for the skilltoken.v1.Registry service.
//
// Errors returned by registry calls are *errors.Error values carrying the
// same Code the server produced, so callers can match them with
// errors.Is(err, errors.ErrNotFound) and friends.
package client

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	grpcmd "google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/MasterChonk/SkillToken-V2/pkg/credential"
	skerrors "github.com/MasterChonk/SkillToken-V2/pkg/errors"
	"github.com/MasterChonk/SkillToken-V2/pkg/transport"
)

type Client struct {
	conn    *grpc.ClientConn
	account credential.Account
}

type clientConfig struct {
	account  credential.Account
	dialOpts []grpc.DialOption
}

// Option configures client behavior.
type Option func(*clientConfig)

// WithAccount sets the account every call is made as. Without it the client
// is anonymous and can only read.
func WithAccount(a credential.Account) Option {
	return func(c *clientConfig) { c.account = a }
}

// WithDialOptions appends raw gRPC dial options.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(c *clientConfig) { c.dialOpts = append(c.dialOpts, opts...) }
}

func Dial(addr string, opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, o := range opts {
		o(cfg)
	}

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(transport.CodecName)),
	}
	dialOpts = append(dialOpts, cfg.dialOpts...)

	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Client{conn: conn, account: cfg.account}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Account returns the account calls are made as.
func (c *Client) Account() credential.Account { return c.account }

func (c *Client) outgoing(ctx context.Context) context.Context {
	if c.account.IsZero() {
		return ctx
	}
	return grpcmd.AppendToOutgoingContext(ctx, transport.MetadataAccount, string(c.account))
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	var trailer grpcmd.MD
	err := c.conn.Invoke(c.outgoing(ctx), transport.FullMethod(method), req, resp, grpc.Trailer(&trailer))
	return decodeError(err, trailer)
}

// decodeError rebuilds the registry error from the x-skilltoken-code
// trailer. Transport failures are returned unchanged.
func decodeError(err error, trailer grpcmd.MD) error {
	if err == nil {
		return nil
	}
	vals := trailer.Get(transport.TrailerCode)
	if len(vals) == 0 {
		return err
	}
	code := skerrors.ParseCode(vals[0])
	msg := err.Error()
	if st, ok := status.FromError(err); ok {
		msg = st.Message()
	}
	return skerrors.New(code, strings.TrimPrefix(msg, string(code)+": "))
}

func (c *Client) GrantRole(ctx context.Context, account credential.Account, role credential.Role) error {
	return c.invoke(ctx, transport.MethodGrantRole, &transport.GrantRoleRequest{Account: account, Role: role}, &transport.Empty{})
}

func (c *Client) HasRole(ctx context.Context, account credential.Account, role credential.Role) (bool, error) {
	var resp transport.BoolResponse
	err := c.invoke(ctx, transport.MethodHasRole, &transport.HasRoleRequest{Account: account, Role: role}, &resp)
	return resp.Value, err
}

func (c *Client) Roles(ctx context.Context, account credential.Account) ([]credential.Role, error) {
	var resp transport.RolesResponse
	err := c.invoke(ctx, transport.MethodRoles, &transport.AccountRequest{Account: account}, &resp)
	return resp.Roles, err
}

func (c *Client) RegisterCourse(ctx context.Context, name string) (credential.Course, error) {
	var resp transport.CourseResponse
	err := c.invoke(ctx, transport.MethodRegisterCourse, &transport.RegisterCourseRequest{Name: name}, &resp)
	return resp.Course, err
}

func (c *Client) DeactivateCourse(ctx context.Context, courseID uint64) (credential.Course, error) {
	var resp transport.CourseResponse
	err := c.invoke(ctx, transport.MethodDeactivateCourse, &transport.CourseRequest{CourseID: courseID}, &resp)
	return resp.Course, err
}

func (c *Client) GetCourse(ctx context.Context, courseID uint64) (credential.Course, error) {
	var resp transport.CourseResponse
	err := c.invoke(ctx, transport.MethodGetCourse, &transport.CourseRequest{CourseID: courseID}, &resp)
	return resp.Course, err
}

func (c *Client) GetTeacherCourses(ctx context.Context, teacher credential.Account) ([]credential.Course, error) {
	var resp transport.CoursesResponse
	err := c.invoke(ctx, transport.MethodGetTeacherCourses, &transport.AccountRequest{Account: teacher}, &resp)
	return resp.Courses, err
}

func (c *Client) TotalCourses(ctx context.Context) (uint64, error) {
	var resp transport.CountResponse
	err := c.invoke(ctx, transport.MethodTotalCourses, &transport.Empty{}, &resp)
	return resp.Count, err
}

// IssueCertificate mints a certificate as the client account.
func (c *Client) IssueCertificate(ctx context.Context, req *transport.IssueCertificateRequest) (credential.Certificate, error) {
	var resp transport.CertificateResponse
	err := c.invoke(ctx, transport.MethodIssueCertificate, req, &resp)
	return resp.Certificate, err
}

func (c *Client) Validate(ctx context.Context, tokenID uint64) (credential.Certificate, error) {
	var resp transport.CertificateResponse
	err := c.invoke(ctx, transport.MethodValidate, &transport.TokenRequest{TokenID: tokenID}, &resp)
	return resp.Certificate, err
}

func (c *Client) GetCertificate(ctx context.Context, tokenID uint64) (credential.Certificate, error) {
	var resp transport.CertificateResponse
	err := c.invoke(ctx, transport.MethodGetCertificate, &transport.TokenRequest{TokenID: tokenID}, &resp)
	return resp.Certificate, err
}

func (c *Client) GetStudentCertificates(ctx context.Context, student credential.Account) ([]uint64, error) {
	var resp transport.TokenIDsResponse
	err := c.invoke(ctx, transport.MethodGetStudentCertificates, &transport.AccountRequest{Account: student}, &resp)
	return resp.TokenIDs, err
}

func (c *Client) TotalCertificates(ctx context.Context) (uint64, error) {
	var resp transport.CountResponse
	err := c.invoke(ctx, transport.MethodTotalCertificates, &transport.Empty{}, &resp)
	return resp.Count, err
}

func (c *Client) HasCompletedCourse(ctx context.Context, student credential.Account, courseID uint64) (bool, error) {
	var resp transport.BoolResponse
	err := c.invoke(ctx, transport.MethodHasCompletedCourse, &transport.HasCompletedCourseRequest{Student: student, CourseID: courseID}, &resp)
	return resp.Value, err
}

func (c *Client) QueryCertificates(ctx context.Context, expression string, limit int) ([]credential.Certificate, error) {
	var resp transport.CertificatesResponse
	err := c.invoke(ctx, transport.MethodQueryCertificates, &transport.QueryCertificatesRequest{Expression: expression, Limit: limit}, &resp)
	return resp.Certificates, err
}

func (c *Client) DelegateIssuer(ctx context.Context, grantee credential.Account, scope credential.Scope) (credential.Grant, error) {
	var resp transport.GrantResponse
	err := c.invoke(ctx, transport.MethodDelegateIssuer, &transport.DelegationRequest{Grantee: grantee, Scope: scope}, &resp)
	return resp.Grant, err
}

func (c *Client) RevokeDelegation(ctx context.Context, grantee credential.Account, scope credential.Scope) (credential.Grant, error) {
	var resp transport.GrantResponse
	err := c.invoke(ctx, transport.MethodRevokeDelegation, &transport.DelegationRequest{Grantee: grantee, Scope: scope}, &resp)
	return resp.Grant, err
}

func (c *Client) IsAuthorized(ctx context.Context, grantor, grantee credential.Account, courseID uint64) (bool, error) {
	var resp transport.BoolResponse
	err := c.invoke(ctx, transport.MethodIsAuthorized, &transport.IsAuthorizedRequest{Grantor: grantor, Grantee: grantee, CourseID: courseID}, &resp)
	return resp.Value, err
}

func (c *Client) GrantsBy(ctx context.Context, grantor credential.Account) ([]credential.Grant, error) {
	var resp transport.GrantsResponse
	err := c.invoke(ctx, transport.MethodListGrants, &transport.ListGrantsRequest{Grantor: grantor}, &resp)
	return resp.Grants, err
}

func (c *Client) GrantsTo(ctx context.Context, grantee credential.Account) ([]credential.Grant, error) {
	var resp transport.GrantsResponse
	err := c.invoke(ctx, transport.MethodListGrants, &transport.ListGrantsRequest{Grantee: grantee}, &resp)
	return resp.Grants, err
}

// Verify checks a certificate. Pass the zero account to skip the issuer
// check.
func (c *Client) Verify(ctx context.Context, tokenID uint64, expected credential.Account) (credential.VerificationResult, error) {
	var resp transport.VerifyResponse
	err := c.invoke(ctx, transport.MethodVerify, &transport.VerifyRequest{TokenID: tokenID, Expected: expected}, &resp)
	return resp.Result, err
}

func (c *Client) Events(ctx context.Context, after uint64, limit int) ([]credential.Event, error) {
	var resp transport.EventsResponse
	err := c.invoke(ctx, transport.MethodEvents, &transport.EventsRequest{After: after, Limit: limit}, &resp)
	return resp.Events, err
}

func (c *Client) Snapshot(ctx context.Context) (*transport.Snapshot, error) {
	var resp transport.Snapshot
	if err := c.invoke(ctx, transport.MethodSnapshot, &transport.Empty{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// EventStream is an open WatchEvents call.
type EventStream struct {
	stream grpc.ClientStream
	cancel context.CancelFunc
}

// WatchEvents streams notifications with Seq > after matching expression.
// The stream ends when ctx is done or Close is called.
func (c *Client) WatchEvents(ctx context.Context, after uint64, expression string) (*EventStream, error) {
	ctx, cancel := context.WithCancel(c.outgoing(ctx))
	desc := &transport.RegistryServiceDesc.Streams[0]
	stream, err := c.conn.NewStream(ctx, desc, transport.FullMethod(transport.MethodWatchEvents))
	if err != nil {
		cancel()
		return nil, err
	}
	if err := stream.SendMsg(&transport.WatchEventsRequest{After: after, Expression: expression}); err != nil {
		cancel()
		return nil, decodeError(err, stream.Trailer())
	}
	if err := stream.CloseSend(); err != nil {
		cancel()
		return nil, err
	}
	return &EventStream{stream: stream, cancel: cancel}, nil
}

// Recv blocks for the next event. It returns io.EOF when the server ends
// the stream cleanly.
func (s *EventStream) Recv() (*credential.Event, error) {
	e := new(credential.Event)
	if err := s.stream.RecvMsg(e); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, decodeError(err, s.stream.Trailer())
	}
	return e, nil
}

func (s *EventStream) Close() {
	s.cancel()
}
