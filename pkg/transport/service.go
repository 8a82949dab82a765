package transport

import (
	"context"

	"google.golang.org/grpc"

	"github.com/MasterChonk/SkillToken-V2/pkg/credential"
)

// Method names of the Registry service.
const (
	MethodGrantRole              = "GrantRole"
	MethodHasRole                = "HasRole"
	MethodRoles                  = "Roles"
	MethodRegisterCourse         = "RegisterCourse"
	MethodDeactivateCourse       = "DeactivateCourse"
	MethodGetCourse              = "GetCourse"
	MethodGetTeacherCourses      = "GetTeacherCourses"
	MethodTotalCourses           = "TotalCourses"
	MethodIssueCertificate       = "IssueCertificate"
	MethodValidate               = "Validate"
	MethodGetCertificate         = "GetCertificate"
	MethodGetStudentCertificates = "GetStudentCertificates"
	MethodTotalCertificates      = "TotalCertificates"
	MethodHasCompletedCourse     = "HasCompletedCourse"
	MethodQueryCertificates      = "QueryCertificates"
	MethodDelegateIssuer         = "DelegateIssuer"
	MethodRevokeDelegation       = "RevokeDelegation"
	MethodIsAuthorized           = "IsAuthorized"
	MethodListGrants             = "ListGrants"
	MethodVerify                 = "Verify"
	MethodEvents                 = "Events"
	MethodSnapshot               = "Snapshot"
	MethodWatchEvents            = "WatchEvents"
)

// FullMethod returns the gRPC path of method, e.g. /skilltoken.v1.Registry/Verify.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// RegistryServer is the server API of the Registry service.
type RegistryServer interface {
	GrantRole(context.Context, *GrantRoleRequest) (*Empty, error)
	HasRole(context.Context, *HasRoleRequest) (*BoolResponse, error)
	Roles(context.Context, *AccountRequest) (*RolesResponse, error)
	RegisterCourse(context.Context, *RegisterCourseRequest) (*CourseResponse, error)
	DeactivateCourse(context.Context, *CourseRequest) (*CourseResponse, error)
	GetCourse(context.Context, *CourseRequest) (*CourseResponse, error)
	GetTeacherCourses(context.Context, *AccountRequest) (*CoursesResponse, error)
	TotalCourses(context.Context, *Empty) (*CountResponse, error)
	IssueCertificate(context.Context, *IssueCertificateRequest) (*CertificateResponse, error)
	Validate(context.Context, *TokenRequest) (*CertificateResponse, error)
	GetCertificate(context.Context, *TokenRequest) (*CertificateResponse, error)
	GetStudentCertificates(context.Context, *AccountRequest) (*TokenIDsResponse, error)
	TotalCertificates(context.Context, *Empty) (*CountResponse, error)
	HasCompletedCourse(context.Context, *HasCompletedCourseRequest) (*BoolResponse, error)
	QueryCertificates(context.Context, *QueryCertificatesRequest) (*CertificatesResponse, error)
	DelegateIssuer(context.Context, *DelegationRequest) (*GrantResponse, error)
	RevokeDelegation(context.Context, *DelegationRequest) (*GrantResponse, error)
	IsAuthorized(context.Context, *IsAuthorizedRequest) (*BoolResponse, error)
	ListGrants(context.Context, *ListGrantsRequest) (*GrantsResponse, error)
	Verify(context.Context, *VerifyRequest) (*VerifyResponse, error)
	Events(context.Context, *EventsRequest) (*EventsResponse, error)
	Snapshot(context.Context, *Empty) (*Snapshot, error)
	WatchEvents(*WatchEventsRequest, WatchEventsServer) error
}

// WatchEventsServer is the server side of a WatchEvents stream.
type WatchEventsServer interface {
	Send(*credential.Event) error
	grpc.ServerStream
}

type watchEventsServer struct {
	grpc.ServerStream
}

func (s *watchEventsServer) Send(e *credential.Event) error {
	return s.ServerStream.SendMsg(e)
}

// RegisterRegistryServer registers srv on s.
func RegisterRegistryServer(s grpc.ServiceRegistrar, srv RegistryServer) {
	s.RegisterService(&RegistryServiceDesc, srv)
}

// RegistryServiceDesc describes the Registry service for grpc.Server.
var RegistryServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RegistryServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodGrantRole, RegistryServer.GrantRole),
		unary(MethodHasRole, RegistryServer.HasRole),
		unary(MethodRoles, RegistryServer.Roles),
		unary(MethodRegisterCourse, RegistryServer.RegisterCourse),
		unary(MethodDeactivateCourse, RegistryServer.DeactivateCourse),
		unary(MethodGetCourse, RegistryServer.GetCourse),
		unary(MethodGetTeacherCourses, RegistryServer.GetTeacherCourses),
		unary(MethodTotalCourses, RegistryServer.TotalCourses),
		unary(MethodIssueCertificate, RegistryServer.IssueCertificate),
		unary(MethodValidate, RegistryServer.Validate),
		unary(MethodGetCertificate, RegistryServer.GetCertificate),
		unary(MethodGetStudentCertificates, RegistryServer.GetStudentCertificates),
		unary(MethodTotalCertificates, RegistryServer.TotalCertificates),
		unary(MethodHasCompletedCourse, RegistryServer.HasCompletedCourse),
		unary(MethodQueryCertificates, RegistryServer.QueryCertificates),
		unary(MethodDelegateIssuer, RegistryServer.DelegateIssuer),
		unary(MethodRevokeDelegation, RegistryServer.RevokeDelegation),
		unary(MethodIsAuthorized, RegistryServer.IsAuthorized),
		unary(MethodListGrants, RegistryServer.ListGrants),
		unary(MethodVerify, RegistryServer.Verify),
		unary(MethodEvents, RegistryServer.Events),
		unary(MethodSnapshot, RegistryServer.Snapshot),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    MethodWatchEvents,
			Handler:       watchEventsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "skilltoken/v1/registry.json",
}

// unary adapts a typed RegistryServer method to a grpc.MethodDesc.
func unary[Req, Resp any](name string, call func(RegistryServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(RegistryServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: FullMethod(name),
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(RegistryServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func watchEventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(WatchEventsRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(RegistryServer).WatchEvents(in, &watchEventsServer{stream})
}
