package server

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcmd "google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/MasterChonk/SkillToken-V2/pkg/credential"
	skerrors "github.com/MasterChonk/SkillToken-V2/pkg/errors"
	"github.com/MasterChonk/SkillToken-V2/pkg/transport"
)

type callerKey struct{}

// WithCaller stores the calling account in ctx.
func WithCaller(ctx context.Context, a credential.Account) context.Context {
	return context.WithValue(ctx, callerKey{}, a)
}

// CallerFrom returns the calling account, or the zero account for
// anonymous calls.
func CallerFrom(ctx context.Context) credential.Account {
	a, _ := ctx.Value(callerKey{}).(credential.Account)
	return a
}

// callerFromMetadata reads the x-skilltoken-account header. A missing header
// is an anonymous call; a malformed one is rejected.
func callerFromMetadata(ctx context.Context) (credential.Account, error) {
	md, ok := grpcmd.FromIncomingContext(ctx)
	if !ok {
		return "", nil
	}
	vals := md.Get(transport.MetadataAccount)
	if len(vals) == 0 || vals[0] == "" {
		return "", nil
	}
	a, err := credential.ParseAccount(vals[0])
	if err != nil {
		return "", skerrors.Wrap(skerrors.CodeInvalidInput, transport.MetadataAccount, err)
	}
	return a, nil
}

// UnaryServerInterceptor resolves the caller and translates registry errors
// into gRPC statuses carrying the x-skilltoken-code trailer.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		caller, err := callerFromMetadata(ctx)
		if err != nil {
			return nil, toStatus(err, func(md grpcmd.MD) { _ = grpc.SetTrailer(ctx, md) })
		}
		resp, err := handler(WithCaller(ctx, caller), req)
		if err != nil {
			return nil, toStatus(err, func(md grpcmd.MD) { _ = grpc.SetTrailer(ctx, md) })
		}
		return resp, nil
	}
}

// StreamServerInterceptor is the streaming counterpart of
// UnaryServerInterceptor.
func StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		caller, err := callerFromMetadata(ss.Context())
		if err != nil {
			return toStatus(err, ss.SetTrailer)
		}
		wrapped := &wrappedStream{ServerStream: ss, ctx: WithCaller(ss.Context(), caller)}
		if err := handler(srv, wrapped); err != nil {
			return toStatus(err, ss.SetTrailer)
		}
		return nil
	}
}

type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context { return w.ctx }

// toStatus converts err to a gRPC status. Registry errors keep their code in
// the trailer; existing statuses and context errors pass through.
func toStatus(err error, setTrailer func(grpcmd.MD)) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}

	code := skerrors.CodeOf(err)
	setTrailer(grpcmd.Pairs(transport.TrailerCode, string(code)))
	return status.Error(code.GRPCCode(), err.Error())
}
