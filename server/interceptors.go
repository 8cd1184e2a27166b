package server

import (
	"context"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

type peerKey struct{}

// withPeer records the caller's address in ctx.
func withPeer(ctx context.Context) context.Context {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ctx
	}
	return context.WithValue(ctx, peerKey{}, p.Addr.String())
}

// peerFromContext returns the caller address recorded by withPeer.
func peerFromContext(ctx context.Context) string {
	if addr, ok := ctx.Value(peerKey{}).(string); ok {
		return addr
	}
	return "unknown peer"
}

// newGRPCServer returns the gRPC server for the health API. Handler panics
// are recovered and reported as Internal errors.
func (s *Server) newGRPCServer() *grpc.Server {
	recovery := grpc_recovery.WithRecoveryHandler(s.recoverPanic)
	return grpc.NewServer(
		grpc_middleware.WithUnaryServerChain(
			s.unaryInterceptor,
			grpc_recovery.UnaryServerInterceptor(recovery),
		),
		grpc_middleware.WithStreamServerChain(
			s.streamInterceptor,
			grpc_recovery.StreamServerInterceptor(recovery),
		),
	)
}

func (s *Server) unaryInterceptor(
	ctx context.Context,
	req interface{},
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (interface{}, error) {
	ctx = withPeer(ctx)
	s.logger.Debugf("api: %s [peer=%s]", info.FullMethod, peerFromContext(ctx))
	return handler(ctx, req)
}

func (s *Server) streamInterceptor(srv interface{}, ss grpc.ServerStream,
	info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {

	newStream := grpc_middleware.WrapServerStream(ss)
	newStream.WrappedContext = withPeer(ss.Context())
	s.logger.Debugf("api: %s [peer=%s]", info.FullMethod, peerFromContext(newStream.WrappedContext))
	return handler(srv, newStream)
}

func (s *Server) recoverPanic(p interface{}) error {
	s.logger.Errorf("api: recovered from panic: %v", p)
	return status.Error(codes.Internal, "internal error")
}
