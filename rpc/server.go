package rpc

import (
	"context"
	"net"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const servicePrefix = "depth."

// ServiceName is the health service that reports one instrument's sync state.
func ServiceName(instrument string) string {
	return servicePrefix + instrument
}

// Server exposes the standard gRPC health protocol. The empty service name
// reports the process, and every instrument gets its own entry that is
// SERVING while its book is synced.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	logger *zap.Logger
}

func NewServer(instruments []string, logger *zap.Logger) *Server {
	s := &Server{
		grpc:   grpc.NewServer(),
		health: health.NewServer(),
		logger: logger.Named("rpc"),
	}

	for _, instrument := range instruments {
		s.health.SetServingStatus(ServiceName(instrument), healthpb.HealthCheckResponse_NOT_SERVING)
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)
	return s
}

func (s *Server) SetSynced(instrument string, synced bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if synced {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName(instrument), status)
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", addr)
	}
	return s.Serve(ctx, lis)
}

// Serve blocks until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		s.health.Shutdown()
		s.grpc.GracefulStop()
	}()

	s.logger.Info("grpc server listening", zap.String("addr", lis.Addr().String()))
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return errors.Wrap(err, "failed to serve")
	}
	return nil
}
