package server

import (
	"context"
	"errors"
	"net"

	"github.com/datachainlab/ibc-relayer/core"
	"github.com/datachainlab/ibc-relayer/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer publishes the state of each relay path through the standard gRPC health
// service. The service name of a path is the path name; the empty name is the relayer itself.
type HealthServer struct {
	*health.Server
}

var _ core.HealthReporter = (*HealthServer)(nil)

func NewHealthServer(pathNames ...string) *HealthServer {
	s := &HealthServer{Server: health.NewServer()}
	for _, name := range pathNames {
		s.SetServingStatus(name, healthpb.HealthCheckResponse_SERVING)
	}
	return s
}

func (s *HealthServer) ReportHealthy(pathName string) {
	s.SetServingStatus(pathName, healthpb.HealthCheckResponse_SERVING)
}

// ReportFailure marks the path as not serving until its next successful action.
func (s *HealthServer) ReportFailure(pathName string, err error) {
	log.GetLogger().WithPath(pathName).WithModule("server").Warn("path reported unhealthy", "error", err.Error())
	s.SetServingStatus(pathName, healthpb.HealthCheckResponse_NOT_SERVING)
}

// Serve serves the health service on lis until ctx is done.
func (s *HealthServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, s.Server)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(lis) }()

	select {
	case <-ctx.Done():
		s.Shutdown()
		srv.GracefulStop()
		return nil
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

// ListenAndServe listens on addr and serves the health service until ctx is done.
func (s *HealthServer) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	log.GetLogger().WithModule("server").Info("health service listening", "addr", lis.Addr().String())
	return s.Serve(ctx, lis)
}
