package server_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/datachainlab/ibc-relayer/server"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func TestHealthServer(t *testing.T) {
	lis := bufconn.Listen(1 << 16)
	hs := server.NewHealthServer("ibc01")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hs.Serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	status := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		res, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
		require.NoError(t, err)
		return res.Status
	}

	require.Equal(t, healthpb.HealthCheckResponse_SERVING, status(""))
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, status("ibc01"))

	hs.ReportFailure("ibc01", errors.New("query failed"))
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status("ibc01"))
	hs.ReportHealthy("ibc01")
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, status("ibc01"))

	_, err = client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "unknown"})
	require.Error(t, err)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
