package server

import (
	"context"
	"net"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the name the dispatch service reports under.
const HealthService = "dispatch"

// RunGRPC serves the standard gRPC health service on addr until ctx is done.
// The service turns NOT_SERVING before the server stops.
func RunGRPC(ctx context.Context, addr string, log logrus.FieldLogger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := grpc.NewServer()
	hs := health.NewServer()
	hs.SetServingStatus(HealthService, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	go func() {
		<-ctx.Done()
		hs.Shutdown()
		srv.GracefulStop()
	}()
	log.WithField("addr", addr).Info("grpc health listening")
	return srv.Serve(lis)
}
