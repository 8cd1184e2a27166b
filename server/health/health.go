// Package health reports receiver readiness over the standard gRPC health
// checking protocol.
package health

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the service reported to health checkers. It turns SERVING
// once the cipher self-test has passed.
const ServiceName = "telecipher.Receiver"

// Reporter holds the health status of a receiver.
type Reporter struct {
	server *health.Server
}

// NewReporter returns a Reporter whose service starts as NOT_SERVING.
func NewReporter() *Reporter {
	r := &Reporter{server: health.NewServer()}
	r.SetNotServing()
	return r
}

// Register exposes the health service on srv.
func (r *Reporter) Register(srv *grpc.Server) {
	grpc_health_v1.RegisterHealthServer(srv, r.server)
}

func (r *Reporter) SetServing() {
	r.server.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
}

func (r *Reporter) SetNotServing() {
	r.server.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
}

// Shutdown marks every service NOT_SERVING and ignores later updates.
func (r *Reporter) Shutdown() {
	r.server.Shutdown()
}
