package daemon

import (
	"net"
	"os"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	memsweepv1 "github.com/jamesainslie/memsweep/pkg/api/memsweep/v1"
	"github.com/jamesainslie/memsweep/pkg/memsweep/logging"
)

// Config holds daemon configuration.
type Config struct {
	// SocketPath is the unix socket path, or the named pipe path on Windows.
	SocketPath string
	DataDir    string
}

// Server is the memsweepd gRPC server.
type Server struct {
	cfg      Config
	svc      *Service
	grpc     *grpc.Server
	health   *health.Server
	listener net.Listener
}

// NewServer creates a new daemon server serving svc.
func NewServer(cfg Config, svc *Service) (*Server, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}

	listener, err := listen(cfg.SocketPath)
	if err != nil {
		return nil, err
	}

	srv := &Server{
		cfg:      cfg,
		svc:      svc,
		grpc:     grpc.NewServer(),
		health:   health.NewServer(),
		listener: listener,
	}

	memsweepv1.RegisterMemSweepDaemonServer(srv.grpc, svc)
	healthpb.RegisterHealthServer(srv.grpc, srv.health)
	srv.health.SetServingStatus(memsweepv1.ServiceName, healthpb.HealthCheckResponse_SERVING)

	return srv, nil
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve starts the gRPC server. Blocks until stopped.
func (s *Server) Serve() error {
	logging.Get("daemon").Info("serving", "address", s.cfg.SocketPath)
	return s.grpc.Serve(s.listener)
}

// Close stops the server and cleans up.
func (s *Server) Close() error {
	s.health.Shutdown()
	s.svc.Close()
	s.grpc.GracefulStop()
	return cleanupListener(s.cfg.SocketPath)
}
