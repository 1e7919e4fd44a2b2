// Package grpcapi serves the standard gRPC health service and reflection so
// orchestrators can probe the process. Health follows the database: the
// service reports NOT_SERVING while the store cannot be pinged.
package grpcapi

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported alongside "".
const ServiceName = "campusbooks.Inventory"

const defaultProbeInterval = 15 * time.Second

// Pinger is satisfied by *storage.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Server struct {
	grpc     *grpc.Server
	health   *health.Server
	db       Pinger
	log      zerolog.Logger
	interval time.Duration
}

func New(db Pinger, log zerolog.Logger) *Server {
	log = log.With().Str("component", "grpcapi").Logger()
	s := &Server{
		grpc:     grpc.NewServer(grpc.ChainUnaryInterceptor(logUnary(log))),
		health:   health.NewServer(),
		db:       db,
		log:      log,
		interval: defaultProbeInterval,
	}
	grpc_health_v1.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)
	return s
}

// WithProbeInterval sets how often the database is pinged.
func (s *Server) WithProbeInterval(d time.Duration) *Server {
	if d > 0 {
		s.interval = d
	}
	return s
}

// Serve blocks until ctx is cancelled or lis fails. On cancellation the
// health status flips to NOT_SERVING before in-flight calls drain.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.probe(ctx)
	go s.watch(ctx)

	errc := make(chan error, 1)
	go func() { errc <- s.grpc.Serve(lis) }()
	s.log.Info().Str("addr", lis.Addr().String()).Msg("gRPC listening")

	select {
	case err := <-errc:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.log.Warn().Msg("gRPC shutting down")
		s.health.Shutdown()
		s.grpc.GracefulStop()
		return nil
	}
}

func (s *Server) watch(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.probe(ctx)
		}
	}
}

func (s *Server) probe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	status := grpc_health_v1.HealthCheckResponse_SERVING
	if err := s.db.PingContext(ctx); err != nil {
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			return
		}
		s.log.Error().Err(err).Msg("database ping failed")
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

func logUnary(log zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		ev := log.Debug()
		if err != nil {
			ev = log.Warn().Err(err)
		}
		ev.Str("method", info.FullMethod).Dur("duration", time.Since(start)).Msg("grpc call")
		return resp, err
	}
}
