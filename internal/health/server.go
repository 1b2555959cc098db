package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is reported next to the overall ("") status.
const ServiceName = "pdftoxml.Conversions"

type Checker interface {
	Ping(ctx context.Context) error
}

type server struct {
	addr     string
	interval time.Duration
	checker  Checker
	logger   *slog.Logger

	srv    *grpc.Server
	health *grpchealth.Server
}

func NewServer(addr string, interval time.Duration, checker Checker, logger *slog.Logger) *server {
	if interval <= 0 {
		interval = 10 * time.Second
	}

	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoveryUnaryInterceptor(logger),
			UnaryLoggingInterceptor(logger),
		),
		grpc.ChainStreamInterceptor(StreamLoggingInterceptor(logger)),
	)

	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	return &server{
		addr:     addr,
		interval: interval,
		checker:  checker,
		logger:   logger,
		srv:      srv,
		health:   hs,
	}
}

// Run listens on addr and serves until ctx is done.
func (s *server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("grpc listen %s: %w", s.addr, err)
	}

	s.logger.Info("gRPC health service listening", slog.String("addr", s.addr))
	return s.Serve(ctx, lis)
}

func (s *server) Serve(ctx context.Context, lis net.Listener) error {
	s.check(ctx)
	go s.watch(ctx)

	go func() {
		<-ctx.Done()
		s.health.Shutdown()
		s.srv.GracefulStop()
	}()

	if err := s.srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

func (s *server) watch(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.check(ctx)
		}
	}
}

func (s *server) check(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	st := healthpb.HealthCheckResponse_SERVING
	if err := s.checker.Ping(pingCtx); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("health check failed", slog.String("error", err.Error()))
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}

	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}
