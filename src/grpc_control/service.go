package grpc_control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	datasource "tw-tick-api/src/data_source"
	"tw-tick-api/src/interfaces"
	"tw-tick-api/src/logger"
	"tw-tick-api/src/models"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const (
	SourceServicePrefix = "tick_source."
	probeTimeout        = 5 * time.Second
)

// Compile-time check
var _ interfaces.IServer = (*ControlService)(nil)

// ControlService exposes grpc.health.v1 for the whole API and for each tick
// source. Source health comes from periodic pings, so a probe tool sees the
// same fallback picture the request path does.
type ControlService struct {
	Config     *models.MConfig
	DataSource *datasource.MultiSourceManager
	Logger     *logger.Logger
	Interval   time.Duration

	server   *grpc.Server
	health   *health.Server
	quit     chan struct{}
	stopOnce sync.Once
}

// NewControlService creates a new instance of ControlService
func NewControlService(cfg *models.MConfig, ds *datasource.MultiSourceManager, log *logger.Logger) *ControlService {
	interval := time.Duration(cfg.Grpc.ProbeIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}

	s := &ControlService{
		Config:     cfg,
		DataSource: ds,
		Logger:     log,
		Interval:   interval,
		server:     grpc.NewServer(),
		health:     health.NewServer(),
		quit:       make(chan struct{}),
	}
	healthpb.RegisterHealthServer(s.server, s.health)
	reflection.Register(s.server)
	return s
}

// -----------------------------------------------------------------------------

// ServiceName is the health key of the API as a whole.
func (s *ControlService) ServiceName() string {
	return s.Config.Name
}

// -----------------------------------------------------------------------------

// Probe pings every source once and publishes the result. The API reports
// SERVING while at least one source answers.
func (s *ControlService) Probe(ctx context.Context) {
	sources := s.DataSource.GetAllSources()
	healthy := 0

	for _, src := range sources {
		pctx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := datasource.PingSource(pctx, src)
		cancel()

		status := healthpb.HealthCheckResponse_SERVING
		if err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			s.Logger.Warning("gRPC: source %s failed its probe: %v", src.Name(), err)
		} else {
			healthy++
		}
		s.health.SetServingStatus(SourceServicePrefix+src.Name(), status)
	}

	overall := healthpb.HealthCheckResponse_NOT_SERVING
	if healthy > 0 {
		overall = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", overall)
	s.health.SetServingStatus(s.ServiceName(), overall)
	s.Logger.Debug("gRPC: probe finished, %d/%d sources healthy", healthy, len(sources))
}

// -----------------------------------------------------------------------------

func (s *ControlService) probeLoop() {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			s.Probe(context.Background())
		}
	}
}

// -----------------------------------------------------------------------------

// Serve probes once, then answers on lis until Stop.
func (s *ControlService) Serve(lis net.Listener) error {
	s.Probe(context.Background())
	go s.probeLoop()

	if err := s.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------

func (s *ControlService) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Grpc.Host, s.Config.Grpc.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen for gRPC on %s: %w", addr, err)
	}

	s.Logger.Info("Starting gRPC Control Server on %s", addr)
	return s.Serve(lis)
}

// -----------------------------------------------------------------------------

// Stop marks everything NOT_SERVING and drains in-flight calls, falling back
// to a hard stop when ctx ends first.
func (s *ControlService) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		close(s.quit)
		s.health.Shutdown()

		done := make(chan struct{})
		go func() {
			s.server.GracefulStop()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			s.server.Stop()
		}
	})
	return nil
}
