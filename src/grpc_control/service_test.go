package grpc_control

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	datasource "tw-tick-api/src/data_source"
	"tw-tick-api/src/helpers"
	"tw-tick-api/src/interfaces"
	"tw-tick-api/src/logger"
	"tw-tick-api/src/models"
	"tw-tick-api/src/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

type pingSource struct {
	name string
	err  error
}

func (p *pingSource) Name() string { return p.name }

func (p *pingSource) FetchTicks(ctx context.Context, stockID string, date time.Time) ([]*models.MTickRecord, error) {
	return nil, nil
}

func (p *pingSource) Ping(ctx context.Context) error { return p.err }

func startControl(t *testing.T, sources ...interfaces.ITickSource) (*ControlService, healthpb.HealthClient) {
	t.Helper()
	log := logger.NewNopLogger("grpc")
	cal := &utils.TradingCalendar{Fallback: true, Timezone: utils.TaipeiLocation}
	cfg := &models.MConfig{Name: "tw-tick-api", Grpc: models.MGrpcConfig{ProbeIntervalSeconds: 3600}}

	svc := NewControlService(cfg, datasource.NewMultiSourceManager(sources, cal, log), log)
	lis := bufconn.Listen(1 << 20)
	go svc.Serve(lis)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		conn.Close()
		_ = svc.Stop(context.Background())
	})
	return svc, healthpb.NewHealthClient(conn)
}

func check(t *testing.T, client healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.Status
}

func TestHealthPerSource(t *testing.T) {
	down := helpers.NewDataSourceError("backend unreachable", errors.New("connection refused"))
	_, client := startControl(t,
		&pingSource{name: "tick_api", err: down},
		&pingSource{name: "sqlite"},
	)

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, client, "tick_source.tick_api"))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, "tick_source.sqlite"))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, "tw-tick-api"))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, ""))
}

func TestHealthAllSourcesDown(t *testing.T) {
	src := &pingSource{name: "tick_api", err: errors.New("timeout")}
	svc, client := startControl(t, src)

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, client, "tw-tick-api"))

	// recovery shows up on the next probe
	src.err = nil
	svc.Probe(context.Background())
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, "tw-tick-api"))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, "tick_source.tick_api"))
}

func TestHealthUnknownService(t *testing.T) {
	_, client := startControl(t, &pingSource{name: "sqlite"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: "tick_source.redis"})
	assert.Error(t, err)
}
