package httpapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"coursedesk.org/internal/obs"
)

// HealthReporter publishes readiness over the standard grpc.health.v1 service,
// so orchestrators can probe the API without speaking HTTP.
type HealthReporter struct {
	server *health.Server
	probe  ReadyProbe
}

// NewHealthReporter registers the health service on srv and returns a reporter
// whose status starts as NOT_SERVING until the first Refresh.
func NewHealthReporter(srv *grpc.Server, probe ReadyProbe) *HealthReporter {
	if probe == nil {
		probe = noopProbe{}
	}
	h := &HealthReporter{server: health.NewServer(), probe: probe}
	h.server.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	h.server.SetServingStatus(serviceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, h.server)
	return h
}

// Refresh runs the probe once and updates the published status.
func (h *HealthReporter) Refresh(ctx context.Context) bool {
	status := healthpb.HealthCheckResponse_SERVING
	err := h.probe.Check(ctx)
	if err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		obs.Warn("readiness_failed", map[string]any{"error": err.Error()})
	}
	obs.SetReady(err == nil)
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(serviceName, status)
	return err == nil
}

// Run refreshes on every tick until ctx ends, then marks everything as
// not serving so draining clients go elsewhere.
func (h *HealthReporter) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = 10 * time.Second
	}
	h.Refresh(ctx)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.server.Shutdown()
			return
		case <-ticker.C:
			h.Refresh(ctx)
		}
	}
}
