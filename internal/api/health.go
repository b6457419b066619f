package api

import (
	"OFSpectra/internal/controller/session"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// SwitchesService is the health service name that reports whether at least
// one switch is active. The empty service name reports process liveness.
const SwitchesService = "ofspectra.switches"

// Health tracks switch sessions and publishes them through the standard gRPC
// health service.
type Health struct {
	server   *health.Server
	sessions *session.Manager
}

// NewHealth creates the health server and subscribes it to session changes.
func NewHealth(sessions *session.Manager) *Health {
	h := &Health{server: health.NewServer(), sessions: sessions}
	h.server.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	h.update()
	sessions.AddListener(h)
	return h
}

// Register exposes the health service on s.
func (h *Health) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.server)
}

// Server returns the underlying health server.
func (h *Health) Server() *health.Server { return h.server }

func (h *Health) SwitchUp(dpid uint64)   { h.update() }
func (h *Health) SwitchDown(dpid uint64) { h.update() }

func (h *Health) update() {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	active := h.sessions.ActiveCount()
	if active > 0 {
		status = healthpb.HealthCheckResponse_SERVING
	}
	log.WithField("active_switches", active).Debugf("Switch health is %s", status)
	h.server.SetServingStatus(SwitchesService, status)
}

// Shutdown marks every service as not serving.
func (h *Health) Shutdown() {
	h.server.Shutdown()
}
