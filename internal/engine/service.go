package engine

import (
	"context"
	"strings"

	"github.com/Wikid82/jailkeeper/internal/metrics"
)

// ServiceControl drives the init system unit hosting the engine.
type ServiceControl struct {
	runner  Runner
	binary  string
	service string
}

// NewServiceControl returns a controller for service using binary (systemctl by default).
func NewServiceControl(runner Runner, binary, service string) *ServiceControl {
	if binary == "" {
		binary = "systemctl"
	}
	if service == "" {
		service = "fail2ban"
	}
	return &ServiceControl{runner: runner, binary: binary, service: service}
}

// Reload asks the service manager to reload the unit.
func (s *ServiceControl) Reload(ctx context.Context) error {
	_, err := s.runner.Run(ctx, s.binary, "reload", s.service)
	metrics.ObserveEngineCommand("service-reload", err)
	return err
}

// Restart restarts the unit.
func (s *ServiceControl) Restart(ctx context.Context) error {
	_, err := s.runner.Run(ctx, s.binary, "restart", s.service)
	metrics.ObserveEngineCommand("service-restart", err)
	return err
}

// IsActive reports whether the unit is active. A non-zero exit means inactive.
func (s *ServiceControl) IsActive(ctx context.Context) bool {
	out, err := s.runner.Run(ctx, s.binary, "is-active", s.service)
	metrics.ObserveEngineCommand("service-is-active", err)
	return err == nil && strings.TrimSpace(string(out)) == "active"
}
