package mcpconn

import (
	"log/slog"
	"time"

	"github.com/mcpbridge/server/logger"
)

// StartHealthChecks health-checks every Connected server each interval until
// Shutdown. Failures only change status; reconnecting is left to callers.
func (m *Manager) StartHealthChecks(interval time.Duration) {
	if interval <= 0 {
		return
	}
	go m.runHealthChecks(interval)
}

func (m *Manager) runHealthChecks(interval time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(r, "health checker crashed")
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.checkAll()
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Manager) checkAll() {
	for _, s := range m.GetAllConnectionStatuses() {
		if s.State != StateConnected {
			continue
		}
		if err := m.HealthCheck(m.ctx, s.Name); err != nil {
			slog.Debug("periodic health check failed", "server", s.Name, "error", err)
		}
	}
}
