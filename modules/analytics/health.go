package analytics

import (
	"context"
	"time"

	"github.com/GoCodeAlone/modular"
)

// HealthCheck implements the HealthProvider interface. The analytics client
// never blocks readiness, so its report is always optional.
func (m *Module) HealthCheck(ctx context.Context) ([]modular.HealthReport, error) {
	checkTime := time.Now()
	report := modular.HealthReport{
		Module:        m.name,
		Component:     "client",
		CheckedAt:     checkTime,
		ObservedSince: checkTime,
		Optional:      true,
		Details:       make(map[string]any),
	}

	if m.client == nil {
		report.Status = modular.StatusUnhealthy
		report.Message = "analytics client not initialized"
		return []modular.HealthReport{report}, nil
	}

	state := m.client.State()
	registered, failed := m.client.Registrations()
	report.Details["mode"] = string(m.config.Mode())
	report.Details["load_attempts"] = m.client.LoadAttempts()
	report.Details["extensions_registered"] = registered
	report.Details["extensions_failed"] = failed

	switch {
	case state.Loading:
		report.Status = modular.StatusDegraded
		report.Message = "analytics loading"
	case state.Error:
		report.Status = modular.StatusUnhealthy
		report.Message = "analytics failed to load"
		report.Details["error"] = state.LastError
	case state.Ready:
		report.Status = modular.StatusHealthy
		report.Message = "analytics ready"
	default:
		report.Status = modular.StatusHealthy
		report.Message = "analytics awaiting initialize"
	}

	return []modular.HealthReport{report}, nil
}
