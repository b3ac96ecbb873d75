package telemetry

import (
	"context"

	"github.com/tripnest/tripnest/internal/setup/config"
	"github.com/uptrace/uptrace-go/uptrace"
)

// ConfigureExport installs the Uptrace OpenTelemetry providers so metrics and
// error spans leave the process. It returns a shutdown function that flushes
// pending signals, or a no-op when no DSN is configured.
func ConfigureExport(cfg *config.Telemetry, serviceType ServiceType, version string) func(context.Context) error {
	if cfg.UptraceDSN == "" {
		return func(context.Context) error { return nil }
	}

	uptrace.ConfigureOpentelemetry(
		uptrace.WithDSN(cfg.UptraceDSN),
		uptrace.WithServiceName("tripnest-"+serviceType.String()),
		uptrace.WithServiceVersion(version),
		uptrace.WithDeploymentEnvironment(cfg.Environment),
	)

	return uptrace.Shutdown
}
