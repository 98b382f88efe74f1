package health

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"

	"github.com/tahopetis/crate/pkg/syshealth"
)

var Module = fx.Module("health",
	fx.Provide(
		NewSystemMonitor,
		NewHandler,
		NewMetricsHandler,
	),
	fx.Invoke(RegisterRoutes),
)

// NewSystemMonitor samples host and pool pressure for /debug and /metrics
// while the app runs.
func NewSystemMonitor(lc fx.Lifecycle, pool *pgxpool.Pool, log *slog.Logger) *syshealth.Monitor {
	m := syshealth.NewMonitor(syshealth.DefaultConfig(), poolUsage(pool), log)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			m.Start()
			return nil
		},
		OnStop: func(context.Context) error {
			m.Stop()
			return nil
		},
	})
	return m
}

func poolUsage(pool *pgxpool.Pool) syshealth.PoolUsage {
	return func() float64 {
		stat := pool.Stat()
		if stat.MaxConns() <= 0 {
			return 0
		}
		return float64(stat.AcquiredConns()) / float64(stat.MaxConns()) * 100
	}
}
