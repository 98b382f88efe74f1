package syshealth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	healthScore = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crate_system_health_score",
		Help: "Host and connection pool health score (0-100)",
	})

	cpuLoad = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crate_system_cpu_load_1m",
		Help: "One minute load average",
	})

	memoryUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crate_system_memory_utilization_percent",
		Help: "Host memory utilization percentage",
	})

	dbPoolUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crate_system_db_pool_utilization_percent",
		Help: "PostgreSQL pool utilization percentage",
	})
)
