package graph

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mirrorWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crate_graph_mirror_writes_total",
		Help: "Graph mirror writes attempted after a relational commit, by operation and result.",
	}, []string{"op", "result"})

	mirrorFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crate_graph_mirror_failures_total",
		Help: "Graph mirror writes that failed and were handed to the sync queue.",
	}, []string{"op"})

	syncJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crate_graph_sync_jobs_total",
		Help: "Graph sync queue jobs processed, by kind and result.",
	}, []string{"kind", "result"})

	reconcileRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crate_graph_reconcile_runs_total",
		Help: "Full graph rebuilds, by result.",
	}, []string{"result"})
)
