// Package syshealth samples host load, memory and database pool pressure in
// the background and folds them into a single 0-100 score.
package syshealth

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/tahopetis/crate/pkg/logger"
)

// PoolUsage reports the share of the connection pool in use, 0-100.
type PoolUsage func() float64

// Monitor keeps the latest Snapshot. It is safe for concurrent use.
type Monitor struct {
	cfg  Config
	pool PoolUsage
	log  *slog.Logger

	mu       sync.RWMutex
	snapshot Snapshot
	failures int

	stop chan struct{}
	done chan struct{}

	getLoadAvg  func(context.Context) (*load.AvgStat, error)
	getMemStats func(context.Context) (*mem.VirtualMemoryStat, error)
	cpuCores    func() int
	now         func() time.Time
}

func NewMonitor(cfg Config, pool PoolUsage, log *slog.Logger) *Monitor {
	return &Monitor{
		cfg:         cfg,
		pool:        pool,
		log:         log.With(logger.Scope("syshealth")),
		snapshot:    Snapshot{Score: 100, Zone: ZoneSafe},
		getLoadAvg:  load.AvgWithContext,
		getMemStats: mem.VirtualMemoryWithContext,
		cpuCores:    runtime.NumCPU,
		now:         time.Now,
	}
}

// Start samples once and then every Interval until Stop.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.stop != nil {
		m.mu.Unlock()
		return
	}
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	stop, done := m.stop, m.done
	m.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()
		m.collect()
		for {
			select {
			case <-ticker.C:
				m.collect()
			case <-stop:
				return
			}
		}
	}()
	m.log.Info("system health monitor started", slog.Duration("interval", m.cfg.Interval))
}

func (m *Monitor) Stop() {
	m.mu.Lock()
	stop, done := m.stop, m.done
	m.stop = nil
	m.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Snapshot returns a copy of the latest sample, flagged stale when it is
// older than StalenessThreshold.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	s := m.snapshot
	m.mu.RUnlock()
	if !s.CollectedAt.IsZero() && m.now().Sub(s.CollectedAt) > m.cfg.StalenessThreshold {
		s.Stale = true
	}
	return s
}

func (m *Monitor) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.Timeout)
	defer cancel()

	m.mu.RLock()
	next := m.snapshot
	m.mu.RUnlock()

	ok := true
	if l, err := m.getLoadAvg(ctx); err == nil {
		next.CPULoad1m = l.Load1
	} else {
		ok = false
		m.log.Warn("load average unavailable", logger.Error(err))
	}
	if v, err := m.getMemStats(ctx); err == nil {
		next.MemoryPercent = v.UsedPercent
	} else {
		ok = false
		m.log.Warn("memory stats unavailable", logger.Error(err))
	}
	if m.pool != nil {
		next.DBPoolPercent = m.pool()
	}

	cores := float64(m.cpuCores())
	if cores <= 0 {
		cores = 1
	}
	// Weighted 50/30/20 across cpu, pool and memory.
	penalty := (penaltyFor(next.CPULoad1m/cores, m.cfg.CPULoadWarningFactor, m.cfg.CPULoadCriticalFactor)*5 +
		penaltyFor(next.DBPoolPercent, m.cfg.DBPoolWarningPercent, m.cfg.DBPoolCriticalPercent)*3 +
		penaltyFor(next.MemoryPercent, m.cfg.MemoryWarningPercent, m.cfg.MemoryCriticalPercent)*2) / 10
	next.Score = max(100-penalty, 0)
	next.CollectedAt = m.now()
	next.Stale = false

	m.mu.Lock()
	prev := m.snapshot.Zone
	next.Zone = zoneFor(next.Score)
	m.snapshot = next
	if ok {
		m.failures = 0
	} else {
		m.failures++
	}
	failures := m.failures
	m.mu.Unlock()

	if failures >= 3 {
		m.log.Error("system metrics keep failing", slog.Int("failures", failures))
	}
	if next.Zone != prev {
		m.log.Warn("system health zone changed",
			slog.String("from", string(prev)),
			slog.String("to", string(next.Zone)),
			slog.Int("score", next.Score))
	}

	healthScore.Set(float64(next.Score))
	cpuLoad.Set(next.CPULoad1m)
	memoryUtilization.Set(next.MemoryPercent)
	dbPoolUtilization.Set(next.DBPoolPercent)
}

// penaltyFor is 0, 50 or 100 depending on which threshold value reached.
func penaltyFor(value, warning, critical float64) int {
	switch {
	case value >= critical:
		return 100
	case value >= warning:
		return 50
	default:
		return 0
	}
}
