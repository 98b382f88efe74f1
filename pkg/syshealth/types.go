package syshealth

import "time"

// Zone buckets the health score.
type Zone string

const (
	// ZoneCritical covers scores 0-33.
	ZoneCritical Zone = "critical"
	// ZoneWarning covers scores 34-66.
	ZoneWarning Zone = "warning"
	// ZoneSafe covers scores 67-100.
	ZoneSafe Zone = "safe"
)

func zoneFor(score int) Zone {
	switch {
	case score <= 33:
		return ZoneCritical
	case score <= 66:
		return ZoneWarning
	default:
		return ZoneSafe
	}
}

// Snapshot is the latest sample of host and connection pool pressure.
type Snapshot struct {
	Score         int       `json:"score"`
	Zone          Zone      `json:"zone"`
	CPULoad1m     float64   `json:"cpu_load_1m"`
	MemoryPercent float64   `json:"memory_percent"`
	DBPoolPercent float64   `json:"db_pool_percent"`
	CollectedAt   time.Time `json:"collected_at"`
	Stale         bool      `json:"stale"`
}
