package syshealth

import "time"

// Config holds sampling cadence and the warning/critical thresholds of each
// component.
type Config struct {
	Interval           time.Duration
	Timeout            time.Duration
	StalenessThreshold time.Duration

	// Load average divided by the CPU count.
	CPULoadWarningFactor  float64
	CPULoadCriticalFactor float64

	MemoryWarningPercent  float64
	MemoryCriticalPercent float64

	DBPoolWarningPercent  float64
	DBPoolCriticalPercent float64
}

func DefaultConfig() Config {
	return Config{
		Interval:              30 * time.Second,
		Timeout:               5 * time.Second,
		StalenessThreshold:    2 * time.Minute,
		CPULoadWarningFactor:  2.0,
		CPULoadCriticalFactor: 3.0,
		MemoryWarningPercent:  85.0,
		MemoryCriticalPercent: 95.0,
		DBPoolWarningPercent:  75.0,
		DBPoolCriticalPercent: 90.0,
	}
}
