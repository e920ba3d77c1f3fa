// Package config provides configuration management for memsweep.
package config

import "time"

// Default configuration values.
const (
	// DefaultOutput is the report format used when none is requested.
	DefaultOutput = "pretty"

	// DefaultScheduleInterval is how often the daemon optimizes when the
	// schedule is enabled.
	DefaultScheduleInterval = time.Hour

	// DefaultLowMemoryThreshold is the memory load percentage that triggers
	// a low-memory optimization.
	DefaultLowMemoryThreshold = 90

	// DefaultLowMemoryCheckInterval is how often the daemon samples memory.
	DefaultLowMemoryCheckInterval = 30 * time.Second

	// DefaultLowMemoryCooldown is the minimum time between two low-memory
	// optimizations.
	DefaultLowMemoryCooldown = 5 * time.Minute
)

// DefaultAreas are the memory areas optimized when none are requested.
var DefaultAreas = []string{
	"processes",
	"system",
	"modified",
	"standby-low",
	"combined",
	"modified-file-cache",
	"file-cache",
	"registry",
}

// DefaultExcludedProcesses are never trimmed.
var DefaultExcludedProcesses = []string{
	"memsweep",
	"memsweepd",
}
