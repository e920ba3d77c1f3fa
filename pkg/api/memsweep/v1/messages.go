package memsweepv1

import (
	"time"

	"github.com/jamesainslie/memsweep/pkg/memsweep/types"
)

// OptimizeRequest starts an optimization on the daemon.
type OptimizeRequest struct {
	// Areas is a comma or pipe separated list of area names. Empty uses the
	// daemon's configured areas.
	Areas string `json:"areas,omitempty"`

	// Reason is Manual, Scheduled or LowMemory. Empty means Manual.
	Reason string `json:"reason,omitempty"`
}

// GetAreas returns the requested areas.
func (r *OptimizeRequest) GetAreas() string {
	if r == nil {
		return ""
	}
	return r.Areas
}

// GetReason returns the requested reason.
func (r *OptimizeRequest) GetReason() string {
	if r == nil {
		return ""
	}
	return r.Reason
}

// ProgressEvent reports one progress notification of a run. The last event
// of a run has Done set and carries the finished run.
type ProgressEvent struct {
	RunID   string                 `json:"run_id"`
	Reason  string                 `json:"reason"`
	Counter uint32                 `json:"counter"`
	Total   uint32                 `json:"total"`
	Label   string                 `json:"label"`
	Done    bool                   `json:"done,omitempty"`
	Run     *types.OptimizationRun `json:"run,omitempty"`
}

// GetDone reports whether this is the final event of a run.
func (e *ProgressEvent) GetDone() bool {
	return e != nil && e.Done
}

// GetRun returns the finished run carried by the final event.
func (e *ProgressEvent) GetRun() *types.OptimizationRun {
	if e == nil {
		return nil
	}
	return e.Run
}

// GetStatusRequest asks for the daemon status.
type GetStatusRequest struct {
	// RecentLogs is the number of recent log lines to include.
	RecentLogs int32 `json:"recent_logs,omitempty"`

	// MinLevel drops log lines below this level (debug, info, warn, error).
	// Empty includes every level.
	MinLevel string `json:"min_level,omitempty"`
}

// GetRecentLogs returns the number of log lines requested.
func (r *GetStatusRequest) GetRecentLogs() int32 {
	if r == nil {
		return 0
	}
	return r.RecentLogs
}

// GetMinLevel returns the minimum log level requested.
func (r *GetStatusRequest) GetMinLevel() string {
	if r == nil {
		return ""
	}
	return r.MinLevel
}

// LogLine is a retained daemon log entry.
type LogLine struct {
	Time      time.Time `json:"time"`
	Level     string    `json:"level"`
	Component string    `json:"component"`
	Message   string    `json:"message"`
}

// TriggerStatus describes the automatic optimization policy.
type TriggerStatus struct {
	ScheduleEnabled  bool          `json:"schedule_enabled"`
	Interval         time.Duration `json:"interval,omitempty"`
	NextScheduled    time.Time     `json:"next_scheduled,omitzero"`
	LowMemoryEnabled bool          `json:"low_memory_enabled"`
	ThresholdPercent float64       `json:"threshold_percent,omitempty"`
	Cooldown         time.Duration `json:"cooldown,omitempty"`
}

// DaemonStatus describes the running daemon.
type DaemonStatus struct {
	Running       bool                   `json:"running"`
	PID           int                    `json:"pid"`
	UptimeSeconds int64                  `json:"uptime_seconds"`
	MemoryBytes   uint64                 `json:"memory_bytes"`
	OSVersion     string                 `json:"os_version"`
	Supported     types.MemoryArea       `json:"supported"`
	Areas         types.MemoryArea       `json:"areas"`
	Snapshot      types.MemorySnapshot   `json:"snapshot"`
	RunInProgress bool                   `json:"run_in_progress"`
	CurrentRunID  string                 `json:"current_run_id,omitempty"`
	LastRun       *types.OptimizationRun `json:"last_run,omitempty"`
	Trigger       TriggerStatus          `json:"trigger"`
	RecentLogs    []LogLine              `json:"recent_logs,omitempty"`
}

// WatchProgressRequest subscribes to progress of every run on the daemon,
// including scheduled and low-memory runs.
type WatchProgressRequest struct{}

// ShutdownRequest asks the daemon to stop.
type ShutdownRequest struct{}

// ShutdownResponse acknowledges a shutdown request.
type ShutdownResponse struct {
	Success bool `json:"success"`
}

// GetSuccess reports whether the daemon accepted the request.
func (r *ShutdownResponse) GetSuccess() bool {
	return r != nil && r.Success
}
