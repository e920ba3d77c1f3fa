// Package types provides the core data types for the memsweep memory optimizer.
// It includes the memory area flags an optimization can target, the reasons an
// optimization is started, per-area outcomes, and point-in-time memory snapshots.
package types

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// MemoryArea is a bit flag identifying one memory-reclaim target.
// Values can be combined with bitwise OR to request several areas at once.
type MemoryArea uint32

// Memory areas, in no particular order. Execution order is defined by Priority.
const (
	AreaNone                   MemoryArea = 0
	AreaProcessesWorkingSet    MemoryArea = 1 << 0
	AreaSystemWorkingSet       MemoryArea = 1 << 1
	AreaModifiedPageList       MemoryArea = 1 << 2
	AreaStandbyList            MemoryArea = 1 << 3
	AreaStandbyListLowPriority MemoryArea = 1 << 4
	AreaCombinedPageList       MemoryArea = 1 << 5
	AreaModifiedFileCache      MemoryArea = 1 << 6
	AreaSystemFileCache        MemoryArea = 1 << 7
	AreaRegistryCache          MemoryArea = 1 << 8

	// AreaAll selects every area. The standby pair collapses to the
	// low-priority variant when expanded.
	AreaAll = AreaProcessesWorkingSet | AreaSystemWorkingSet | AreaModifiedPageList |
		AreaStandbyList | AreaStandbyListLowPriority | AreaCombinedPageList |
		AreaModifiedFileCache | AreaSystemFileCache | AreaRegistryCache
)

// Priority lists the single-bit areas in the order an optimization visits them.
// The two standby variants share one slot; see Areas.
var Priority = []MemoryArea{
	AreaProcessesWorkingSet,
	AreaSystemWorkingSet,
	AreaModifiedPageList,
	AreaStandbyList,
	AreaStandbyListLowPriority,
	AreaCombinedPageList,
	AreaModifiedFileCache,
	AreaSystemFileCache,
	AreaRegistryCache,
}

var areaNames = map[MemoryArea]string{
	AreaProcessesWorkingSet:    "processes",
	AreaSystemWorkingSet:       "system",
	AreaModifiedPageList:       "modified",
	AreaStandbyList:            "standby",
	AreaStandbyListLowPriority: "standby-low",
	AreaCombinedPageList:       "combined",
	AreaModifiedFileCache:      "modified-file-cache",
	AreaSystemFileCache:        "file-cache",
	AreaRegistryCache:          "registry",
}

var areaLabels = map[MemoryArea]string{
	AreaProcessesWorkingSet:    "Processes Working Set",
	AreaSystemWorkingSet:       "System Working Set",
	AreaModifiedPageList:       "Modified Page List",
	AreaStandbyList:            "Standby List",
	AreaStandbyListLowPriority: "Standby List (Low Priority)",
	AreaCombinedPageList:       "Combined Page List",
	AreaModifiedFileCache:      "Modified File Cache",
	AreaSystemFileCache:        "System File Cache",
	AreaRegistryCache:          "Registry Cache",
}

// ErrInvalidArea indicates that an area name could not be parsed.
var ErrInvalidArea = errors.New("invalid memory area")

// Has reports whether every bit of other is set in a.
func (a MemoryArea) Has(other MemoryArea) bool {
	return other != AreaNone && a&other == other
}

// IsSingle reports whether exactly one area bit is set.
func (a MemoryArea) IsSingle() bool {
	return a != AreaNone && a&(a-1) == 0
}

// Name returns the short, config-friendly name of a single area.
func (a MemoryArea) Name() string {
	if name, ok := areaNames[a]; ok {
		return name
	}
	return fmt.Sprintf("area(%#x)", uint32(a))
}

// Label returns the human-readable label used in logs and progress updates.
func (a MemoryArea) Label() string {
	if label, ok := areaLabels[a]; ok {
		return label
	}
	return a.Name()
}

// String renders the set names in priority order joined by "|".
func (a MemoryArea) String() string {
	if a == AreaNone {
		return "none"
	}
	var parts []string
	for _, area := range Priority {
		if a.Has(area) {
			parts = append(parts, area.Name())
		}
	}
	if rest := a &^ AreaAll; rest != 0 {
		parts = append(parts, fmt.Sprintf("%#x", uint32(rest)))
	}
	return strings.Join(parts, "|")
}

// Areas expands the mask into the single areas an optimization runs, in
// priority order. When both standby variants are set only the low-priority
// variant is returned.
func (a MemoryArea) Areas() []MemoryArea {
	var out []MemoryArea
	for _, area := range Priority {
		if !a.Has(area) {
			continue
		}
		if area == AreaStandbyList && a.Has(AreaStandbyListLowPriority) {
			continue
		}
		out = append(out, area)
	}
	return out
}

// ParseArea parses a single area name. Labels and names are both accepted,
// case-insensitively.
func ParseArea(s string) (MemoryArea, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	switch key {
	case "", "none":
		return AreaNone, nil
	case "all":
		return AreaAll, nil
	}
	for area, name := range areaNames {
		if key == name || key == strings.ToLower(areaLabels[area]) {
			return area, nil
		}
	}
	return AreaNone, fmt.Errorf("%w: %q", ErrInvalidArea, s)
}

// ParseAreas parses a comma or pipe separated list of area names into a mask.
func ParseAreas(s string) (MemoryArea, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '|'
	})
	return ParseAreaList(fields)
}

// ParseAreaList parses a list of area names into a mask.
func ParseAreaList(names []string) (MemoryArea, error) {
	var mask MemoryArea
	for _, name := range names {
		area, err := ParseArea(name)
		if err != nil {
			return AreaNone, err
		}
		mask |= area
	}
	return mask, nil
}

// MarshalText implements encoding.TextMarshaler.
func (a MemoryArea) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *MemoryArea) UnmarshalText(text []byte) error {
	parsed, err := ParseAreas(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// OptimizationReason records why an optimization was started.
// It is carried for logging only and never changes behavior.
type OptimizationReason int

// Optimization reasons.
const (
	ReasonManual OptimizationReason = iota
	ReasonScheduled
	ReasonLowMemory
)

// ErrInvalidReason indicates that a reason string could not be parsed.
var ErrInvalidReason = errors.New("invalid optimization reason")

// String returns the string representation of the reason.
func (r OptimizationReason) String() string {
	switch r {
	case ReasonManual:
		return "Manual"
	case ReasonScheduled:
		return "Scheduled"
	case ReasonLowMemory:
		return "LowMemory"
	default:
		return "Unknown"
	}
}

// ParseReason parses a reason string.
func ParseReason(s string) (OptimizationReason, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "manual":
		return ReasonManual, nil
	case "scheduled", "schedule":
		return ReasonScheduled, nil
	case "lowmemory", "low-memory", "low_memory":
		return ReasonLowMemory, nil
	default:
		return ReasonManual, fmt.Errorf("%w: %q", ErrInvalidReason, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r OptimizationReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *OptimizationReason) UnmarshalText(text []byte) error {
	parsed, err := ParseReason(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// OperationOutcome is the result of attempting one memory area.
type OperationOutcome struct {
	// Area is the single area that was attempted.
	Area MemoryArea `json:"area"`

	// Elapsed is the time spent in the operation, including failed attempts.
	Elapsed time.Duration `json:"elapsed"`

	// Success is true when the operation completed without error.
	Success bool `json:"success"`

	// Cause is the failure message, empty on success.
	Cause string `json:"cause,omitempty"`

	// Kind classifies the failure (unsupported, privilege, os, partial,
	// unknown), empty on success.
	Kind string `json:"kind,omitempty"`

	// Err is the typed failure, kept for errors.Is/As checks.
	Err error `json:"-" yaml:"-"`
}

// OptimizationRun aggregates the outcomes of one Optimize call.
type OptimizationRun struct {
	// ID uniquely identifies the run.
	ID string `json:"id"`

	// Reason is why the run was started.
	Reason OptimizationReason `json:"reason"`

	// Areas is the requested mask.
	Areas MemoryArea `json:"areas"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the run completed.
	FinishedAt time.Time `json:"finished_at"`

	// Outcomes holds one entry per attempted area, in execution order.
	Outcomes []OperationOutcome `json:"outcomes"`

	// Total is the summed elapsed time of successful operations only.
	Total time.Duration `json:"total"`

	// InfoLog is the flushed success log, empty when nothing succeeded.
	InfoLog string `json:"info_log,omitempty"`

	// ErrorLog is the flushed failure log, empty when nothing failed.
	ErrorLog string `json:"error_log,omitempty"`
}

// Succeeded returns the number of successful outcomes.
func (r *OptimizationRun) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Success {
			n++
		}
	}
	return n
}

// Failed returns the number of failed outcomes.
func (r *OptimizationRun) Failed() int {
	return len(r.Outcomes) - r.Succeeded()
}

// Outcome returns the outcome recorded for area, if any.
func (r *OptimizationRun) Outcome(area MemoryArea) (OperationOutcome, bool) {
	for _, o := range r.Outcomes {
		if o.Area == area {
			return o, true
		}
	}
	return OperationOutcome{}, false
}

// MemorySnapshot is a point-in-time view of system memory counters.
type MemorySnapshot struct {
	TotalPhysical     uint64    `json:"total_physical"`
	AvailablePhysical uint64    `json:"available_physical"`
	TotalPageFile     uint64    `json:"total_page_file"`
	AvailablePageFile uint64    `json:"available_page_file"`
	TotalVirtual      uint64    `json:"total_virtual"`
	AvailableVirtual  uint64    `json:"available_virtual"`
	LoadPercent       uint32    `json:"load_percent"`
	CapturedAt        time.Time `json:"captured_at"`
}

// UsedPhysical returns the physical memory in use.
func (s MemorySnapshot) UsedPhysical() uint64 {
	if s.AvailablePhysical > s.TotalPhysical {
		return 0
	}
	return s.TotalPhysical - s.AvailablePhysical
}

// UsedPercent returns the physical memory in use as a percentage.
// It prefers the OS-reported load and falls back to a computed value.
func (s MemorySnapshot) UsedPercent() float64 {
	if s.LoadPercent > 0 {
		return float64(s.LoadPercent)
	}
	if s.TotalPhysical == 0 {
		return 0
	}
	return float64(s.UsedPhysical()) / float64(s.TotalPhysical) * 100
}

// IsZero reports whether the snapshot has never been populated.
func (s MemorySnapshot) IsZero() bool {
	return s.TotalPhysical == 0 && s.CapturedAt.IsZero()
}

// FormatSize converts a size in bytes to a human-readable string.
// It uses binary (IEC) units (KiB, MiB, GiB, TiB).
func FormatSize(bytes uint64) string {
	return humanize.IBytes(bytes)
}

// FormatSeconds renders a duration with one decimal place, as used in run logs.
func FormatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.1f", d.Seconds())
}
