// Package output provides formatters for memsweep reports: the result of an
// optimization run bracketed by memory snapshots, or a status report listing
// the memory areas the host can reclaim.
//
// The package uses a registry pattern to allow registration of multiple
// formatter implementations that can be selected at runtime.
//
// Basic usage:
//
//	formatter, err := output.Get("pretty")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	var buf bytes.Buffer
//	if err := formatter.Format(&buf, report); err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Print(buf.String())
package output

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/jamesainslie/memsweep/pkg/memsweep/capability"
	"github.com/jamesainslie/memsweep/pkg/memsweep/reclaim"
	"github.com/jamesainslie/memsweep/pkg/memsweep/types"
)

// AreaInfo describes one memory area on the running host.
type AreaInfo struct {
	// Name is the config-friendly area name (e.g., "standby-low").
	Name string `json:"name" yaml:"name"`

	// Label is the human-readable area label.
	Label string `json:"label" yaml:"label"`

	// Supported reports whether the host OS version can reclaim the area.
	Supported bool `json:"supported" yaml:"supported"`

	// Privilege is the token privilege the area needs, empty if none.
	Privilege string `json:"privilege,omitempty" yaml:"privilege,omitempty"`

	// Minimum is the lowest OS version supporting the area.
	Minimum string `json:"minimum" yaml:"minimum"`
}

// Capabilities is the subset of capability.Matrix used to describe areas.
type Capabilities interface {
	IsSupported(area types.MemoryArea) bool
}

// DescribeAreas lists every area in priority order with its support on caps.
func DescribeAreas(caps Capabilities) []AreaInfo {
	infos := make([]AreaInfo, 0, len(types.Priority))
	for _, area := range types.Priority {
		info := AreaInfo{
			Name:      area.Name(),
			Label:     area.Label(),
			Supported: caps != nil && caps.IsSupported(area),
			Privilege: reclaim.RequiredPrivilege(area),
		}
		if v, ok := capability.Minimum(area); ok {
			info.Minimum = fmt.Sprintf("%d.%d", v.Major, v.Minor)
		}
		infos = append(infos, info)
	}
	return infos
}

// Report contains the complete data for formatting.
type Report struct {
	// Run is the optimization result, nil for a status-only report.
	Run *types.OptimizationRun `json:"run,omitempty" yaml:"run,omitempty"`

	// Before is the memory snapshot taken before the run (or the current
	// snapshot for a status report).
	Before types.MemorySnapshot `json:"before" yaml:"before"`

	// After is the memory snapshot taken after the run.
	After types.MemorySnapshot `json:"after" yaml:"after"`

	// OSVersion describes the host operating system.
	OSVersion string `json:"os_version" yaml:"os_version"`

	// Areas is the host's capability table.
	Areas []AreaInfo `json:"areas,omitempty" yaml:"areas,omitempty"`

	// DaemonUp indicates if memsweepd is running.
	DaemonUp bool `json:"daemon_up" yaml:"daemon_up"`

	// Warnings contains any warning messages to surface.
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// HasRun reports whether the report carries an optimization run.
func (r *Report) HasRun() bool {
	return r.Run != nil
}

// Freed returns the growth in available physical memory between Before and
// After. It is negative when memory was consumed meanwhile and zero when
// either snapshot is missing.
func (r *Report) Freed() int64 {
	if r.Before.IsZero() || r.After.IsZero() {
		return 0
	}
	return int64(r.After.AvailablePhysical) - int64(r.Before.AvailablePhysical)
}

// Current returns the most recent snapshot in the report.
func (r *Report) Current() types.MemorySnapshot {
	if !r.After.IsZero() {
		return r.After
	}
	return r.Before
}

// Formatter is the interface that all output formatters must implement.
type Formatter interface {
	// Format writes the formatted output to the buffer.
	// It returns an error if formatting fails.
	Format(w *bytes.Buffer, r *Report) error
}

// FormatterFactory is a function that creates a new Formatter instance.
type FormatterFactory func() Formatter

// Registry manages formatter registration and lookup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates a new formatter registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]FormatterFactory),
	}
}

// Register adds a formatter factory to the registry.
// It will replace any existing formatter with the same name.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter instance by name.
// It returns an error if the formatter is not found.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown formatter: %s", name)
	}
	return factory(), nil
}

// Available returns a sorted list of all registered formatter names.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global formatter registry.
var DefaultRegistry = NewRegistry()

// Register adds a formatter factory to the default registry.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a new formatter instance from the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available returns all formatter names from the default registry.
func Available() []string {
	return DefaultRegistry.Available()
}

// outcomeStatus renders an outcome as a one-word status.
func outcomeStatus(o types.OperationOutcome) string {
	switch {
	case o.Success:
		return "ok"
	case o.Kind == reclaim.KindUnsupported.String():
		return "unsupported"
	case o.Kind == reclaim.KindPrivilege.String():
		return "denied"
	default:
		return "failed"
	}
}

// rows returns the tabular view shared by the plain and table formatters:
// one row per outcome for a run, or one row per area for a status report.
func rows(r *Report) (header []string, body [][]string) {
	if r.HasRun() {
		header = []string{"AREA", "STATUS", "SECONDS", "DETAIL"}
		for _, o := range r.Run.Outcomes {
			body = append(body, []string{
				o.Area.Name(),
				outcomeStatus(o),
				types.FormatSeconds(o.Elapsed),
				o.Cause,
			})
		}
		return header, body
	}

	header = []string{"AREA", "SUPPORTED", "PRIVILEGE", "MINIMUM"}
	for _, a := range r.Areas {
		supported := "no"
		if a.Supported {
			supported = "yes"
		}
		privilege := a.Privilege
		if privilege == "" {
			privilege = "-"
		}
		body = append(body, []string{a.Name, supported, privilege, a.Minimum})
	}
	return header, body
}
