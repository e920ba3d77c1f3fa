// Package capability decides which memory areas the running operating system
// can reclaim. The decision is a pure function of the OS version and is
// computed once per process.
package capability

import (
	"fmt"
	"sync"

	"github.com/jamesainslie/memsweep/pkg/memsweep/types"
)

// OSVersion identifies a Windows release by its kernel version numbers.
// A zero OSVersion means "not Windows" and supports nothing.
type OSVersion struct {
	Major   uint32 `json:"major"`
	Minor   uint32 `json:"minor"`
	Build   uint32 `json:"build"`
	Edition string `json:"edition,omitempty"`
}

// Well-known Windows versions used as capability gates.
var (
	WindowsXP    = OSVersion{Major: 5, Minor: 1}
	WindowsVista = OSVersion{Major: 6, Minor: 0}
	Windows7     = OSVersion{Major: 6, Minor: 1}
	Windows8     = OSVersion{Major: 6, Minor: 2}
	Windows81    = OSVersion{Major: 6, Minor: 3}
	Windows10    = OSVersion{Major: 10, Minor: 0}
)

// AtLeast reports whether v is the same as or newer than other.
// Build numbers are ignored.
func (v OSVersion) AtLeast(other OSVersion) bool {
	if v.Major != other.Major {
		return v.Major > other.Major
	}
	return v.Minor >= other.Minor
}

// IsZero reports whether no version was detected.
func (v OSVersion) IsZero() bool {
	return v.Major == 0 && v.Minor == 0 && v.Build == 0
}

// String returns "major.minor.build", or "unknown" for a zero version.
func (v OSVersion) String() string {
	if v.IsZero() {
		return "unknown"
	}
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Build)
}

// minimum holds the oldest version that supports each area.
var minimum = map[types.MemoryArea]OSVersion{
	types.AreaProcessesWorkingSet:    WindowsXP,
	types.AreaSystemWorkingSet:       WindowsXP,
	types.AreaModifiedFileCache:      WindowsXP,
	types.AreaSystemFileCache:        WindowsXP,
	types.AreaModifiedPageList:       WindowsVista,
	types.AreaStandbyList:            WindowsVista,
	types.AreaStandbyListLowPriority: WindowsVista,
	types.AreaCombinedPageList:       Windows8,
	types.AreaRegistryCache:          Windows81,
}

// Minimum returns the oldest Windows version supporting area.
func Minimum(area types.MemoryArea) (OSVersion, bool) {
	v, ok := minimum[area]
	return v, ok
}

// Matrix is an immutable table of per-area support for one OS version.
type Matrix struct {
	version   OSVersion
	supported types.MemoryArea
}

// New builds a matrix for the given OS version.
func New(version OSVersion) *Matrix {
	m := &Matrix{version: version}
	if version.IsZero() {
		return m
	}
	for area, floor := range minimum {
		if version.AtLeast(floor) {
			m.supported |= area
		}
	}
	return m
}

// IsSupported reports whether area can run on this OS. Unknown areas and
// combined masks are unsupported.
func (m *Matrix) IsSupported(area types.MemoryArea) bool {
	return area.IsSingle() && m.supported.Has(area)
}

// Supported returns the mask of all supported areas.
func (m *Matrix) Supported() types.MemoryArea {
	return m.supported
}

// Version returns the OS version the matrix was built for.
func (m *Matrix) Version() OSVersion {
	return m.version
}

// AtLeastWindows7 gates the best-effort write-order reset on volumes.
func (m *Matrix) AtLeastWindows7() bool {
	return !m.version.IsZero() && m.version.AtLeast(Windows7)
}

// AtLeastWindows8 gates the best-effort volume cache discard.
func (m *Matrix) AtLeastWindows8() bool {
	return !m.version.IsZero() && m.version.AtLeast(Windows8)
}

var (
	detectOnce sync.Once
	detected   *Matrix
)

// Detect returns the matrix for the running OS. Detection happens once.
func Detect() *Matrix {
	detectOnce.Do(func() {
		detected = New(detectVersion())
	})
	return detected
}
