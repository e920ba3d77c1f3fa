// Package reclaim implements the individual memory-reclaim operations.
// Every operation checks OS support first, then enables its privilege, then
// issues its native call; a failed step stops the operation with a typed error.
package reclaim

import (
	"errors"
	"strings"

	"github.com/jamesainslie/memsweep/pkg/memsweep/capability"
	"github.com/jamesainslie/memsweep/pkg/memsweep/logging"
	"github.com/jamesainslie/memsweep/pkg/memsweep/native"
	"github.com/jamesainslie/memsweep/pkg/memsweep/privilege"
	"github.com/jamesainslie/memsweep/pkg/memsweep/types"
)

// Capabilities reports what the running OS supports.
type Capabilities interface {
	IsSupported(area types.MemoryArea) bool
	AtLeastWindows7() bool
	AtLeastWindows8() bool
}

// Excluder reports processes that must not be trimmed.
type Excluder interface {
	Excluded(name string) bool
}

var requiredPrivilege = map[types.MemoryArea]string{
	types.AreaProcessesWorkingSet:    privilege.SeDebug,
	types.AreaSystemWorkingSet:       privilege.SeIncreaseQuota,
	types.AreaSystemFileCache:        privilege.SeIncreaseQuota,
	types.AreaModifiedPageList:       privilege.SeProfSingleProcess,
	types.AreaStandbyList:            privilege.SeProfSingleProcess,
	types.AreaStandbyListLowPriority: privilege.SeProfSingleProcess,
	types.AreaCombinedPageList:       privilege.SeProfSingleProcess,
}

// RequiredPrivilege returns the token privilege area needs, or "" if none.
func RequiredPrivilege(area types.MemoryArea) string {
	return requiredPrivilege[area]
}

// Operations runs reclaim operations against one set of collaborators.
type Operations struct {
	caps      Capabilities
	escalator privilege.Escalator
	system    native.System
	exclude   Excluder
	width     native.PointerWidth
	logger    *logging.Logger
}

// Option is a functional option for configuring Operations.
type Option func(*Operations)

// WithCapabilities sets the capability source.
func WithCapabilities(caps Capabilities) Option {
	return func(o *Operations) {
		o.caps = caps
	}
}

// WithEscalator sets the privilege escalator.
func WithEscalator(e privilege.Escalator) Option {
	return func(o *Operations) {
		o.escalator = e
	}
}

// WithSystem sets the native primitives.
func WithSystem(s native.System) Option {
	return func(o *Operations) {
		o.system = s
	}
}

// WithExcluder sets the process exclusion list.
func WithExcluder(e Excluder) Option {
	return func(o *Operations) {
		o.exclude = e
	}
}

// WithPointerWidth overrides the payload layout.
func WithPointerWidth(w native.PointerWidth) Option {
	return func(o *Operations) {
		o.width = w
	}
}

// New returns Operations wired to the running host unless overridden.
func New(opts ...Option) *Operations {
	o := &Operations{
		width:  native.HostPointerWidth(),
		logger: logging.Get("reclaim"),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.caps == nil {
		o.caps = capability.Detect()
	}
	if o.escalator == nil {
		o.escalator = privilege.NewProcess()
	}
	if o.system == nil {
		o.system = native.Host()
	}
	return o
}

// Run dispatches to the operation for a single area.
func (o *Operations) Run(area types.MemoryArea) error {
	switch area {
	case types.AreaProcessesWorkingSet:
		return o.ProcessesWorkingSet()
	case types.AreaSystemWorkingSet:
		return o.SystemWorkingSet()
	case types.AreaModifiedPageList:
		return o.ModifiedPageList()
	case types.AreaStandbyList:
		return o.StandbyList(false)
	case types.AreaStandbyListLowPriority:
		return o.StandbyList(true)
	case types.AreaCombinedPageList:
		return o.CombinedPageList()
	case types.AreaModifiedFileCache:
		return o.ModifiedFileCache()
	case types.AreaSystemFileCache:
		return o.SystemFileCache()
	case types.AreaRegistryCache:
		return o.RegistryCache()
	default:
		return &UnsupportedError{Area: area}
	}
}

// gate checks support and enables the required privilege. An unsupported
// area never reaches the escalator.
func (o *Operations) gate(area types.MemoryArea) error {
	if !o.caps.IsSupported(area) {
		return &UnsupportedError{Area: area}
	}
	name := RequiredPrivilege(area)
	if name == "" {
		return nil
	}
	if grant := o.escalator.TryEnablePrivilege(name); !grant.OK() {
		return &PrivilegeError{Area: area, Privilege: name, Err: grant.Err}
	}
	return nil
}

func (o *Operations) setSystemInformation(cmd native.Command) error {
	if err := o.system.SetSystemInformation(cmd); err != nil {
		return newOSError("NtSetSystemInformation("+cmd.Class.String()+")", err)
	}
	return nil
}

func (o *Operations) flushFileCache() error {
	if err := o.system.FlushFileCache(); err != nil {
		return newOSError("SetSystemFileCacheSize", err)
	}
	return nil
}

// ProcessesWorkingSet trims the working set of every process not on the
// exclusion list. Access-denied failures alone do not fail the operation;
// once any other failure occurs, every failure is reported.
func (o *Operations) ProcessesWorkingSet() error {
	area := types.AreaProcessesWorkingSet
	if err := o.gate(area); err != nil {
		return err
	}

	procs, err := o.system.Processes()
	if err != nil {
		return newOSError("enumerate processes", err)
	}

	var failures []TargetFailure
	trimmed, excluded, denied := 0, 0, 0
	for _, p := range procs {
		if o.exclude != nil && o.exclude.Excluded(p.Name) {
			excluded++
			continue
		}
		err := o.system.EmptyWorkingSet(p.PID)
		switch {
		case err == nil:
			trimmed++
		case errors.Is(err, native.ErrProcessGone):
		default:
			if native.IsAccessDenied(err) {
				denied++
			}
			// Denied entries stay in the list so they appear alongside any real failure.
			failures = append(failures, TargetFailure{Target: processName(p.Name), Err: err})
		}
	}

	o.logger.Debug("processes working set trimmed",
		"trimmed", trimmed, "excluded", excluded, "denied", denied, "failed", len(failures)-denied)

	if len(failures) == denied {
		return nil
	}
	return &PartialFailure{Area: area, Failures: failures}
}

// SystemWorkingSet releases the system working set, then flushes the cache.
func (o *Operations) SystemWorkingSet() error {
	if err := o.gate(types.AreaSystemWorkingSet); err != nil {
		return err
	}
	if err := o.setSystemInformation(native.SystemWorkingSetLimits(o.width)); err != nil {
		return err
	}
	return o.flushFileCache()
}

// ModifiedPageList writes modified pages to disk.
func (o *Operations) ModifiedPageList() error {
	if err := o.gate(types.AreaModifiedPageList); err != nil {
		return err
	}
	return o.setSystemInformation(native.MemoryList(native.MemoryFlushModifiedList))
}

// StandbyList purges the standby list, or only its low-priority pages.
func (o *Operations) StandbyList(lowPriority bool) error {
	area, cmd := types.AreaStandbyList, native.MemoryPurgeStandbyList
	if lowPriority {
		area, cmd = types.AreaStandbyListLowPriority, native.MemoryPurgeLowPriorityStandbyList
	}
	if err := o.gate(area); err != nil {
		return err
	}
	return o.setSystemInformation(native.MemoryList(cmd))
}

// CombinedPageList asks the kernel to combine identical physical pages.
func (o *Operations) CombinedPageList() error {
	if err := o.gate(types.AreaCombinedPageList); err != nil {
		return err
	}
	return o.setSystemInformation(native.CombinePhysicalMemory(o.width))
}

// ModifiedFileCache flushes every fixed volume. Volumes that cannot be
// opened are skipped; a failed flush is recorded and the remaining volumes
// are still flushed.
func (o *Operations) ModifiedFileCache() error {
	area := types.AreaModifiedFileCache
	if err := o.gate(area); err != nil {
		return err
	}

	drives, err := o.system.FixedDrives()
	if err != nil {
		return newOSError("enumerate fixed drives", err)
	}

	var failures []TargetFailure
	for _, drive := range drives {
		if strings.TrimSpace(drive) == "" {
			continue
		}
		if err := o.flushVolume(drive); err != nil {
			failures = append(failures, TargetFailure{Target: drive, Err: err})
		}
	}
	if len(failures) > 0 {
		return &PartialFailure{Area: area, Failures: failures}
	}
	return nil
}

func (o *Operations) flushVolume(drive string) error {
	vol, err := o.system.OpenVolume(drive)
	if err != nil {
		o.logger.Debug("skipping volume", "drive", drive, "error", err)
		return nil
	}
	defer func() {
		if err := vol.Close(); err != nil {
			o.logger.Debug("closing volume", "drive", drive, "error", err)
		}
	}()

	if o.caps.AtLeastWindows7() {
		if err := vol.Control(native.FsctlResetWriteOrder, []byte{0}); err != nil {
			o.logger.Debug("reset write order failed", "drive", drive, "error", err)
		}
		if o.caps.AtLeastWindows8() {
			if err := vol.Control(native.FsctlDiscardVolumeCache, nil); err != nil {
				o.logger.Debug("discard volume cache failed", "drive", drive, "error", err)
			}
		}
	}

	if err := vol.Flush(); err != nil {
		return newOSError("FlushFileBuffers", err)
	}
	return nil
}

// SystemFileCache releases the system file cache, then flushes it.
func (o *Operations) SystemFileCache() error {
	if err := o.gate(types.AreaSystemFileCache); err != nil {
		return err
	}
	if err := o.setSystemInformation(native.SystemFileCacheLimits(o.width)); err != nil {
		return err
	}
	return o.flushFileCache()
}

// RegistryCache flushes registry hive data to disk.
func (o *Operations) RegistryCache() error {
	if err := o.gate(types.AreaRegistryCache); err != nil {
		return err
	}
	return o.setSystemInformation(native.RegistryReconciliation())
}

// processName strips a trailing ".exe" in any case.
func processName(name string) string {
	if len(name) > 4 && strings.EqualFold(name[len(name)-4:], ".exe") {
		return name[:len(name)-4]
	}
	return name
}
