package reclaim_test

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/memsweep/pkg/memsweep/capability"
	"github.com/jamesainslie/memsweep/pkg/memsweep/filter"
	"github.com/jamesainslie/memsweep/pkg/memsweep/native"
	"github.com/jamesainslie/memsweep/pkg/memsweep/native/nativetest"
	"github.com/jamesainslie/memsweep/pkg/memsweep/privilege"
	"github.com/jamesainslie/memsweep/pkg/memsweep/reclaim"
	"github.com/jamesainslie/memsweep/pkg/memsweep/types"
)

type fakeEscalator struct {
	deny      map[string]bool
	requested []string
}

func (f *fakeEscalator) TryEnablePrivilege(name string) privilege.Grant {
	f.requested = append(f.requested, name)
	if f.deny[name] {
		return privilege.Grant{Name: name, Err: errors.New("not all assigned")}
	}
	return privilege.Grant{Name: name, Enabled: true}
}

func newOps(t *testing.T, version capability.OSVersion, sys *nativetest.System, esc *fakeEscalator, opts ...reclaim.Option) *reclaim.Operations {
	t.Helper()
	base := []reclaim.Option{
		reclaim.WithCapabilities(capability.New(version)),
		reclaim.WithSystem(sys),
		reclaim.WithEscalator(esc),
		reclaim.WithPointerWidth(native.Width64),
	}
	return reclaim.New(append(base, opts...)...)
}

func TestRequiredPrivilege(t *testing.T) {
	tests := []struct {
		area types.MemoryArea
		want string
	}{
		{types.AreaProcessesWorkingSet, privilege.SeDebug},
		{types.AreaSystemWorkingSet, privilege.SeIncreaseQuota},
		{types.AreaSystemFileCache, privilege.SeIncreaseQuota},
		{types.AreaModifiedPageList, privilege.SeProfSingleProcess},
		{types.AreaStandbyList, privilege.SeProfSingleProcess},
		{types.AreaStandbyListLowPriority, privilege.SeProfSingleProcess},
		{types.AreaCombinedPageList, privilege.SeProfSingleProcess},
		{types.AreaModifiedFileCache, ""},
		{types.AreaRegistryCache, ""},
	}

	for _, tt := range tests {
		t.Run(tt.area.Name(), func(t *testing.T) {
			assert.Equal(t, tt.want, reclaim.RequiredPrivilege(tt.area))
		})
	}
}

func TestUnsupportedNeverReachesPrivilegeOrNative(t *testing.T) {
	for _, area := range types.Priority {
		t.Run(area.Name(), func(t *testing.T) {
			sys := &nativetest.System{}
			esc := &fakeEscalator{}
			ops := newOps(t, capability.OSVersion{}, sys, esc)

			err := ops.Run(area)

			var unsupported *reclaim.UnsupportedError
			require.ErrorAs(t, err, &unsupported)
			assert.Equal(t, area, unsupported.Area)
			assert.ErrorIs(t, err, reclaim.ErrUnsupported)
			assert.Equal(t, reclaim.KindUnsupported, reclaim.KindOf(err))
			assert.True(t, reclaim.IsUnsupported(err))
			assert.False(t, reclaim.IsPrivilege(err))
			assert.Empty(t, esc.requested)
			assert.Zero(t, sys.NativeCalls())
		})
	}
}

func TestPrivilegeDeniedStopsBeforeNativeCall(t *testing.T) {
	sys := &nativetest.System{}
	esc := &fakeEscalator{deny: map[string]bool{privilege.SeProfSingleProcess: true}}
	ops := newOps(t, capability.Windows10, sys, esc)

	err := ops.ModifiedPageList()

	var privErr *reclaim.PrivilegeError
	require.ErrorAs(t, err, &privErr)
	assert.Equal(t, privilege.SeProfSingleProcess, privErr.Privilege)
	assert.ErrorIs(t, err, reclaim.ErrInsufficientPrivilege)
	assert.True(t, reclaim.IsPrivilege(err))
	assert.Contains(t, err.Error(), "SeProfileSingleProcessPrivilege")
	assert.Zero(t, sys.NativeCalls())
}

func TestMemoryListCommands(t *testing.T) {
	tests := []struct {
		name string
		run  func(*reclaim.Operations) error
		want uint32
	}{
		{"modified page list", (*reclaim.Operations).ModifiedPageList, 3},
		{"standby list", func(o *reclaim.Operations) error { return o.StandbyList(false) }, 4},
		{"standby list low priority", func(o *reclaim.Operations) error { return o.StandbyList(true) }, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sys := &nativetest.System{}
			ops := newOps(t, capability.Windows10, sys, &fakeEscalator{})

			require.NoError(t, tt.run(ops))
			require.Len(t, sys.Commands, 1)
			assert.Equal(t, native.ClassMemoryList, sys.Commands[0].Class)
			assert.Equal(t, tt.want, binary.LittleEndian.Uint32(sys.Commands[0].Payload))
		})
	}
}

func TestSystemWorkingSetRequiresBothSteps(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		sys := &nativetest.System{}
		esc := &fakeEscalator{}
		ops := newOps(t, capability.Windows10, sys, esc)

		require.NoError(t, ops.SystemWorkingSet())
		assert.Equal(t, []string{"SetSystemInformation", "FlushFileCache"}, sys.Calls)
		assert.Equal(t, []string{privilege.SeIncreaseQuota}, esc.requested)
		assert.Equal(t, native.SystemWorkingSetLimits(native.Width64), sys.Commands[0])
	})

	t.Run("set information fails", func(t *testing.T) {
		sys := &nativetest.System{SetErr: map[native.InfoClass]error{native.ClassFileCache: errors.New("status")}}
		ops := newOps(t, capability.Windows10, sys, &fakeEscalator{})

		err := ops.SystemWorkingSet()
		assert.Equal(t, reclaim.KindOS, reclaim.KindOf(err))
		assert.Equal(t, []string{"SetSystemInformation"}, sys.Calls)
	})

	t.Run("flush fails", func(t *testing.T) {
		sys := &nativetest.System{FlushErr: errors.New("flush refused")}
		ops := newOps(t, capability.Windows10, sys, &fakeEscalator{})

		err := ops.SystemWorkingSet()
		var osErr *reclaim.OSError
		require.ErrorAs(t, err, &osErr)
		assert.Equal(t, "SetSystemFileCacheSize", osErr.Op)
	})
}

func TestSystemFileCacheUsesFileCacheSentinel(t *testing.T) {
	sys := &nativetest.System{}
	ops := newOps(t, capability.WindowsXP, sys, &fakeEscalator{}, reclaim.WithPointerWidth(native.Width32))

	require.NoError(t, ops.SystemFileCache())
	require.Len(t, sys.Commands, 1)
	assert.Equal(t, native.SystemFileCacheLimits(native.Width32), sys.Commands[0])
	assert.Equal(t, []string{"SetSystemInformation", "FlushFileCache"}, sys.Calls)
}

func TestCombinedPageList(t *testing.T) {
	sys := &nativetest.System{}
	ops := newOps(t, capability.Windows8, sys, &fakeEscalator{})

	require.NoError(t, ops.CombinedPageList())
	assert.Equal(t, native.CombinePhysicalMemory(native.Width64), sys.Commands[0])
}

func TestRegistryCacheNeedsNoPrivilege(t *testing.T) {
	sys := &nativetest.System{}
	esc := &fakeEscalator{}
	ops := newOps(t, capability.Windows81, sys, esc)

	require.NoError(t, ops.RegistryCache())
	assert.Empty(t, esc.requested)
	assert.Equal(t, native.RegistryReconciliation(), sys.Commands[0])
}

func TestOSErrorCarriesCode(t *testing.T) {
	status := fmt.Errorf("ntstatus: %w", errnoLike(0xC0000061))
	sys := &nativetest.System{SetErr: map[native.InfoClass]error{native.ClassRegistryReconciliation: status}}
	ops := newOps(t, capability.Windows10, sys, &fakeEscalator{})

	err := ops.RegistryCache()

	var osErr *reclaim.OSError
	require.ErrorAs(t, err, &osErr)
	assert.ErrorIs(t, err, reclaim.ErrOperationFailed)
	assert.ErrorIs(t, err, status)
	assert.Contains(t, osErr.Op, "SystemRegistryReconciliationInformation")
}

func TestProcessesWorkingSet(t *testing.T) {
	procs := []native.Process{
		{PID: 10, Name: "explorer.exe"},
		{PID: 11, Name: "notepad.exe"},
		{PID: 12, Name: "csrss.exe"},
		{PID: 13, Name: "gone.exe"},
		{PID: 14, Name: "broken.exe"},
	}
	exclude, err := filter.New(filter.WithExclude("explorer"))
	require.NoError(t, err)

	t.Run("excluded processes are not trimmed", func(t *testing.T) {
		sys := &nativetest.System{Procs: procs}
		ops := newOps(t, capability.Windows10, sys, &fakeEscalator{}, reclaim.WithExcluder(exclude))

		require.NoError(t, ops.ProcessesWorkingSet())
		assert.Equal(t, []uint32{11, 12, 13, 14}, sys.Trimmed)
	})

	t.Run("only access denied and vanished processes succeed", func(t *testing.T) {
		sys := &nativetest.System{Procs: procs, EmptyErr: map[uint32]error{
			12: fs.ErrPermission,
			14: fs.ErrPermission,
			13: native.ErrProcessGone,
		}}
		ops := newOps(t, capability.Windows10, sys, &fakeEscalator{})

		assert.NoError(t, ops.ProcessesWorkingSet())
	})

	t.Run("other failures report every failure", func(t *testing.T) {
		sys := &nativetest.System{Procs: procs, EmptyErr: map[uint32]error{
			12: fs.ErrPermission,
			14: errors.New("quota exceeded"),
		}}
		ops := newOps(t, capability.Windows10, sys, &fakeEscalator{})

		err := ops.ProcessesWorkingSet()

		var partial *reclaim.PartialFailure
		require.ErrorAs(t, err, &partial)
		assert.Len(t, partial.Failures, 2)
		assert.Equal(t, "csrss: permission denied | broken: quota exceeded", err.Error())
		assert.Equal(t, reclaim.KindPartial, reclaim.KindOf(err))
	})

	t.Run("enumeration failure", func(t *testing.T) {
		sys := &nativetest.System{ProcsErr: errors.New("snapshot failed")}
		ops := newOps(t, capability.Windows10, sys, &fakeEscalator{})

		assert.Equal(t, reclaim.KindOS, reclaim.KindOf(ops.ProcessesWorkingSet()))
	})
}

func TestModifiedFileCache(t *testing.T) {
	t.Run("windows 8 issues both controls and flushes", func(t *testing.T) {
		sys := &nativetest.System{Drives: []string{`C:\`, `D:\`}}
		esc := &fakeEscalator{}
		ops := newOps(t, capability.Windows8, sys, esc)

		require.NoError(t, ops.ModifiedFileCache())
		require.Len(t, sys.Volumes, 2)
		for _, v := range sys.Volumes {
			assert.Equal(t, []uint32{native.FsctlResetWriteOrder, native.FsctlDiscardVolumeCache}, v.Controls)
			assert.True(t, v.Flushed)
			assert.True(t, v.Closed)
		}
		assert.Empty(t, esc.requested)
	})

	t.Run("windows 7 skips discard", func(t *testing.T) {
		sys := &nativetest.System{Drives: []string{`C:\`}}
		ops := newOps(t, capability.Windows7, sys, &fakeEscalator{})

		require.NoError(t, ops.ModifiedFileCache())
		assert.Equal(t, []uint32{native.FsctlResetWriteOrder}, sys.Volumes[0].Controls)
	})

	t.Run("vista only flushes", func(t *testing.T) {
		sys := &nativetest.System{Drives: []string{`C:\`}}
		ops := newOps(t, capability.WindowsVista, sys, &fakeEscalator{})

		require.NoError(t, ops.ModifiedFileCache())
		assert.Empty(t, sys.Volumes[0].Controls)
		assert.True(t, sys.Volumes[0].Flushed)
	})

	t.Run("control failures are ignored", func(t *testing.T) {
		sys := &nativetest.System{Drives: []string{`C:\`}, ControlErr: errors.New("invalid function")}
		ops := newOps(t, capability.Windows10, sys, &fakeEscalator{})

		assert.NoError(t, ops.ModifiedFileCache())
	})

	t.Run("unopenable drives are skipped", func(t *testing.T) {
		sys := &nativetest.System{
			Drives:  []string{`C:\`, `D:\`},
			OpenErr: map[string]error{`C:\`: fs.ErrPermission},
		}
		ops := newOps(t, capability.Windows10, sys, &fakeEscalator{})

		require.NoError(t, ops.ModifiedFileCache())
		require.Len(t, sys.Volumes, 1)
		assert.Equal(t, `D:\`, sys.Volumes[0].Drive)
	})

	t.Run("flush failure is reported and other drives continue", func(t *testing.T) {
		sys := &nativetest.System{
			Drives:         []string{`C:\`, `D:\`},
			FlushVolumeErr: map[string]error{`C:\`: errors.New("device busy")},
		}
		ops := newOps(t, capability.Windows10, sys, &fakeEscalator{})

		err := ops.ModifiedFileCache()

		var partial *reclaim.PartialFailure
		require.ErrorAs(t, err, &partial)
		require.Len(t, partial.Failures, 1)
		assert.Equal(t, `C:\`, partial.Failures[0].Target)
		assert.True(t, sys.Volumes[1].Flushed)
		assert.True(t, sys.Volumes[0].Closed)
	})
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "none", reclaim.KindOf(nil).String())
	assert.Equal(t, "unknown", reclaim.KindOf(errors.New("x")).String())
}

type errnoLike uint32

func (e errnoLike) Error() string { return fmt.Sprintf("status %#x", uint32(e)) }
