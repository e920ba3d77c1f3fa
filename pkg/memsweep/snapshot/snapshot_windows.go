//go:build windows

package snapshot

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/jamesainslie/memsweep/pkg/memsweep/types"
)

type memoryStatusEx struct {
	cbSize                  uint32
	dwMemoryLoad            uint32
	ullTotalPhys            uint64
	ullAvailPhys            uint64
	ullTotalPageFile        uint64
	ullAvailPageFile        uint64
	ullTotalVirtual         uint64
	ullAvailVirtual         uint64
	ullAvailExtendedVirtual uint64
}

var (
	modkernel32              = windows.NewLazySystemDLL("kernel32.dll")
	procGlobalMemoryStatusEx = modkernel32.NewProc("GlobalMemoryStatusEx")
)

func readHost() (types.MemorySnapshot, error) {
	var status memoryStatusEx
	status.cbSize = uint32(unsafe.Sizeof(status))

	if err := procGlobalMemoryStatusEx.Find(); err != nil {
		return types.MemorySnapshot{}, fmt.Errorf("GlobalMemoryStatusEx: %w", err)
	}
	ret, _, err := procGlobalMemoryStatusEx.Call(uintptr(unsafe.Pointer(&status)))
	if ret == 0 {
		return types.MemorySnapshot{}, fmt.Errorf("GlobalMemoryStatusEx: %w", err)
	}

	return types.MemorySnapshot{
		TotalPhysical:     status.ullTotalPhys,
		AvailablePhysical: status.ullAvailPhys,
		TotalPageFile:     status.ullTotalPageFile,
		AvailablePageFile: status.ullAvailPageFile,
		TotalVirtual:      status.ullTotalVirtual,
		AvailableVirtual:  status.ullAvailVirtual,
		LoadPercent:       status.dwMemoryLoad,
	}, nil
}
