//go:build !windows

package snapshot

import (
	"fmt"
	"math"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/jamesainslie/memsweep/pkg/memsweep/types"
)

// readHost maps gopsutil counters onto the Windows-shaped snapshot: swap
// stands in for the page file and vmalloc for the virtual address space.
func readHost() (types.MemorySnapshot, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return types.MemorySnapshot{}, fmt.Errorf("reading virtual memory: %w", err)
	}

	snap := types.MemorySnapshot{
		TotalPhysical:     vm.Total,
		AvailablePhysical: vm.Available,
		TotalVirtual:      vm.VmallocTotal,
		LoadPercent:       uint32(math.Round(vm.UsedPercent)),
	}
	if vm.VmallocTotal >= vm.VmallocUsed {
		snap.AvailableVirtual = vm.VmallocTotal - vm.VmallocUsed
	}

	if swap, err := mem.SwapMemory(); err == nil {
		snap.TotalPageFile = swap.Total
		snap.AvailablePageFile = swap.Free
	}

	return snap, nil
}
