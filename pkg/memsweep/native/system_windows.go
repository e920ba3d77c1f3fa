//go:build windows

package native

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	modkernel32 = windows.NewLazySystemDLL("kernel32.dll")
	modpsapi    = windows.NewLazySystemDLL("psapi.dll")

	procSetSystemFileCacheSize = modkernel32.NewProc("SetSystemFileCacheSize")
	procEmptyWorkingSet        = modpsapi.NewProc("EmptyWorkingSet")
)

type hostSystem struct{}

// Host returns the System backed by the running Windows kernel.
func Host() System {
	return hostSystem{}
}

func (hostSystem) SetSystemInformation(cmd Command) error {
	var ptr unsafe.Pointer
	if len(cmd.Payload) > 0 {
		ptr = unsafe.Pointer(&cmd.Payload[0])
	}
	if err := windows.NtSetSystemInformation(int32(cmd.Class), ptr, uint32(len(cmd.Payload))); err != nil {
		return fmt.Errorf("NtSetSystemInformation(%s): %w", cmd.Class, err)
	}
	return nil
}

func (hostSystem) FlushFileCache() error {
	if err := procSetSystemFileCacheSize.Find(); err != nil {
		return fmt.Errorf("SetSystemFileCacheSize: %w", err)
	}
	flush := ^uintptr(0)
	r1, _, err := procSetSystemFileCacheSize.Call(flush, flush, 0)
	if r1 == 0 {
		return fmt.Errorf("SetSystemFileCacheSize: %w", err)
	}
	return nil
}

func (hostSystem) Processes() ([]Process, error) {
	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return nil, fmt.Errorf("CreateToolhelp32Snapshot: %w", err)
	}
	defer closeLogged("process snapshot", func() error { return windows.CloseHandle(snapshot) })

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))

	var processes []Process
	err = windows.Process32First(snapshot, &entry)
	for err == nil {
		if entry.ProcessID != 0 {
			processes = append(processes, Process{
				PID:  entry.ProcessID,
				Name: windows.UTF16ToString(entry.ExeFile[:]),
			})
		}
		err = windows.Process32Next(snapshot, &entry)
	}
	if !errors.Is(err, windows.ERROR_NO_MORE_FILES) {
		return processes, fmt.Errorf("Process32Next: %w", err)
	}
	return processes, nil
}

func (hostSystem) EmptyWorkingSet(pid uint32) error {
	handle, err := windows.OpenProcess(windows.PROCESS_SET_QUOTA|windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		if errors.Is(err, windows.ERROR_INVALID_PARAMETER) {
			return ErrProcessGone
		}
		return err
	}
	defer closeLogged(fmt.Sprintf("process %d", pid), func() error { return windows.CloseHandle(handle) })

	if err := procEmptyWorkingSet.Find(); err != nil {
		return err
	}
	if r1, _, err := procEmptyWorkingSet.Call(uintptr(handle)); r1 == 0 {
		return err
	}
	return nil
}

func (hostSystem) FixedDrives() ([]string, error) {
	n, err := windows.GetLogicalDriveStrings(0, nil)
	if err != nil {
		return nil, fmt.Errorf("GetLogicalDriveStrings: %w", err)
	}
	buf := make([]uint16, n)
	n, err = windows.GetLogicalDriveStrings(uint32(len(buf)), &buf[0])
	if err != nil {
		return nil, fmt.Errorf("GetLogicalDriveStrings: %w", err)
	}

	var drives []string
	start := 0
	for i := 0; i < int(n); i++ {
		if buf[i] != 0 {
			continue
		}
		if i > start {
			root := buf[start : i+1]
			if windows.GetDriveType(&root[0]) == windows.DRIVE_FIXED {
				drives = append(drives, windows.UTF16ToString(root))
			}
		}
		start = i + 1
	}
	return drives, nil
}

func (hostSystem) OpenVolume(drive string) (Volume, error) {
	path, err := windows.UTF16PtrFromString(VolumePath(drive))
	if err != nil {
		return nil, err
	}
	handle, err := windows.CreateFile(
		path,
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_ATTRIBUTE_NORMAL|windows.FILE_FLAG_NO_BUFFERING,
		0,
	)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", VolumePath(drive), err)
	}
	return &volume{handle: handle}, nil
}

type volume struct {
	handle windows.Handle
}

func (v *volume) Control(code uint32, in []byte) error {
	var inPtr *byte
	if len(in) > 0 {
		inPtr = &in[0]
	}
	var returned uint32
	return windows.DeviceIoControl(v.handle, code, inPtr, uint32(len(in)), nil, 0, &returned, nil)
}

func (v *volume) Flush() error {
	return windows.FlushFileBuffers(v.handle)
}

func (v *volume) Close() error {
	return windows.CloseHandle(v.handle)
}

func platformCode(err error) uint32 {
	var status windows.NTStatus
	if errors.As(err, &status) {
		return uint32(status)
	}
	return 0
}
