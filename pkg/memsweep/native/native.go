// Package native encodes and issues the operating system calls behind each
// reclaim operation. Payload encoding is portable and tested everywhere;
// the calls themselves only exist on Windows.
package native

import (
	"encoding/binary"
	"errors"
	"io/fs"
	"math"
	"strconv"
	"syscall"
	"unsafe"
)

// InfoClass is a SYSTEM_INFORMATION_CLASS value accepted by NtSetSystemInformation.
type InfoClass int32

// Information classes used by the reclaim operations.
const (
	ClassFileCache              InfoClass = 21
	ClassMemoryList             InfoClass = 80
	ClassCombinePhysicalMemory  InfoClass = 130
	ClassRegistryReconciliation InfoClass = 155
)

// String returns the class name as documented by the Windows DDK.
func (c InfoClass) String() string {
	switch c {
	case ClassFileCache:
		return "SystemFileCacheInformation"
	case ClassMemoryList:
		return "SystemMemoryListInformation"
	case ClassCombinePhysicalMemory:
		return "SystemCombinePhysicalMemoryInformation"
	case ClassRegistryReconciliation:
		return "SystemRegistryReconciliationInformation"
	default:
		return "SystemInformationClass(" + strconv.Itoa(int(c)) + ")"
	}
}

// MemoryListCommand is a SYSTEM_MEMORY_LIST_COMMAND value.
type MemoryListCommand uint32

// Memory list commands.
const (
	MemoryFlushModifiedList           MemoryListCommand = 3
	MemoryPurgeStandbyList            MemoryListCommand = 4
	MemoryPurgeLowPriorityStandbyList MemoryListCommand = 5
)

// Volume control codes.
const (
	FsctlDiscardVolumeCache uint32 = 0x00090054
	FsctlResetWriteOrder    uint32 = 0x000900F8
)

// PointerWidth selects the payload layout for a host architecture.
type PointerWidth int

// Supported pointer widths.
const (
	Width32 PointerWidth = 32
	Width64 PointerWidth = 64
)

// HostPointerWidth returns the pointer width of the running binary.
func HostPointerWidth() PointerWidth {
	if unsafe.Sizeof(uintptr(0)) == 8 {
		return Width64
	}
	return Width32
}

func (w PointerWidth) size() int {
	if w == Width32 {
		return 4
	}
	return 8
}

// Command is an encoded NtSetSystemInformation request. Payload is owned by
// the command and only read during the call.
type Command struct {
	Class   InfoClass
	Payload []byte
}

// MemoryList builds a memory list command. The payload is a 32-bit integer.
func MemoryList(cmd MemoryListCommand) Command {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(cmd))
	return Command{Class: ClassMemoryList, Payload: buf}
}

// fileCacheInformation lays out SYSTEM_FILECACHE_INFORMATION with the
// minimum and maximum working set fields set to sentinel.
//
//	SIZE_T CurrentSize; SIZE_T PeakSize; ULONG PageFaultCount;
//	SIZE_T MinimumWorkingSet; SIZE_T MaximumWorkingSet;
//	SIZE_T CurrentSizeIncludingTransitionInPages;
//	SIZE_T PeakSizeIncludingTransitionInPages;
//	ULONG TransitionRePurposeCount; ULONG Flags;
func fileCacheInformation(w PointerWidth, sentinel uint64) []byte {
	ptr := w.size()
	// ULONG PageFaultCount is padded to pointer alignment.
	minOffset := 3 * ptr
	size := minOffset + 4*ptr + 8
	buf := make([]byte, size)
	putPointer(buf[minOffset:], w, sentinel)
	putPointer(buf[minOffset+ptr:], w, sentinel)
	return buf
}

// SystemWorkingSetLimits builds the request that releases the system
// working set: both bounds become -1 on 64-bit hosts and 0xFFFFFFFF on
// 32-bit hosts.
func SystemWorkingSetLimits(w PointerWidth) Command {
	sentinel := uint64(math.MaxUint64)
	if w == Width32 {
		sentinel = math.MaxUint32
	}
	return Command{Class: ClassFileCache, Payload: fileCacheInformation(w, sentinel)}
}

// SystemFileCacheLimits builds the request that releases the system file
// cache: both bounds become -1 on 64-bit hosts and 0x7FFFFFFF on 32-bit hosts.
func SystemFileCacheLimits(w PointerWidth) Command {
	sentinel := uint64(math.MaxUint64)
	if w == Width32 {
		sentinel = math.MaxInt32
	}
	return Command{Class: ClassFileCache, Payload: fileCacheInformation(w, sentinel)}
}

// CombinePhysicalMemory builds a zeroed MEMORY_COMBINE_INFORMATION_EX:
//
//	HANDLE Handle; ULONG_PTR PagesCombined; ULONG Flags;
func CombinePhysicalMemory(w PointerWidth) Command {
	size := 2*w.size() + 4
	if w == Width64 {
		size += 4
	}
	return Command{Class: ClassCombinePhysicalMemory, Payload: make([]byte, size)}
}

// RegistryReconciliation builds the payload-free registry flush request.
func RegistryReconciliation() Command {
	return Command{Class: ClassRegistryReconciliation}
}

func putPointer(buf []byte, w PointerWidth, v uint64) {
	if w == Width32 {
		binary.LittleEndian.PutUint32(buf, uint32(v))
		return
	}
	binary.LittleEndian.PutUint64(buf, v)
}

// Process identifies a running process.
type Process struct {
	PID  uint32
	Name string
}

// Volume is an open, unbuffered handle to a local volume.
type Volume interface {
	// Control issues a device control code with an optional input buffer.
	Control(code uint32, in []byte) error
	// Flush flushes the volume's buffers to disk.
	Flush() error
	Close() error
}

// System is the set of native primitives used by the reclaim operations.
type System interface {
	// SetSystemInformation issues NtSetSystemInformation.
	SetSystemInformation(cmd Command) error
	// FlushFileCache calls SetSystemFileCacheSize(-1, -1, 0).
	FlushFileCache() error
	// Processes lists running processes.
	Processes() ([]Process, error)
	// EmptyWorkingSet trims the working set of the process with pid.
	EmptyWorkingSet(pid uint32) error
	// FixedDrives lists fixed local drives as "C:\" style roots.
	FixedDrives() ([]string, error)
	// OpenVolume opens the volume behind a drive root for direct access.
	OpenVolume(drive string) (Volume, error)
}

// ErrNotSupported is returned by every primitive outside Windows.
var ErrNotSupported = errors.New("native memory primitives are not supported on this platform")

// ErrProcessGone is returned when a process exited between enumeration and use.
var ErrProcessGone = errors.New("process no longer exists")

// IsAccessDenied reports whether err is an OS access-denied failure.
func IsAccessDenied(err error) bool {
	return errors.Is(err, fs.ErrPermission)
}

// Code extracts the numeric OS status from err, or 0 when none is present.
func Code(err error) uint32 {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return uint32(errno)
	}
	return platformCode(err)
}

// VolumePath converts a drive root such as "C:\" to the device path "\\.\C:".
func VolumePath(drive string) string {
	letter := drive
	for len(letter) > 0 && (letter[len(letter)-1] == '\\' || letter[len(letter)-1] == ':') {
		letter = letter[:len(letter)-1]
	}
	return `\\.\` + letter + ":"
}
