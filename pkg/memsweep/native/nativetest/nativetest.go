// Package nativetest provides a recording native.System for tests.
package nativetest

import (
	"sync"

	"github.com/jamesainslie/memsweep/pkg/memsweep/native"
)

// System is an in-memory native.System. Zero values succeed; set the error
// fields to inject failures. Every call is recorded in Calls.
type System struct {
	mu sync.Mutex

	SetErr    map[native.InfoClass]error
	FlushErr  error
	Procs     []native.Process
	ProcsErr  error
	EmptyErr  map[uint32]error
	Drives    []string
	DrivesErr error
	OpenErr   map[string]error
	// FlushVolumeErr fails Flush on the named drive.
	FlushVolumeErr map[string]error
	// ControlErr fails every volume control code.
	ControlErr error

	Calls    []string
	Commands []native.Command
	Trimmed  []uint32
	Volumes  []*Volume
}

var _ native.System = (*System)(nil)

func (s *System) record(call string) {
	s.Calls = append(s.Calls, call)
}

// SetSystemInformation records cmd.
func (s *System) SetSystemInformation(cmd native.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("SetSystemInformation")
	s.Commands = append(s.Commands, cmd)
	return s.SetErr[cmd.Class]
}

// FlushFileCache records the flush.
func (s *System) FlushFileCache() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("FlushFileCache")
	return s.FlushErr
}

// Processes returns Procs.
func (s *System) Processes() ([]native.Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("Processes")
	return s.Procs, s.ProcsErr
}

// EmptyWorkingSet records pid.
func (s *System) EmptyWorkingSet(pid uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("EmptyWorkingSet")
	if err := s.EmptyErr[pid]; err != nil {
		return err
	}
	s.Trimmed = append(s.Trimmed, pid)
	return nil
}

// FixedDrives returns Drives.
func (s *System) FixedDrives() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("FixedDrives")
	return s.Drives, s.DrivesErr
}

// OpenVolume returns a recording Volume.
func (s *System) OpenVolume(drive string) (native.Volume, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("OpenVolume")
	if err := s.OpenErr[drive]; err != nil {
		return nil, err
	}
	v := &Volume{Drive: drive, controlErr: s.ControlErr, flushErr: s.FlushVolumeErr[drive]}
	s.Volumes = append(s.Volumes, v)
	return v, nil
}

// NativeCalls reports whether any primitive was invoked.
func (s *System) NativeCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Calls)
}

// Volume records the controls issued against one drive.
type Volume struct {
	Drive    string
	Controls []uint32
	Flushed  bool
	Closed   bool

	controlErr error
	flushErr   error
}

// Control records code.
func (v *Volume) Control(code uint32, _ []byte) error {
	v.Controls = append(v.Controls, code)
	return v.controlErr
}

// Flush marks the volume flushed.
func (v *Volume) Flush() error {
	if v.flushErr != nil {
		return v.flushErr
	}
	v.Flushed = true
	return nil
}

// Close marks the volume closed.
func (v *Volume) Close() error {
	v.Closed = true
	return nil
}
