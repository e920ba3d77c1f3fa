// Package snapshot reads system memory counters and keeps the latest
// reading for the rest of the program.
package snapshot

import (
	"fmt"
	"sync"
	"time"

	"github.com/jamesainslie/memsweep/pkg/memsweep/logging"
	"github.com/jamesainslie/memsweep/pkg/memsweep/types"
)

// Reader captures one memory snapshot.
type Reader interface {
	Read() (types.MemorySnapshot, error)
}

// ReaderFunc adapts a function to the Reader interface.
type ReaderFunc func() (types.MemorySnapshot, error)

// Read calls f.
func (f ReaderFunc) Read() (types.MemorySnapshot, error) {
	return f()
}

// HostReader reads counters from the running operating system.
type HostReader struct{}

// Read captures the host's memory counters.
func (HostReader) Read() (types.MemorySnapshot, error) {
	s, err := readHost()
	if err != nil {
		return types.MemorySnapshot{}, err
	}
	s.CapturedAt = time.Now()
	return s, nil
}

// Service owns the latest snapshot. Each refresh replaces it wholesale.
type Service struct {
	mu      sync.RWMutex
	reader  Reader
	current types.MemorySnapshot
	logger  *logging.Logger
}

// NewService creates a Service and takes an initial reading. A failed
// initial reading leaves a zero snapshot.
func NewService(r Reader) *Service {
	if r == nil {
		r = HostReader{}
	}
	s := &Service{
		reader: r,
		logger: logging.Get("snapshot"),
	}
	s.RefreshSnapshot()
	return s
}

// RefreshSnapshot reads fresh counters. It reports false and keeps the
// previous snapshot when the read fails.
func (s *Service) RefreshSnapshot() bool {
	snap, err := s.read()
	if err != nil {
		s.logger.Error("reading memory status", "error", err)
		return false
	}

	s.mu.Lock()
	s.current = snap
	s.mu.Unlock()
	return true
}

func (s *Service) read() (snap types.MemorySnapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("memory reader panicked: %v", r)
		}
	}()
	return s.reader.Read()
}

// Snapshot returns the latest snapshot.
func (s *Service) Snapshot() types.MemorySnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}
