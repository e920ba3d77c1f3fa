package daemon

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Startup states written to the status file.
const (
	StatusReady = "ready"
	StatusError = "error"
)

// StatusFile reports the outcome of daemon startup to whoever launched it.
type StatusFile struct {
	Status    string    `json:"status"`
	PID       int       `json:"pid,omitempty"`
	Address   string    `json:"address,omitempty"`
	Error     string    `json:"error,omitempty"`
	WrittenAt time.Time `json:"written_at"`
}

// Ready reports whether the daemon started successfully.
func (s *StatusFile) Ready() bool {
	return s != nil && s.Status == StatusReady
}

// WriteStatusReady writes a ready status file naming the listen address.
func WriteStatusReady(path, address string) error {
	return writeStatus(path, &StatusFile{
		Status:  StatusReady,
		PID:     os.Getpid(),
		Address: address,
	})
}

// WriteStatusError writes an error status file.
func WriteStatusError(path string, err error) error {
	return writeStatus(path, &StatusFile{
		Status: StatusError,
		Error:  err.Error(),
	})
}

func writeStatus(path string, status *StatusFile) error {
	status.WrittenAt = time.Now()
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadStatus reads a status file.
func ReadStatus(path string) (*StatusFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var status StatusFile
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// RemoveStatus removes the status file.
func RemoveStatus(path string) error {
	return os.Remove(path)
}

// StatusPath returns the status file path for a data directory.
func StatusPath(dataDir string) string {
	return filepath.Join(dataDir, "memsweep.status")
}
