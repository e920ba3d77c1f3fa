package daemon_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jamesainslie/memsweep/pkg/daemon"
)

func TestWriteAndReadPID(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "run", "memsweep.pid")

	if err := daemon.WritePIDFile(pidPath); err != nil {
		t.Fatalf("WritePIDFile failed: %v", err)
	}

	pid, err := daemon.ReadPIDFile(pidPath)
	if err != nil {
		t.Fatalf("ReadPIDFile failed: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("Expected PID %d, got %d", os.Getpid(), pid)
	}
}

func TestReadPIDFile_Invalid(t *testing.T) {
	dir := t.TempDir()

	tests := map[string]string{
		"garbage":  "not-a-pid",
		"zero":     "0",
		"negative": "-12",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".pid")
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := daemon.ReadPIDFile(path); err == nil {
				t.Errorf("Expected error for PID file containing %q", content)
			}
		})
	}
}

func TestIsDaemonRunning(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "memsweep.pid")

	if daemon.IsDaemonRunning(pidPath) {
		t.Error("Expected false when PID file doesn't exist")
	}

	if err := daemon.WritePIDFile(pidPath); err != nil {
		t.Fatal(err)
	}
	if !daemon.IsDaemonRunning(pidPath) {
		t.Error("Expected true when PID file has current process")
	}

	if err := os.WriteFile(pidPath, []byte("999999999"), 0o644); err != nil {
		t.Fatal(err)
	}
	if daemon.IsDaemonRunning(pidPath) {
		t.Error("Expected false when PID is not a live process")
	}
}

func TestIsProcessRunning(t *testing.T) {
	if !daemon.IsProcessRunning(os.Getpid()) {
		t.Error("Expected current process to be running")
	}
	if daemon.IsProcessRunning(0) {
		t.Error("Expected PID 0 to be reported as not running")
	}
	if daemon.IsProcessRunning(-1) {
		t.Error("Expected negative PID to be reported as not running")
	}
}

func TestRemovePIDFile(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "memsweep.pid")

	if err := daemon.WritePIDFile(pidPath); err != nil {
		t.Fatalf("WritePIDFile failed: %v", err)
	}
	if err := daemon.RemovePIDFile(pidPath); err != nil {
		t.Fatalf("RemovePIDFile failed: %v", err)
	}
	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Error("PID file should have been removed")
	}

	// Removing twice is fine.
	if err := daemon.RemovePIDFile(pidPath); err != nil {
		t.Errorf("RemovePIDFile on missing file failed: %v", err)
	}
}
