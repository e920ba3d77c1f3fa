package daemon

import (
	"os"

	"github.com/jamesainslie/memsweep/pkg/memsweep/logging"
)

// RecoverFromStaleDaemon checks for and cleans up the files a crashed daemon
// leaves behind. It returns ErrDaemonAlreadyRunning if the daemon named by
// the PID file is alive.
func RecoverFromStaleDaemon(pidPath, socketPath, dataDir string) error {
	pid, err := ReadPIDFile(pidPath)
	if err != nil {
		// No PID file or invalid PID means nothing to recover
		return nil //nolint:nilerr // missing/invalid PID file is not an error condition
	}

	if IsProcessRunning(pid) {
		return ErrDaemonAlreadyRunning
	}

	log := logging.Get("daemon")
	log.Warn("cleaning up stale daemon files", "stale_pid", pid)

	// Files may not exist
	_ = os.Remove(pidPath)
	_ = cleanupListener(socketPath)
	_ = os.Remove(StatusPath(dataDir))

	return nil
}
