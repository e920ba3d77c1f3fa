//go:build !windows

package daemon

import (
	"context"
	"net"
	"os"
	"path/filepath"
)

func listen(path string) (net.Listener, error) {
	// Remove stale socket if exists
	if err := os.RemoveAll(path); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	var lc net.ListenConfig
	return lc.Listen(context.Background(), "unix", path)
}

func cleanupListener(path string) error {
	return os.RemoveAll(path)
}
