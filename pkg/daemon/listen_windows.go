//go:build windows

package daemon

import (
	"net"

	"github.com/Microsoft/go-winio"
)

// pipeSecurity allows SYSTEM and administrators.
const pipeSecurity = "D:P(A;;GA;;;BA)(A;;GA;;;SY)"

func listen(path string) (net.Listener, error) {
	return winio.ListenPipe(path, &winio.PipeConfig{
		SecurityDescriptor: pipeSecurity,
	})
}

// Named pipes vanish with their last handle.
func cleanupListener(string) error {
	return nil
}
