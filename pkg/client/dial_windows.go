//go:build windows

package client

import (
	"context"
	"net"
	"os/exec"
	"syscall"
	"time"

	"github.com/Microsoft/go-winio"
	"golang.org/x/sys/windows"
	"google.golang.org/grpc"
)

func target(string) string {
	return "passthrough:///memsweepd"
}

func dialOptions(address string) []grpc.DialOption {
	return []grpc.DialOption{
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return winio.DialPipeContext(ctx, address)
		}),
	}
}

func addressExists(address string) bool {
	timeout := 200 * time.Millisecond
	conn, err := winio.DialPipe(address, &timeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// detach starts the daemon without a console so closing the caller's window
// does not stop it.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: windows.CREATE_NEW_PROCESS_GROUP | windows.DETACHED_PROCESS,
		HideWindow:    true,
	}
}
