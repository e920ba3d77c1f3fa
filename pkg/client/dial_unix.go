//go:build !windows

package client

import (
	"os"
	"os/exec"
	"syscall"

	"google.golang.org/grpc"
)

func target(address string) string {
	return "unix://" + address
}

func dialOptions(string) []grpc.DialOption {
	return nil
}

func addressExists(address string) bool {
	_, err := os.Stat(address)
	return err == nil
}

// detach starts the daemon in its own session so terminal signals sent to
// the caller do not reach it.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
