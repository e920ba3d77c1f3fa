//go:build !windows

package privilege

func enableProcessPrivileges(_ []string) error {
	return ErrNotSupported
}
