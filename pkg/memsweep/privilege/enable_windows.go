//go:build windows

package privilege

import "github.com/Microsoft/go-winio"

// enableProcessPrivileges opens the process token for query and adjust
// access and enables names. Unassigned privileges yield *winio.PrivilegeError.
func enableProcessPrivileges(names []string) error {
	return winio.EnableProcessPrivileges(names)
}
