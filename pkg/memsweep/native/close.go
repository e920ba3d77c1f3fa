package native

import "github.com/jamesainslie/memsweep/pkg/memsweep/logging"

// closeLogged runs closeFn and logs a failure at debug level.
func closeLogged(what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logging.Get("native").Debug("closing handle", "handle", what, "error", err)
	}
}
