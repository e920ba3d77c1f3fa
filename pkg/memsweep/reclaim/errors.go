package reclaim

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jamesainslie/memsweep/pkg/memsweep/native"
	"github.com/jamesainslie/memsweep/pkg/memsweep/types"
)

// Sentinel errors matched by the typed errors below through errors.Is.
var (
	ErrUnsupported           = errors.New("not supported on this operating system version")
	ErrInsufficientPrivilege = errors.New("insufficient privilege")
	ErrOperationFailed       = errors.New("operating system call failed")
	ErrPartialFailure        = errors.New("some targets failed")
)

// Kind classifies a reclaim failure.
type Kind int

// Failure kinds.
const (
	KindNone Kind = iota
	KindUnsupported
	KindPrivilege
	KindOS
	KindPartial
	KindUnknown
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindUnsupported:
		return "unsupported"
	case KindPrivilege:
		return "privilege"
	case KindOS:
		return "os"
	case KindPartial:
		return "partial"
	default:
		return "unknown"
	}
}

// KindOf classifies err.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrUnsupported):
		return KindUnsupported
	case errors.Is(err, ErrInsufficientPrivilege):
		return KindPrivilege
	case errors.Is(err, ErrPartialFailure):
		return KindPartial
	case errors.Is(err, ErrOperationFailed):
		return KindOS
	default:
		return KindUnknown
	}
}

// IsUnsupported reports whether err carries an *UnsupportedError.
func IsUnsupported(err error) bool {
	var target *UnsupportedError
	return errors.As(err, &target)
}

// IsPrivilege reports whether err carries a *PrivilegeError.
func IsPrivilege(err error) bool {
	var target *PrivilegeError
	return errors.As(err, &target)
}

// UnsupportedError reports an area the running OS version cannot reclaim.
// It is permanent for this OS and not worth retrying.
type UnsupportedError struct {
	Area types.MemoryArea
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("the %s optimization is not supported on this operating system version", e.Area.Label())
}

// Unwrap returns ErrUnsupported.
func (e *UnsupportedError) Unwrap() error {
	return ErrUnsupported
}

// PrivilegeError reports a privilege the process token could not enable.
type PrivilegeError struct {
	Area      types.MemoryArea
	Privilege string
	Err       error
}

func (e *PrivilegeError) Error() string {
	return fmt.Sprintf("this operation requires administrator privileges (%s)", e.Privilege)
}

// Unwrap returns the sentinel and the underlying token error.
func (e *PrivilegeError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInsufficientPrivilege}
	}
	return []error{ErrInsufficientPrivilege, e.Err}
}

// OSError reports a native primitive that returned a failure status.
type OSError struct {
	Op   string
	Code uint32
	Err  error
}

func newOSError(op string, err error) *OSError {
	return &OSError{Op: op, Code: native.Code(err), Err: err}
}

func (e *OSError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s failed (code %#x): %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

// Unwrap returns the sentinel and the underlying OS error.
func (e *OSError) Unwrap() []error {
	return []error{ErrOperationFailed, e.Err}
}

// TargetFailure is the failure of one process or volume within a
// multi-target operation.
type TargetFailure struct {
	Target string
	Err    error
}

func (f TargetFailure) String() string {
	return fmt.Sprintf("%s: %v", f.Target, f.Err)
}

// PartialFailure aggregates per-target failures of the processes working
// set and modified file cache operations.
type PartialFailure struct {
	Area     types.MemoryArea
	Failures []TargetFailure
}

func (e *PartialFailure) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.String()
	}
	return strings.Join(parts, " | ")
}

// Unwrap returns ErrPartialFailure.
func (e *PartialFailure) Unwrap() error {
	return ErrPartialFailure
}
