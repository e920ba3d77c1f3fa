//go:build !windows

package native_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jamesainslie/memsweep/pkg/memsweep/native"
)

func TestHostUnsupportedOffWindows(t *testing.T) {
	sys := native.Host()

	assert.ErrorIs(t, sys.SetSystemInformation(native.RegistryReconciliation()), native.ErrNotSupported)
	assert.ErrorIs(t, sys.FlushFileCache(), native.ErrNotSupported)
	assert.ErrorIs(t, sys.EmptyWorkingSet(1), native.ErrNotSupported)

	_, err := sys.Processes()
	assert.ErrorIs(t, err, native.ErrNotSupported)
	_, err = sys.FixedDrives()
	assert.ErrorIs(t, err, native.ErrNotSupported)
	_, err = sys.OpenVolume(`C:\`)
	assert.ErrorIs(t, err, native.ErrNotSupported)
}
