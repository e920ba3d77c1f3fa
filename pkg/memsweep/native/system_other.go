//go:build !windows

package native

type hostSystem struct{}

// Host returns a System whose primitives all fail with ErrNotSupported.
func Host() System {
	return hostSystem{}
}

func (hostSystem) SetSystemInformation(Command) error { return ErrNotSupported }

func (hostSystem) FlushFileCache() error { return ErrNotSupported }

func (hostSystem) Processes() ([]Process, error) { return nil, ErrNotSupported }

func (hostSystem) EmptyWorkingSet(uint32) error { return ErrNotSupported }

func (hostSystem) FixedDrives() ([]string, error) { return nil, ErrNotSupported }

func (hostSystem) OpenVolume(string) (Volume, error) { return nil, ErrNotSupported }

func platformCode(error) uint32 { return 0 }
