// Package privilege enables process-token privileges required by the
// reclaim operations.
package privilege

import (
	"errors"
	"fmt"
	"sync"

	"github.com/jamesainslie/memsweep/pkg/memsweep/logging"
)

// Privilege names consumed by the reclaim operations.
const (
	SeDebug             = "SeDebugPrivilege"
	SeIncreaseQuota     = "SeIncreaseQuotaPrivilege"
	SeProfSingleProcess = "SeProfileSingleProcessPrivilege"
)

// ErrNotSupported is returned when the platform has no token privileges.
var ErrNotSupported = errors.New("token privileges are not supported on this platform")

// Grant is the result of one enable attempt.
type Grant struct {
	Name    string
	Enabled bool
	Err     error
}

// OK reports whether the privilege is held.
func (g Grant) OK() bool {
	return g.Enabled
}

// Escalator enables named privileges on the current process token.
type Escalator interface {
	TryEnablePrivilege(name string) Grant
}

// EnableFunc adjusts the process token to enable the named privileges.
type EnableFunc func(names []string) error

// Process is the Escalator for the running process. Successful grants are
// remembered; failed ones are retried on the next request.
type Process struct {
	mu      sync.Mutex
	enable  EnableFunc
	granted map[string]bool
}

// Option configures a Process escalator.
type Option func(*Process)

// WithEnableFunc replaces the token adjustment primitive.
func WithEnableFunc(fn EnableFunc) Option {
	return func(p *Process) {
		p.enable = fn
	}
}

// NewProcess returns an escalator for the current process token.
func NewProcess(opts ...Option) *Process {
	p := &Process{
		enable:  enableProcessPrivileges,
		granted: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// TryEnablePrivilege enables name on the process token. It never panics:
// every failure is reported through the returned Grant.
func (p *Process) TryEnablePrivilege(name string) (grant Grant) {
	grant.Name = name

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.granted[name] {
		grant.Enabled = true
		return grant
	}

	defer func() {
		if r := recover(); r != nil {
			grant.Enabled = false
			grant.Err = fmt.Errorf("enabling %s: %v", name, r)
		}
	}()

	if err := p.enable([]string{name}); err != nil {
		grant.Err = fmt.Errorf("enabling %s: %w", name, err)
		logging.Get("privilege").Warn("privilege not granted", "privilege", name, "error", err)
		return grant
	}

	p.granted[name] = true
	grant.Enabled = true
	logging.Get("privilege").Debug("privilege enabled", "privilege", name)
	return grant
}

// Granted returns the privileges enabled so far.
func (p *Process) Granted() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	names := make([]string, 0, len(p.granted))
	for name := range p.granted {
		names = append(names, name)
	}
	return names
}
