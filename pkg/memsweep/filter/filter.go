// Package filter decides which processes are left alone when working sets
// are trimmed. Exclusions are process names or glob patterns.
package filter

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gobwas/glob"
)

// Filter matches process names against an exclusion list.
// Matching is case-insensitive and ignores a trailing ".exe".
type Filter struct {
	names    map[string]struct{}
	patterns []glob.Glob
	sources  []string
}

// Option is a functional option for configuring a Filter.
type Option func(*Filter) error

// New creates a Filter with the given options.
func New(opts ...Option) (*Filter, error) {
	f := &Filter{names: make(map[string]struct{})}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// WithExclude adds exclusions. Entries containing glob metacharacters
// (*, ?, [ or {) are compiled as patterns; all others match exactly.
func WithExclude(entries ...string) Option {
	return func(f *Filter) error {
		for _, entry := range entries {
			entry = strings.TrimSpace(entry)
			if entry == "" {
				continue
			}
			key := Normalize(entry)
			if strings.ContainsAny(key, "*?[{") {
				g, err := glob.Compile(key)
				if err != nil {
					return fmt.Errorf("invalid exclusion pattern %q: %w", entry, err)
				}
				f.patterns = append(f.patterns, g)
			} else {
				f.names[key] = struct{}{}
			}
			f.sources = append(f.sources, entry)
		}
		return nil
	}
}

// Normalize lowercases a process name and strips any directory and ".exe"
// suffix, so "C:\Windows\Explorer.EXE" and "explorer" compare equal.
func Normalize(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if i := strings.LastIndexAny(name, `\/`); i >= 0 {
		name = name[i+1:]
	}
	if filepath.Ext(name) == ".exe" {
		name = strings.TrimSuffix(name, ".exe")
	}
	return name
}

// Excluded reports whether the process name is on the exclusion list.
func (f *Filter) Excluded(name string) bool {
	if f == nil {
		return false
	}
	key := Normalize(name)
	if _, ok := f.names[key]; ok {
		return true
	}
	for _, g := range f.patterns {
		if g.Match(key) {
			return true
		}
	}
	return false
}

// Entries returns the exclusion list as configured, sorted.
func (f *Filter) Entries() []string {
	if f == nil {
		return nil
	}
	out := slices.Clone(f.sources)
	slices.Sort(out)
	return out
}

// Len returns the number of exclusion entries.
func (f *Filter) Len() int {
	if f == nil {
		return 0
	}
	return len(f.sources)
}
