// Package trigger decides when the daemon starts an optimization on its own:
// periodically on a schedule, or when memory load crosses a threshold.
package trigger

import (
	"fmt"
	"sync"
	"time"

	"github.com/jamesainslie/memsweep/pkg/memsweep/types"
)

// Policy configures automatic optimizations. A zero Policy never fires.
type Policy struct {
	// ScheduleEnabled turns on periodic optimization.
	ScheduleEnabled bool

	// Interval is the time between scheduled optimizations.
	Interval time.Duration

	// LowMemoryEnabled turns on load-triggered optimization.
	LowMemoryEnabled bool

	// ThresholdPercent is the memory load at or above which a low-memory
	// optimization fires.
	ThresholdPercent float64

	// Cooldown is the minimum time between two low-memory optimizations.
	Cooldown time.Duration
}

// Decision is the outcome of evaluating a Policy.
type Decision struct {
	// Fire is true when an optimization should start now.
	Fire bool

	// Reason is the reason to pass to the optimizer when Fire is set.
	Reason types.OptimizationReason

	// Detail explains the decision for logs.
	Detail string
}

// Decide is the pure policy. last is when an optimization for each reason
// last ran (zero if never); since is when scheduling started.
// Low memory takes precedence over the schedule.
func Decide(p Policy, snap types.MemorySnapshot, now, since time.Time, last map[types.OptimizationReason]time.Time) Decision {
	if p.LowMemoryEnabled && p.ThresholdPercent > 0 && !snap.IsZero() {
		used := snap.UsedPercent()
		if used >= p.ThresholdPercent {
			prev := last[types.ReasonLowMemory]
			if prev.IsZero() || now.Sub(prev) >= p.Cooldown {
				return Decision{
					Fire:   true,
					Reason: types.ReasonLowMemory,
					Detail: fmt.Sprintf("memory load %.0f%% is at or above %.0f%%", used, p.ThresholdPercent),
				}
			}
		}
	}

	if p.ScheduleEnabled && p.Interval > 0 {
		from := since
		if prev := last[types.ReasonScheduled]; prev.After(from) {
			from = prev
		}
		if !now.Before(from.Add(p.Interval)) {
			return Decision{
				Fire:   true,
				Reason: types.ReasonScheduled,
				Detail: fmt.Sprintf("scheduled every %s", p.Interval),
			}
		}
	}

	return Decision{}
}

// Tracker holds the state Decide needs between evaluations.
// It is safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	policy Policy
	since  time.Time
	last   map[types.OptimizationReason]time.Time
	now    func() time.Time
}

// Option is a functional option for configuring a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// NewTracker creates a Tracker. The schedule starts counting from now.
func NewTracker(p Policy, opts ...Option) *Tracker {
	t := &Tracker{
		policy: p,
		last:   make(map[types.OptimizationReason]time.Time),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.since = t.now()
	return t
}

// Evaluate decides whether snap warrants an optimization now.
func (t *Tracker) Evaluate(snap types.MemorySnapshot) Decision {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Decide(t.policy, snap, t.now(), t.since, t.last)
}

// Record notes that an optimization for reason finished at at.
func (t *Tracker) Record(reason types.OptimizationReason, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if at.After(t.last[reason]) {
		t.last[reason] = at
	}
}

// Last returns when an optimization for reason last finished.
func (t *Tracker) Last(reason types.OptimizationReason) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last[reason]
}

// NextScheduled returns when the next scheduled optimization is due, or the
// zero time when the schedule is off.
func (t *Tracker) NextScheduled() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.policy.ScheduleEnabled || t.policy.Interval <= 0 {
		return time.Time{}
	}
	from := t.since
	if prev := t.last[types.ReasonScheduled]; prev.After(from) {
		from = prev
	}
	return from.Add(t.policy.Interval)
}

// SetPolicy replaces the policy, for example after a config reload.
// Recorded history is kept.
func (t *Tracker) SetPolicy(p Policy) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.policy = p
}

// Policy returns the current policy.
func (t *Tracker) Policy() Policy {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.policy
}
