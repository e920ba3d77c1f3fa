// Package optimizer runs a set of memory-reclaim operations in a fixed
// priority order, isolating failures and reporting progress as it goes.
package optimizer

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jamesainslie/memsweep/pkg/memsweep/filter"
	"github.com/jamesainslie/memsweep/pkg/memsweep/logging"
	"github.com/jamesainslie/memsweep/pkg/memsweep/reclaim"
	"github.com/jamesainslie/memsweep/pkg/memsweep/types"
)

// CompleteLabel is the label of the terminal progress notification.
const CompleteLabel = "Optimized"

// ProgressFunc observes an optimization. It is called synchronously before
// each area runs and once more with CompleteLabel when the run ends. The
// counter starts at 1 and never decreases.
type ProgressFunc func(counter uint8, label string)

// Runner executes the reclaim operation for a single area.
type Runner interface {
	Run(area types.MemoryArea) error
}

// LogSink receives the flushed run logs.
type LogSink interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Optimizer sequences reclaim operations. Concurrent Optimize calls are
// serialized.
type Optimizer struct {
	mu      sync.Mutex
	runner  Runner
	sink    LogSink
	collect func()
	newID   func() string
}

// Option is a functional option for configuring an Optimizer.
type Option func(*Optimizer)

// WithRunner sets the operation runner.
func WithRunner(r Runner) Option {
	return func(o *Optimizer) {
		o.runner = r
	}
}

// WithLogSink sets where run logs are flushed.
func WithLogSink(s LogSink) Option {
	return func(o *Optimizer) {
		o.sink = s
	}
}

// WithCollector replaces the managed-memory reclamation run after each
// optimization.
func WithCollector(fn func()) Option {
	return func(o *Optimizer) {
		o.collect = fn
	}
}

// New returns an Optimizer for the running host unless overridden.
func New(opts ...Option) *Optimizer {
	o := &Optimizer{
		collect: collectGarbage,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.runner == nil {
		o.runner = reclaim.New()
	}
	if o.sink == nil {
		o.sink = logging.Get("optimizer")
	}
	return o
}

// NewWithExclusions returns an Optimizer whose reclaim operations leave the
// excluded processes alone. Entries are process names or glob patterns.
func NewWithExclusions(exclude []string, reclaimOpts ...reclaim.Option) (*Optimizer, error) {
	f, err := filter.New(filter.WithExclude(exclude...))
	if err != nil {
		return nil, fmt.Errorf("building process filter: %w", err)
	}
	ops := reclaim.New(append(reclaimOpts, reclaim.WithExcluder(f))...)
	return New(WithRunner(ops)), nil
}

// Optimize attempts every area in areas and returns the aggregated run.
// A failing area never prevents later areas from running, and failures are
// reported only through the run and the error log. An empty mask does nothing.
func (o *Optimizer) Optimize(areas types.MemoryArea, reason types.OptimizationReason, progress ProgressFunc) *types.OptimizationRun {
	run := &types.OptimizationRun{
		ID:        o.newID(),
		Reason:    reason,
		Areas:     areas,
		StartedAt: time.Now(),
	}
	if areas == types.AreaNone {
		run.FinishedAt = run.StartedAt
		return run
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	var counter uint8
	notify := func(label string) {
		if progress == nil {
			return
		}
		counter++
		progress(counter, label)
	}
	defer notify(CompleteLabel)

	var info, errs strings.Builder
	fmt.Fprintf(&info, "Optimization start reason: %s\n", reason)

	for _, area := range areas.Areas() {
		notify(area.Label())

		outcome := o.attempt(area)
		run.Outcomes = append(run.Outcomes, outcome)

		if outcome.Success {
			run.Total += outcome.Elapsed
			fmt.Fprintf(&info, "%s (Optimized) (%s seconds)\n", area.Label(), types.FormatSeconds(outcome.Elapsed))
		} else {
			fmt.Fprintf(&errs, "%s (Error: %s)\n", area.Label(), outcome.Cause)
		}
	}

	if info.Len() > 0 {
		run.InfoLog = fmt.Sprintf("MEMORY AREAS (%s seconds)\n\n%s", types.FormatSeconds(run.Total), info.String())
		o.sink.Info(run.InfoLog)
	}
	if errs.Len() > 0 {
		run.ErrorLog = "MEMORY AREAS\n\n" + errs.String()
		o.sink.Error(run.ErrorLog)
	}

	o.reclaimManaged()
	run.FinishedAt = time.Now()
	return run
}

// attempt runs one area, converting panics into failures.
func (o *Optimizer) attempt(area types.MemoryArea) (outcome types.OperationOutcome) {
	outcome.Area = area
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			outcome.Err = fmt.Errorf("%s panicked: %v", area.Label(), r)
		}
		outcome.Elapsed = time.Since(start)
		outcome.Success = outcome.Err == nil
		if outcome.Err != nil {
			outcome.Cause = outcome.Err.Error()
			outcome.Kind = reclaim.KindOf(outcome.Err).String()
		}
	}()

	outcome.Err = o.runner.Run(area)
	return outcome
}

// reclaimManaged releases memory held by this process. Failures are ignored.
func (o *Optimizer) reclaimManaged() {
	defer func() {
		_ = recover()
	}()
	if o.collect != nil {
		o.collect()
	}
}

func collectGarbage() {
	runtime.GC()
	debug.FreeOSMemory()
}
