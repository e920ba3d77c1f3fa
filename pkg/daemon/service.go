package daemon

import (
	"context"
	"errors"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	memsweepv1 "github.com/jamesainslie/memsweep/pkg/api/memsweep/v1"
	"github.com/jamesainslie/memsweep/pkg/daemon/broadcaster"
	"github.com/jamesainslie/memsweep/pkg/memsweep/capability"
	"github.com/jamesainslie/memsweep/pkg/memsweep/logging"
	"github.com/jamesainslie/memsweep/pkg/memsweep/optimizer"
	"github.com/jamesainslie/memsweep/pkg/memsweep/trigger"
	"github.com/jamesainslie/memsweep/pkg/memsweep/types"
)

var (
	// ErrRunInProgress is returned when an optimization is requested while
	// another one is running.
	ErrRunInProgress = errors.New("an optimization is already running")

	// ErrShuttingDown is returned once Shutdown has been requested.
	ErrShuttingDown = errors.New("daemon is shutting down")
)

// Optimizer runs one optimization.
type Optimizer interface {
	Optimize(areas types.MemoryArea, reason types.OptimizationReason, progress optimizer.ProgressFunc) *types.OptimizationRun
}

// Snapshots keeps the latest memory snapshot.
type Snapshots interface {
	RefreshSnapshot() bool
	Snapshot() types.MemorySnapshot
}

// Capabilities describes the host OS.
type Capabilities interface {
	Supported() types.MemoryArea
	Version() capability.OSVersion
}

// Service implements the MemSweepDaemon gRPC service. At most one
// optimization runs at a time, whoever started it.
type Service struct {
	memsweepv1.UnimplementedMemSweepDaemonServer

	snapshots   Snapshots
	caps        Capabilities
	broadcaster *broadcaster.Broadcaster
	tracker     *trigger.Tracker
	startTime   time.Time
	newID       func() string
	onShutdown  func()

	mu           sync.RWMutex
	optimizer    Optimizer
	areas        types.MemoryArea
	running      bool
	currentRunID string
	lastRun      *types.OptimizationRun
	closing      bool
}

// ServiceOption is a functional option for configuring a Service.
type ServiceOption func(*Service)

// WithBroadcaster sets the broadcaster progress events are published to.
func WithBroadcaster(b *broadcaster.Broadcaster) ServiceOption {
	return func(s *Service) {
		s.broadcaster = b
	}
}

// WithTracker sets the automatic optimization policy state.
func WithTracker(t *trigger.Tracker) ServiceOption {
	return func(s *Service) {
		s.tracker = t
	}
}

// WithAreas sets the areas optimized when a request names none.
func WithAreas(areas types.MemoryArea) ServiceOption {
	return func(s *Service) {
		s.areas = areas
	}
}

// WithShutdownFunc sets the function Shutdown calls to stop the process.
func WithShutdownFunc(fn func()) ServiceOption {
	return func(s *Service) {
		s.onShutdown = fn
	}
}

// NewService creates a new gRPC service.
func NewService(opt Optimizer, snaps Snapshots, caps Capabilities, opts ...ServiceOption) *Service {
	s := &Service{
		optimizer: opt,
		snapshots: snaps,
		caps:      caps,
		startTime: time.Now(),
		newID:     uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	if s.broadcaster == nil {
		s.broadcaster = broadcaster.New()
	}
	if s.tracker == nil {
		s.tracker = trigger.NewTracker(trigger.Policy{})
	}
	if s.areas == types.AreaNone {
		s.areas = caps.Supported()
	}
	return s
}

// Broadcaster returns the broadcaster progress events are published to.
func (s *Service) Broadcaster() *broadcaster.Broadcaster {
	return s.broadcaster
}

// Tracker returns the automatic optimization state.
func (s *Service) Tracker() *trigger.Tracker {
	return s.tracker
}

// Areas returns the areas optimized when a request names none.
func (s *Service) Areas() types.MemoryArea {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.areas
}

// Reconfigure swaps the optimizer, default areas and trigger policy, for
// example after the config file changed. A nil optimizer keeps the current
// one. A running optimization finishes with the old settings.
func (s *Service) Reconfigure(opt Optimizer, areas types.MemoryArea, policy trigger.Policy) {
	s.mu.Lock()
	if opt != nil {
		s.optimizer = opt
	}
	if areas != types.AreaNone {
		s.areas = areas
	}
	s.mu.Unlock()
	s.tracker.SetPolicy(policy)
}

// Close rejects further optimizations and ends every progress watch.
func (s *Service) Close() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.broadcaster.Close()
}

// LastRun returns the most recent finished run, or nil.
func (s *Service) LastRun() *types.OptimizationRun {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRun
}

func (s *Service) begin() (string, Optimizer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		return "", nil, ErrShuttingDown
	}
	if s.running {
		return "", nil, ErrRunInProgress
	}
	s.running = true
	s.currentRunID = s.newID()
	return s.currentRunID, s.optimizer, nil
}

func (s *Service) finish(run *types.OptimizationRun) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running = false
	s.currentRunID = ""
	if run != nil {
		s.lastRun = run
	}
}

// RunOptimization runs one optimization, publishing its progress to the
// broadcaster and to observe. The optimizer's completion notification is
// published last with Done set and the run attached. An empty mask publishes
// nothing. It returns ErrRunInProgress if another optimization is running.
func (s *Service) RunOptimization(areas types.MemoryArea, reason types.OptimizationReason, observe func(*broadcaster.Event)) (*types.OptimizationRun, error) {
	log := logging.Get("daemon")

	runID, opt, err := s.begin()
	if err != nil {
		return nil, err
	}

	var run *types.OptimizationRun
	defer func() {
		s.finish(run)
	}()

	var total uint8
	if areas != types.AreaNone {
		total = uint8(len(areas.Areas()) + 1)
	}

	emit := func(event *broadcaster.Event) {
		s.broadcaster.Notify(event)
		if observe != nil {
			observe(event)
		}
	}

	log.Info("optimization started", "run", runID, "reason", reason.String(), "areas", areas.String())

	var complete *broadcaster.Event
	run = opt.Optimize(areas, reason, func(counter uint8, label string) {
		event := &broadcaster.Event{
			RunID:   runID,
			Reason:  reason,
			Counter: counter,
			Total:   total,
			Label:   label,
		}
		if label == optimizer.CompleteLabel {
			complete = event
			return
		}
		emit(event)
	})
	run.ID = runID

	s.snapshots.RefreshSnapshot()
	s.tracker.Record(reason, run.FinishedAt)

	log.Info("optimization finished", "run", runID,
		"succeeded", run.Succeeded(), "failed", run.Failed(), "total", run.Total)

	if complete != nil {
		complete.Done = true
		complete.Run = run
		emit(complete)
	}

	return run, nil
}

// CheckTriggers refreshes the snapshot and starts an optimization when the
// policy says so. It returns the decision and the run, if one happened.
func (s *Service) CheckTriggers() (trigger.Decision, *types.OptimizationRun, error) {
	s.snapshots.RefreshSnapshot()

	decision := s.tracker.Evaluate(s.snapshots.Snapshot())
	if !decision.Fire {
		return decision, nil, nil
	}

	logging.Get("daemon").Info("automatic optimization", "reason", decision.Reason.String(), "detail", decision.Detail)
	run, err := s.RunOptimization(s.Areas(), decision.Reason, nil)
	return decision, run, err
}

// RunScheduler evaluates the trigger policy every interval until ctx is
// cancelled.
func (s *Service) RunScheduler(ctx context.Context, interval time.Duration) {
	log := logging.Get("daemon")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _, err := s.CheckTriggers()
			switch {
			case errors.Is(err, ErrRunInProgress):
				log.Debug("skipping automatic optimization, one is already running")
			case errors.Is(err, ErrShuttingDown):
				return
			case err != nil:
				log.Error("automatic optimization failed", "error", err)
			}
		}
	}
}

// toProgressEvent converts a broadcaster event to its wire form.
func toProgressEvent(event *broadcaster.Event) *memsweepv1.ProgressEvent {
	return &memsweepv1.ProgressEvent{
		RunID:   event.RunID,
		Reason:  event.Reason.String(),
		Counter: uint32(event.Counter),
		Total:   uint32(event.Total),
		Label:   event.Label,
		Done:    event.Done,
		Run:     event.Run,
	}
}

// runError maps service errors to gRPC status errors.
func runError(err error) error {
	switch {
	case errors.Is(err, ErrRunInProgress):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, ErrShuttingDown):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// Optimize runs an optimization and streams its progress. The stream ends
// with the Done event, or is empty when there is nothing to optimize. The optimization keeps running if the client goes
// away.
func (s *Service) Optimize(req *memsweepv1.OptimizeRequest, stream grpc.ServerStreamingServer[memsweepv1.ProgressEvent]) error {
	areas := s.Areas()
	if req.GetAreas() != "" {
		parsed, err := types.ParseAreas(req.GetAreas())
		if err != nil {
			return status.Error(codes.InvalidArgument, err.Error())
		}
		areas = parsed
	}

	reason, err := types.ParseReason(req.GetReason())
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	var sendErr error
	_, err = s.RunOptimization(areas, reason, func(event *broadcaster.Event) {
		if sendErr != nil {
			return
		}
		sendErr = stream.Send(toProgressEvent(event))
	})
	if err != nil {
		return runError(err)
	}
	return sendErr
}

// WatchProgress streams progress of every optimization until the client
// disconnects or the daemon stops.
func (s *Service) WatchProgress(_ *memsweepv1.WatchProgressRequest, stream grpc.ServerStreamingServer[memsweepv1.ProgressEvent]) error {
	sub := s.broadcaster.Subscribe()
	if sub == nil {
		return status.Error(codes.Unavailable, "progress watching not available")
	}
	defer s.broadcaster.Unsubscribe(sub.ID)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-sub.Events:
			if !ok {
				return nil
			}
			if err := stream.Send(toProgressEvent(event)); err != nil {
				return err
			}
		}
	}
}

// GetStatus returns daemon health information.
func (s *Service) GetStatus(_ context.Context, req *memsweepv1.GetStatusRequest) (*memsweepv1.DaemonStatus, error) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	policy := s.tracker.Policy()

	s.mu.RLock()
	st := &memsweepv1.DaemonStatus{
		Running:       true,
		PID:           os.Getpid(),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		MemoryBytes:   mem.Alloc,
		OSVersion:     s.caps.Version().String(),
		Supported:     s.caps.Supported(),
		Areas:         s.areas,
		RunInProgress: s.running,
		CurrentRunID:  s.currentRunID,
		LastRun:       s.lastRun,
	}
	s.mu.RUnlock()

	st.Snapshot = s.snapshots.Snapshot()
	st.Trigger = memsweepv1.TriggerStatus{
		ScheduleEnabled:  policy.ScheduleEnabled,
		Interval:         policy.Interval,
		NextScheduled:    s.tracker.NextScheduled(),
		LowMemoryEnabled: policy.LowMemoryEnabled,
		ThresholdPercent: policy.ThresholdPercent,
		Cooldown:         policy.Cooldown,
	}

	if n := int(req.GetRecentLogs()); n > 0 {
		minLevel := logging.LevelDebug
		if req.GetMinLevel() != "" {
			level, err := logging.ParseLevel(req.GetMinLevel())
			if err != nil {
				return nil, status.Error(codes.InvalidArgument, err.Error())
			}
			minLevel = level
		}
		for _, entry := range logging.Recent(n, minLevel) {
			st.RecentLogs = append(st.RecentLogs, memsweepv1.LogLine{
				Time:      entry.Time,
				Level:     entry.Level.String(),
				Component: entry.Component,
				Message:   entry.Message,
			})
		}
	}

	return st, nil
}

// Shutdown stops accepting optimizations and asks the process to exit.
// The response is sent before the server stops.
func (s *Service) Shutdown(_ context.Context, _ *memsweepv1.ShutdownRequest) (*memsweepv1.ShutdownResponse, error) {
	s.mu.Lock()
	already := s.closing
	s.closing = true
	s.mu.Unlock()

	logging.Get("daemon").Info("shutdown requested")

	if !already && s.onShutdown != nil {
		go s.onShutdown()
	}
	return &memsweepv1.ShutdownResponse{Success: true}, nil
}
