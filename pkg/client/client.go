// Package client provides a client for connecting to the memsweepd daemon.
// It wraps the gRPC client with convenience methods and manages the daemon
// process.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	memsweepv1 "github.com/jamesainslie/memsweep/pkg/api/memsweep/v1"
	"github.com/jamesainslie/memsweep/pkg/daemon"
	"github.com/jamesainslie/memsweep/pkg/memsweep/config"
	"github.com/jamesainslie/memsweep/pkg/memsweep/types"
)

var (
	// ErrRunInProgress is returned when the daemon is already optimizing.
	ErrRunInProgress = errors.New("daemon is already running an optimization")

	// ErrDaemonUnavailable is returned when the daemon is shutting down.
	ErrDaemonUnavailable = errors.New("daemon is unavailable")

	// ErrNoResult is returned when an optimize stream ends without a run.
	ErrNoResult = errors.New("daemon ended the optimization without a result")
)

// Client connects to the memsweepd daemon via gRPC.
type Client struct {
	conn   *grpc.ClientConn
	client memsweepv1.MemSweepDaemonClient
}

// Progress is one progress notification of a daemon optimization.
type Progress struct {
	RunID   string
	Reason  string
	Counter int
	Total   int
	Label   string

	// Done marks the final notification, which carries the run.
	Done bool
	Run  *types.OptimizationRun
}

// DaemonStatus represents the daemon's current status.
type DaemonStatus struct {
	Running       bool
	PID           int
	Uptime        time.Duration
	MemoryBytes   uint64
	OSVersion     string
	Supported     types.MemoryArea
	Areas         types.MemoryArea
	Snapshot      types.MemorySnapshot
	RunInProgress bool
	CurrentRunID  string
	LastRun       *types.OptimizationRun
	Trigger       memsweepv1.TriggerStatus
	RecentLogs    []memsweepv1.LogLine
}

// DaemonPaths configures paths for daemon operations.
// Empty fields use defaults.
type DaemonPaths struct {
	Binary string // Path to memsweepd binary (auto-discovered if empty)
	Socket string // Unix socket or named pipe path
	PID    string // PID file path
	Status string // Startup status file path
	Config string // Config file passed to the daemon
}

// withDefaults returns a copy with empty fields filled with defaults.
func (p DaemonPaths) withDefaults() DaemonPaths {
	if p.Socket == "" {
		p.Socket = config.DefaultSocketPath()
	}
	if p.PID == "" {
		p.PID = config.DefaultPIDPath()
	}
	if p.Status == "" {
		p.Status = daemon.StatusPath(config.DataDir())
	}
	return p
}

// PathsFromConfig builds DaemonPaths from the daemon section of a config.
func PathsFromConfig(cfg config.DaemonConfig) DaemonPaths {
	return DaemonPaths{
		Binary: cfg.BinaryPath,
		Socket: cfg.SocketPath,
		PID:    cfg.PIDPath,
	}.withDefaults()
}

// Connect establishes a connection to the memsweepd daemon.
// Uses a default timeout of 5 seconds.
func Connect(address string) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return ConnectWithContext(ctx, address)
}

// ConnectWithContext establishes a connection to the memsweepd daemon with a custom context.
func ConnectWithContext(ctx context.Context, address string) (*Client, error) {
	if !addressExists(address) {
		return nil, fmt.Errorf("daemon socket not found at %s", address)
	}

	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	}, dialOptions(address)...)

	//nolint:staticcheck // grpc.DialContext is deprecated but NewClient doesn't support blocking
	conn, err := grpc.DialContext(ctx, target(address), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}

	return &Client{
		conn:   conn,
		client: memsweepv1.NewMemSweepDaemonClient(conn),
	}, nil
}

// Close closes the connection to the daemon.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// rpcError maps daemon status codes onto client sentinels.
func rpcError(method string, err error) error {
	switch status.Code(err) {
	case codes.FailedPrecondition:
		return fmt.Errorf("%w: %s", ErrRunInProgress, status.Convert(err).Message())
	case codes.Unavailable:
		return fmt.Errorf("%w: %s", ErrDaemonUnavailable, status.Convert(err).Message())
	default:
		return fmt.Errorf("%s RPC failed: %w", method, err)
	}
}

// Optimize asks the daemon to optimize areas (a comma separated list, empty
// for the daemon's defaults) and blocks until the run finishes. onProgress,
// if set, sees every notification including the final one.
func (c *Client) Optimize(ctx context.Context, areas string, reason types.OptimizationReason, onProgress func(Progress)) (*types.OptimizationRun, error) {
	stream, err := c.client.Optimize(ctx, &memsweepv1.OptimizeRequest{
		Areas:  areas,
		Reason: reason.String(),
	})
	if err != nil {
		return nil, rpcError("Optimize", err)
	}

	var (
		run      *types.OptimizationRun
		received int
	)
	for {
		event, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, rpcError("Optimize", err)
		}

		received++
		p := protoToProgress(event)
		if onProgress != nil {
			onProgress(p)
		}
		if p.Done {
			run = p.Run
		}
	}

	// The daemon sends nothing when the resolved areas are empty.
	if received == 0 {
		now := time.Now()
		return &types.OptimizationRun{Reason: reason, StartedAt: now, FinishedAt: now}, nil
	}
	if run == nil {
		return nil, ErrNoResult
	}
	return run, nil
}

// WatchProgress subscribes to progress of every optimization the daemon
// runs. The channel closes when the context is cancelled or the stream ends.
func (c *Client) WatchProgress(ctx context.Context) (<-chan Progress, error) {
	stream, err := c.client.WatchProgress(ctx, &memsweepv1.WatchProgressRequest{})
	if err != nil {
		return nil, rpcError("WatchProgress", err)
	}

	events := make(chan Progress, 100)
	go func() {
		defer close(events)
		for {
			event, err := stream.Recv()
			if err != nil {
				return // Stream closed or error
			}

			select {
			case events <- protoToProgress(event):
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}

// GetStatus returns the current status of the daemon with up to recentLogs
// of its latest log lines at or above minLevel. An empty minLevel includes
// every level.
func (c *Client) GetStatus(ctx context.Context, recentLogs int, minLevel string) (*DaemonStatus, error) {
	st, err := c.client.GetStatus(ctx, &memsweepv1.GetStatusRequest{
		RecentLogs: int32(recentLogs),
		MinLevel:   minLevel,
	})
	if err != nil {
		return nil, rpcError("GetStatus", err)
	}

	return &DaemonStatus{
		Running:       st.Running,
		PID:           st.PID,
		Uptime:        time.Duration(st.UptimeSeconds) * time.Second,
		MemoryBytes:   st.MemoryBytes,
		OSVersion:     st.OSVersion,
		Supported:     st.Supported,
		Areas:         st.Areas,
		Snapshot:      st.Snapshot,
		RunInProgress: st.RunInProgress,
		CurrentRunID:  st.CurrentRunID,
		LastRun:       st.LastRun,
		Trigger:       st.Trigger,
		RecentLogs:    st.RecentLogs,
	}, nil
}

// Shutdown requests the daemon to shut down gracefully.
func (c *Client) Shutdown(ctx context.Context) error {
	resp, err := c.client.Shutdown(ctx, &memsweepv1.ShutdownRequest{})
	if err != nil {
		return fmt.Errorf("Shutdown RPC failed: %w", err)
	}

	if !resp.GetSuccess() {
		return errors.New("shutdown request was not successful")
	}

	return nil
}

// protoToProgress converts a wire event to a Progress.
func protoToProgress(e *memsweepv1.ProgressEvent) Progress {
	return Progress{
		RunID:   e.RunID,
		Reason:  e.Reason,
		Counter: int(e.Counter),
		Total:   int(e.Total),
		Label:   e.Label,
		Done:    e.GetDone(),
		Run:     e.GetRun(),
	}
}

// EnsureDaemon ensures the daemon is running, starting it if necessary.
// Idempotent: returns nil if daemon is already running.
func EnsureDaemon(paths DaemonPaths) error {
	return StartDaemon(paths)
}

// StartDaemon starts the memsweepd daemon in the background.
// Idempotent: returns nil if daemon is already running.
func StartDaemon(paths DaemonPaths) error {
	paths = paths.withDefaults()

	if IsDaemonRunning(paths.PID) {
		return nil
	}

	binary, err := resolveBinary(paths.Binary)
	if err != nil {
		return fmt.Errorf("find %s: %w", config.DaemonBinaryName, err)
	}

	// Clean up stale status file before starting
	_ = os.Remove(paths.Status)

	var args []string
	if paths.Config != "" {
		args = append(args, "--config", paths.Config)
	}

	// Use exec.Command (not CommandContext) intentionally: daemon must outlive caller
	cmd := exec.Command(binary, args...) //nolint:gosec // binary path is validated
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil
	detach(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	if cmd.Process != nil {
		_ = cmd.Process.Release()
	}

	return waitReady(paths, 50, 100*time.Millisecond)
}

// waitReady polls for the daemon address or its status file.
func waitReady(paths DaemonPaths, attempts int, interval time.Duration) error {
	for range attempts {
		time.Sleep(interval)

		if st, err := daemon.ReadStatus(paths.Status); err == nil {
			if st.Ready() {
				return nil
			}
			if st.Status == daemon.StatusError {
				return fmt.Errorf("daemon failed to start: %s", st.Error)
			}
		}

		if addressExists(paths.Socket) && IsDaemonRunning(paths.PID) {
			return nil
		}
	}

	return errors.New("daemon did not become ready within timeout")
}

// StopDaemon stops the daemon gracefully via RPC.
// Idempotent: returns nil if daemon is not running.
func StopDaemon(paths DaemonPaths) error {
	paths = paths.withDefaults()

	if !IsDaemonRunning(paths.PID) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := ConnectWithContext(ctx, paths.Socket)
	if err != nil {
		return fmt.Errorf("connect to daemon: %w", err)
	}
	defer client.Close()

	if err := client.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown daemon: %w", err)
	}

	for range 20 {
		time.Sleep(250 * time.Millisecond)
		if !IsDaemonRunning(paths.PID) {
			return nil
		}
	}

	return errors.New("daemon did not stop within timeout")
}

// RestartDaemon stops and starts the daemon.
func RestartDaemon(paths DaemonPaths) error {
	if err := StopDaemon(paths); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	if err := StartDaemon(paths); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	return nil
}

// resolveBinary finds the memsweepd binary path.
// Priority: configured path > same directory as executable > GOBIN/GOPATH > PATH.
func resolveBinary(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("configured binary not found: %s", configured)
		}
		return configured, nil
	}

	if execPath, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(execPath), config.DaemonBinaryName+filepath.Ext(execPath))
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	if goBinPath := config.DefaultBinaryPath(); goBinPath != "" {
		return goBinPath, nil
	}

	if path, err := exec.LookPath(config.DaemonBinaryName); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("%s not found", config.DaemonBinaryName)
}

// IsDaemonRunning checks if the daemon is running based on the PID file.
func IsDaemonRunning(pidPath string) bool {
	return daemon.IsDaemonRunning(pidPath)
}
