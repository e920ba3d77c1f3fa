//go:build !windows

package client

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	memsweepv1 "github.com/jamesainslie/memsweep/pkg/api/memsweep/v1"
	"github.com/jamesainslie/memsweep/pkg/daemon"
	"github.com/jamesainslie/memsweep/pkg/memsweep/config"
	"github.com/jamesainslie/memsweep/pkg/memsweep/types"
)

// mockMemSweepDaemonServer implements memsweepv1.MemSweepDaemonServer for testing.
type mockMemSweepDaemonServer struct {
	memsweepv1.UnimplementedMemSweepDaemonServer
	events        []*memsweepv1.ProgressEvent
	optimizeErr   error
	daemonStatus  *memsweepv1.DaemonStatus
	shutdownResp  *memsweepv1.ShutdownResponse
	lastOptimize  *memsweepv1.OptimizeRequest
	lastStatus    *memsweepv1.GetStatusRequest
	shutdownCalls int
}

func (m *mockMemSweepDaemonServer) Optimize(req *memsweepv1.OptimizeRequest, stream grpc.ServerStreamingServer[memsweepv1.ProgressEvent]) error {
	m.lastOptimize = req
	if m.optimizeErr != nil {
		return m.optimizeErr
	}
	for _, e := range m.events {
		if err := stream.Send(e); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockMemSweepDaemonServer) WatchProgress(_ *memsweepv1.WatchProgressRequest, stream grpc.ServerStreamingServer[memsweepv1.ProgressEvent]) error {
	for _, e := range m.events {
		if err := stream.Send(e); err != nil {
			return err
		}
	}
	<-stream.Context().Done()
	return nil
}

func (m *mockMemSweepDaemonServer) GetStatus(_ context.Context, req *memsweepv1.GetStatusRequest) (*memsweepv1.DaemonStatus, error) {
	m.lastStatus = req
	if m.daemonStatus != nil {
		return m.daemonStatus, nil
	}
	return &memsweepv1.DaemonStatus{
		Running:       true,
		UptimeSeconds: 100,
	}, nil
}

func (m *mockMemSweepDaemonServer) Shutdown(_ context.Context, _ *memsweepv1.ShutdownRequest) (*memsweepv1.ShutdownResponse, error) {
	m.shutdownCalls++
	if m.shutdownResp != nil {
		return m.shutdownResp, nil
	}
	return &memsweepv1.ShutdownResponse{Success: true}, nil
}

func sampleEvents() []*memsweepv1.ProgressEvent {
	run := &types.OptimizationRun{
		ID:     "run-1",
		Reason: types.ReasonManual,
		Areas:  types.AreaProcessesWorkingSet,
		Outcomes: []types.OperationOutcome{
			{Area: types.AreaProcessesWorkingSet, Success: true, Elapsed: 1250 * time.Millisecond},
		},
		Total: 1250 * time.Millisecond,
	}
	return []*memsweepv1.ProgressEvent{
		{RunID: "run-1", Reason: "Manual", Counter: 1, Total: 2, Label: "Processes Working Set"},
		{RunID: "run-1", Reason: "Manual", Counter: 2, Total: 2, Label: "Optimized"},
		{RunID: "run-1", Reason: "Manual", Counter: 2, Total: 2, Label: "Optimized", Done: true, Run: run},
	}
}

// setupTestServer creates a test gRPC server on a Unix socket.
func setupTestServer(t *testing.T, mock *mockMemSweepDaemonServer) (string, func()) {
	t.Helper()

	// Short temp dir; socket paths are length limited
	tmpDir, err := os.MkdirTemp("", "memsweep-client-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	socketPath := filepath.Join(tmpDir, "test.sock")

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create listener: %v", err)
	}

	srv := grpc.NewServer()
	memsweepv1.RegisterMemSweepDaemonServer(srv, mock)

	go func() {
		_ = srv.Serve(listener)
	}()

	cleanup := func() {
		srv.Stop()
		_ = os.RemoveAll(tmpDir)
	}

	return socketPath, cleanup
}

func connectTest(t *testing.T, mock *mockMemSweepDaemonServer) *Client {
	t.Helper()
	socketPath, cleanup := setupTestServer(t, mock)
	t.Cleanup(cleanup)

	client, err := Connect(socketPath)
	if err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestConnect(t *testing.T) {
	client := connectTest(t, &mockMemSweepDaemonServer{})
	if client.conn == nil {
		t.Error("Connect() returned client with nil conn")
	}
}

func TestConnectInvalidSocket(t *testing.T) {
	_, err := Connect("/nonexistent/path/to/socket.sock")
	if err == nil {
		t.Error("Connect() should fail for nonexistent socket")
	}
}

func TestConnectWithTimeout(t *testing.T) {
	socketPath, cleanup := setupTestServer(t, &mockMemSweepDaemonServer{})
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := ConnectWithContext(ctx, socketPath)
	if err != nil {
		t.Fatalf("ConnectWithContext() failed: %v", err)
	}
	defer client.Close()
}

func TestOptimize(t *testing.T) {
	mock := &mockMemSweepDaemonServer{events: sampleEvents()}
	client := connectTest(t, mock)

	var seen []Progress
	run, err := client.Optimize(context.Background(), "processes", types.ReasonLowMemory, func(p Progress) {
		seen = append(seen, p)
	})
	if err != nil {
		t.Fatalf("Optimize() failed: %v", err)
	}

	if mock.lastOptimize.GetAreas() != "processes" || mock.lastOptimize.GetReason() != "LowMemory" {
		t.Errorf("unexpected request %+v", mock.lastOptimize)
	}
	if len(seen) != 3 {
		t.Fatalf("Expected 3 progress notifications, got %d", len(seen))
	}
	if seen[0].Label != "Processes Working Set" || seen[0].Counter != 1 || seen[0].Total != 2 {
		t.Errorf("unexpected first notification %+v", seen[0])
	}
	if !seen[2].Done {
		t.Error("Expected last notification to be done")
	}
	if run == nil || run.ID != "run-1" {
		t.Fatalf("Expected run-1, got %+v", run)
	}
	if run.Total != 1250*time.Millisecond {
		t.Errorf("Expected total to survive the wire, got %v", run.Total)
	}
	if run.Outcomes[0].Area != types.AreaProcessesWorkingSet {
		t.Errorf("Expected area to survive the wire, got %v", run.Outcomes[0].Area)
	}
}

func TestOptimizeNoResult(t *testing.T) {
	mock := &mockMemSweepDaemonServer{events: sampleEvents()[:2]}
	client := connectTest(t, mock)

	_, err := client.Optimize(context.Background(), "", types.ReasonManual, nil)
	if !errors.Is(err, ErrNoResult) {
		t.Errorf("Expected ErrNoResult, got %v", err)
	}
}

func TestOptimizeNothingToDo(t *testing.T) {
	mock := &mockMemSweepDaemonServer{}
	client := connectTest(t, mock)

	calls := 0
	run, err := client.Optimize(context.Background(), "none", types.ReasonScheduled, func(Progress) { calls++ })
	if err != nil {
		t.Fatalf("Optimize() failed: %v", err)
	}
	if calls != 0 {
		t.Errorf("Expected no progress notifications, got %d", calls)
	}
	if run == nil || len(run.Outcomes) != 0 || run.Reason != types.ReasonScheduled {
		t.Errorf("Expected an empty scheduled run, got %+v", run)
	}
}

func TestOptimizeErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"in progress", status.Error(codes.FailedPrecondition, "busy"), ErrRunInProgress},
		{"shutting down", status.Error(codes.Unavailable, "closing"), ErrDaemonUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := connectTest(t, &mockMemSweepDaemonServer{optimizeErr: tt.err})
			_, err := client.Optimize(context.Background(), "", types.ReasonManual, nil)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}

	client := connectTest(t, &mockMemSweepDaemonServer{optimizeErr: status.Error(codes.InvalidArgument, "bad area")})
	_, err := client.Optimize(context.Background(), "swap", types.ReasonManual, nil)
	if status.Code(errors.Unwrap(err)) != codes.InvalidArgument {
		t.Errorf("Expected InvalidArgument to be wrapped, got %v", err)
	}
}

func TestWatchProgress(t *testing.T) {
	client := connectTest(t, &mockMemSweepDaemonServer{events: sampleEvents()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := client.WatchProgress(ctx)
	if err != nil {
		t.Fatalf("WatchProgress() failed: %v", err)
	}

	var got []Progress
	timeout := time.After(5 * time.Second)
	for len(got) < 3 {
		select {
		case p := <-events:
			got = append(got, p)
		case <-timeout:
			t.Fatalf("timed out after %d events", len(got))
		}
	}
	if !got[2].Done || got[2].Run == nil {
		t.Errorf("Expected final event with run, got %+v", got[2])
	}

	cancel()
	for range events { //nolint:revive // drain until closed
	}
}

func TestGetStatus(t *testing.T) {
	mock := &mockMemSweepDaemonServer{
		daemonStatus: &memsweepv1.DaemonStatus{
			Running:       true,
			PID:           1234,
			UptimeSeconds: 90,
			OSVersion:     "10.0.19045",
			Supported:     types.AreaAll,
			Areas:         types.AreaProcessesWorkingSet | types.AreaRegistryCache,
			Snapshot:      types.MemorySnapshot{TotalPhysical: 16 << 30, LoadPercent: 72},
			Trigger:       memsweepv1.TriggerStatus{LowMemoryEnabled: true, ThresholdPercent: 90},
			RecentLogs:    []memsweepv1.LogLine{{Level: "info", Component: "daemon", Message: "serving"}},
		},
	}
	client := connectTest(t, mock)

	st, err := client.GetStatus(context.Background(), 10, "warn")
	if err != nil {
		t.Fatalf("GetStatus() failed: %v", err)
	}

	if mock.lastStatus.GetRecentLogs() != 10 {
		t.Errorf("Expected 10 recent logs requested, got %d", mock.lastStatus.GetRecentLogs())
	}
	if mock.lastStatus.GetMinLevel() != "warn" {
		t.Errorf("Expected min level warn, got %q", mock.lastStatus.GetMinLevel())
	}
	if st.PID != 1234 || st.Uptime != 90*time.Second || st.OSVersion != "10.0.19045" {
		t.Errorf("unexpected status %+v", st)
	}
	if st.Areas != types.AreaProcessesWorkingSet|types.AreaRegistryCache {
		t.Errorf("Expected areas to survive the wire, got %v", st.Areas)
	}
	if st.Snapshot.LoadPercent != 72 {
		t.Errorf("Expected snapshot load 72, got %d", st.Snapshot.LoadPercent)
	}
	if !st.Trigger.LowMemoryEnabled || len(st.RecentLogs) != 1 {
		t.Errorf("unexpected trigger/logs %+v %+v", st.Trigger, st.RecentLogs)
	}
}

func TestShutdown(t *testing.T) {
	mock := &mockMemSweepDaemonServer{}
	client := connectTest(t, mock)

	if err := client.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() failed: %v", err)
	}
	if mock.shutdownCalls != 1 {
		t.Errorf("Expected 1 shutdown call, got %d", mock.shutdownCalls)
	}
}

func TestShutdownRejected(t *testing.T) {
	client := connectTest(t, &mockMemSweepDaemonServer{shutdownResp: &memsweepv1.ShutdownResponse{Success: false}})

	if err := client.Shutdown(context.Background()); err == nil {
		t.Error("Shutdown() should fail when daemon refuses")
	}
}

func TestClientClose(t *testing.T) {
	var c Client
	if err := c.Close(); err != nil {
		t.Errorf("Close() on unconnected client failed: %v", err)
	}
}

func TestDaemonPathsDefaults(t *testing.T) {
	paths := DaemonPaths{}.withDefaults()

	if paths.Socket != config.DefaultSocketPath() {
		t.Errorf("Socket = %q, want %q", paths.Socket, config.DefaultSocketPath())
	}
	if paths.PID != config.DefaultPIDPath() {
		t.Errorf("PID = %q, want %q", paths.PID, config.DefaultPIDPath())
	}
	if paths.Status != daemon.StatusPath(config.DataDir()) {
		t.Errorf("Status = %q", paths.Status)
	}

	custom := DaemonPaths{Socket: "/tmp/x.sock", PID: "/tmp/x.pid", Status: "/tmp/x.status"}.withDefaults()
	if custom.Socket != "/tmp/x.sock" || custom.PID != "/tmp/x.pid" || custom.Status != "/tmp/x.status" {
		t.Errorf("custom paths overwritten: %+v", custom)
	}
}

func TestPathsFromConfig(t *testing.T) {
	paths := PathsFromConfig(config.DaemonConfig{BinaryPath: "/opt/memsweepd", SocketPath: "/run/m.sock"})
	if paths.Binary != "/opt/memsweepd" || paths.Socket != "/run/m.sock" {
		t.Errorf("unexpected paths %+v", paths)
	}
	if paths.PID != config.DefaultPIDPath() {
		t.Errorf("Expected default PID path, got %q", paths.PID)
	}
}

func TestResolveBinary(t *testing.T) {
	if _, err := resolveBinary("/nonexistent/memsweepd"); err == nil {
		t.Error("Expected error for missing configured binary")
	}

	bin := filepath.Join(t.TempDir(), "memsweepd")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	got, err := resolveBinary(bin)
	if err != nil {
		t.Fatalf("resolveBinary() failed: %v", err)
	}
	if got != bin {
		t.Errorf("resolveBinary() = %q, want %q", got, bin)
	}
}

func TestIsDaemonRunning(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "memsweep.pid")

	if IsDaemonRunning(pidPath) {
		t.Error("Expected false without PID file")
	}
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		t.Fatal(err)
	}
	if !IsDaemonRunning(pidPath) {
		t.Error("Expected true for current process")
	}
}

func TestStartDaemonAlreadyRunning(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "memsweep.pid")
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		t.Fatal(err)
	}

	// No binary is needed when the daemon is already up.
	err := StartDaemon(DaemonPaths{Binary: "/nonexistent", PID: pidPath, Socket: filepath.Join(dir, "s.sock")})
	if err != nil {
		t.Errorf("StartDaemon() should be a no-op, got %v", err)
	}
}

func TestStopDaemonNotRunning(t *testing.T) {
	dir := t.TempDir()
	err := StopDaemon(DaemonPaths{PID: filepath.Join(dir, "memsweep.pid"), Socket: filepath.Join(dir, "s.sock")})
	if err != nil {
		t.Errorf("StopDaemon() should be a no-op, got %v", err)
	}
}

func TestWaitReady(t *testing.T) {
	dir := t.TempDir()
	paths := DaemonPaths{
		Socket: filepath.Join(dir, "s.sock"),
		PID:    filepath.Join(dir, "memsweep.pid"),
		Status: filepath.Join(dir, "memsweep.status"),
	}

	if err := waitReady(paths, 2, time.Millisecond); err == nil {
		t.Error("Expected timeout without status file")
	}

	if err := daemon.WriteStatusError(paths.Status, errors.New("pipe busy")); err != nil {
		t.Fatal(err)
	}
	err := waitReady(paths, 2, time.Millisecond)
	if err == nil || !strings.Contains(err.Error(), "pipe busy") {
		t.Errorf("Expected startup error to surface, got %v", err)
	}

	if err := daemon.WriteStatusReady(paths.Status, paths.Socket); err != nil {
		t.Fatal(err)
	}
	if err := waitReady(paths, 2, time.Millisecond); err != nil {
		t.Errorf("Expected ready, got %v", err)
	}
}
