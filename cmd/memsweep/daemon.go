package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/memsweep/cmd/memsweep/tui"
	"github.com/jamesainslie/memsweep/pkg/client"
	"github.com/jamesainslie/memsweep/pkg/memsweep/output"
	"github.com/jamesainslie/memsweep/pkg/memsweep/types"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the memsweepd daemon",
	Long: `Manage the memsweepd daemon for scheduled and low-memory optimization.

The daemon watches memory load and optimizes on its own when the load
crosses the configured threshold or the schedule comes due. Clients can
also ask it to run an optimization and follow the progress of any run.`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the memsweepd daemon",
	Long:  `Start the memsweepd daemon in the background.`,
	RunE:  runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the memsweepd daemon",
	Long:  `Stop the memsweepd daemon gracefully.`,
	RunE:  runDaemonStop,
}

var daemonRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the memsweepd daemon",
	Long:  `Stop and start the memsweepd daemon.`,
	RunE:  runDaemonRestart,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long:  `Show the current status of the memsweepd daemon.`,
	RunE:  runDaemonStatus,
}

var daemonOptimizeCmd = &cobra.Command{
	Use:   "optimize [area...]",
	Short: "Run an optimization in the daemon",
	Long: `Ask memsweepd to optimize the given areas and stream its progress.
With no areas the daemon uses its configured areas.`,
	RunE: runDaemonOptimize,
}

var daemonWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow daemon optimizations",
	Long: `Print progress of every optimization the daemon runs, including
scheduled and low-memory runs, until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runDaemonWatch,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonRestartCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
	daemonCmd.AddCommand(daemonOptimizeCmd)
	daemonCmd.AddCommand(daemonWatchCmd)

	daemonStatusCmd.Flags().Int("logs", 0, "number of recent daemon log lines to show")
	daemonStatusCmd.Flags().String("log-level", "", "only show log lines at or above this level: debug, info, warn, error")
	daemonOptimizeCmd.Flags().String("reason", "manual", "reason recorded for the run: manual, scheduled, low-memory")
}

func runDaemonStart(_ *cobra.Command, _ []string) error {
	paths := daemonPaths(appConfig)
	printVerbose("starting daemon (pid file %s, address %s)", paths.PID, paths.Socket)
	if client.IsDaemonRunning(paths.PID) {
		printInfo("Daemon already running")
		return nil
	}
	if err := client.StartDaemon(paths); err != nil {
		printVerbose("start failed: %v", err)
		return err
	}
	printInfo("Daemon started")
	return nil
}

func runDaemonStop(_ *cobra.Command, _ []string) error {
	paths := daemonPaths(appConfig)
	printVerbose("checking PID file: %s", paths.PID)

	if !client.IsDaemonRunning(paths.PID) {
		return errors.New("daemon is not running")
	}

	if err := client.StopDaemon(paths); err != nil {
		return err
	}
	printInfo("Daemon stopped")
	return nil
}

func runDaemonRestart(_ *cobra.Command, _ []string) error {
	if err := client.RestartDaemon(daemonPaths(appConfig)); err != nil {
		return err
	}
	printInfo("Daemon restarted")
	return nil
}

// connectDaemon connects to a running daemon.
func connectDaemon(ctx context.Context) (*client.Client, error) {
	paths := daemonPaths(appConfig)
	if !client.IsDaemonRunning(paths.PID) {
		return nil, errors.New("daemon is not running (start with: memsweep daemon start)")
	}

	c, err := client.ConnectWithContext(ctx, paths.Socket)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	return c, nil
}

func runDaemonStatus(cmd *cobra.Command, _ []string) error {
	paths := daemonPaths(appConfig)
	if !client.IsDaemonRunning(paths.PID) {
		printInfo("Daemon status: not running")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	daemonClient, err := client.ConnectWithContext(ctx, paths.Socket)
	if err != nil {
		printInfo("Daemon status: running (but not responding)")
		return nil
	}
	defer daemonClient.Close()

	logs, _ := cmd.Flags().GetInt("logs")
	logLevel, _ := cmd.Flags().GetString("log-level")
	status, err := daemonClient.GetStatus(ctx, logs, logLevel)
	if err != nil {
		return fmt.Errorf("failed to get daemon status: %w", err)
	}

	printInfo("%s", formatDaemonStatus(status))
	return nil
}

// formatDaemonStatus renders the daemon status for humans.
func formatDaemonStatus(status *client.DaemonStatus) string {
	var lines []string
	add := func(format string, args ...any) {
		lines = append(lines, fmt.Sprintf(format, args...))
	}

	add("Daemon status: running")
	add("  PID: %d", status.PID)
	add("  Uptime: %s", formatDuration(status.Uptime))
	add("  Memory: %s", types.FormatSize(status.MemoryBytes))
	add("  OS version: %s", status.OSVersion)
	add("  Supported areas: %s", status.Supported)
	add("  Configured areas: %s", status.Areas)

	if snap := status.Snapshot; !snap.IsZero() {
		add("  Memory load: %.0f%% (%s of %s available)",
			snap.UsedPercent(), types.FormatSize(snap.AvailablePhysical), types.FormatSize(snap.TotalPhysical))
	}

	trig := status.Trigger
	if trig.ScheduleEnabled {
		next := "-"
		if !trig.NextScheduled.IsZero() {
			next = trig.NextScheduled.Local().Format(time.DateTime)
		}
		add("  Schedule: every %s (next %s)", trig.Interval, next)
	} else {
		add("  Schedule: off")
	}
	if trig.LowMemoryEnabled {
		add("  Low memory: at %.0f%% load, cooldown %s", trig.ThresholdPercent, trig.Cooldown)
	} else {
		add("  Low memory: off")
	}

	if status.RunInProgress {
		add("  Optimizing: run %s", status.CurrentRunID)
	}
	if run := status.LastRun; run != nil {
		add("  Last run: %s (%s), %d ok, %d failed, %s seconds",
			run.FinishedAt.Local().Format(time.DateTime), run.Reason,
			run.Succeeded(), run.Failed(), types.FormatSeconds(run.Total))
	}

	if len(status.RecentLogs) > 0 {
		add("  Recent logs:")
		for _, l := range status.RecentLogs {
			add("    %s %-5s [%s] %s", l.Time.Local().Format("15:04:05"), l.Level, l.Component, l.Message)
		}
	}

	return strings.Join(lines, "\n")
}

func runDaemonOptimize(cmd *cobra.Command, args []string) error {
	if err := maybeStartDaemon(appConfig); err != nil {
		printVerbose("auto-start failed: %v", err)
	}

	areas := types.AreaNone
	if len(args) > 0 {
		var err error
		if areas, err = types.ParseAreaList(args); err != nil {
			return err
		}
	}

	reasonFlag, _ := cmd.Flags().GetString("reason")
	reason, err := types.ParseReason(reasonFlag)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	daemonClient, err := connectDaemon(ctx)
	if err != nil {
		return err
	}
	defer daemonClient.Close()

	before := types.MemorySnapshot{}
	if st, err := daemonClient.GetStatus(ctx, 0, ""); err == nil {
		before = st.Snapshot
	}

	// An empty area list lets the daemon use its configured areas.
	areaArg := ""
	if areas != types.AreaNone {
		areaArg = areas.String()
	}

	run, err := daemonClient.Optimize(ctx, areaArg, reason, func(p client.Progress) {
		plainProgress(tui.Step{Counter: p.Counter, Total: p.Total, Label: p.Label})
	})
	if err != nil {
		return err
	}

	report := &output.Report{Run: run, Before: before, DaemonUp: true}
	if st, err := daemonClient.GetStatus(ctx, 0, ""); err == nil {
		report.After = st.Snapshot
		report.OSVersion = st.OSVersion
	}
	return printReport(report)
}

func runDaemonWatch(_ *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	daemonClient, err := connectDaemon(ctx)
	if err != nil {
		return err
	}
	defer daemonClient.Close()

	events, err := daemonClient.WatchProgress(ctx)
	if err != nil {
		return err
	}

	printInfo("Watching daemon optimizations (Ctrl+C to stop)")
	for p := range events {
		fmt.Println(formatWatchLine(p))
	}
	return nil
}

// formatWatchLine renders one streamed notification.
func formatWatchLine(p client.Progress) string {
	id := p.RunID
	if len(id) > 8 {
		id = id[:8]
	}
	line := fmt.Sprintf("%s %s [%s] %d/%d %s", time.Now().Format("15:04:05"), id, p.Reason, p.Counter, p.Total, p.Label)
	if p.Done && p.Run != nil {
		line += fmt.Sprintf(" (%d ok, %d failed)", p.Run.Succeeded(), p.Run.Failed())
	}
	return line
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}
