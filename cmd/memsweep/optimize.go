package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/memsweep/cmd/memsweep/tui"
	"github.com/jamesainslie/memsweep/pkg/client"
	"github.com/jamesainslie/memsweep/pkg/memsweep/capability"
	"github.com/jamesainslie/memsweep/pkg/memsweep/config"
	"github.com/jamesainslie/memsweep/pkg/memsweep/optimizer"
	"github.com/jamesainslie/memsweep/pkg/memsweep/output"
	"github.com/jamesainslie/memsweep/pkg/memsweep/reclaim"
	"github.com/jamesainslie/memsweep/pkg/memsweep/snapshot"
	"github.com/jamesainslie/memsweep/pkg/memsweep/types"
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize [area...]",
	Short: "Reclaim memory from the selected areas",
	Long: `Optimize reclaims memory from each selected area in a fixed order and
prints a report comparing available memory before and after.

Areas can be given as arguments, with --areas, or in the config file.
Valid areas: processes, system, modified, standby, standby-low, combined,
modified-file-cache, file-cache, registry, all.

A failing area never stops the remaining areas from running. Use
--via-daemon to let a running memsweepd perform the optimization.`,
	RunE: runOptimize,
}

func init() {
	optimizeCmd.Flags().String("areas", "", "comma separated areas to optimize (default: config areas)")
	optimizeCmd.Flags().String("reason", "manual", "reason recorded for the run: manual, scheduled, low-memory")
	optimizeCmd.Flags().Bool("via-daemon", false, "run the optimization in memsweepd")
	rootCmd.AddCommand(optimizeCmd)
}

// resolveAreas picks the areas to optimize: arguments first, then the
// --areas flag, then the configured defaults.
func resolveAreas(args []string, flag string, cfg *config.Config) (types.MemoryArea, error) {
	switch {
	case len(args) > 0:
		return types.ParseAreaList(args)
	case flag != "":
		return types.ParseAreas(flag)
	case cfg != nil:
		return cfg.AreaMask()
	default:
		return types.ParseAreaList(config.DefaultAreas)
	}
}

// unsupportedWarnings lists the requested areas the host cannot reclaim.
func unsupportedWarnings(areas types.MemoryArea, caps *capability.Matrix) []string {
	var warnings []string
	for _, area := range areas.Areas() {
		if caps.IsSupported(area) {
			continue
		}
		msg := fmt.Sprintf("%s is not supported on %s", area.Label(), caps.Version())
		if v, ok := capability.Minimum(area); ok {
			msg += fmt.Sprintf(" (needs %d.%d)", v.Major, v.Minor)
		}
		warnings = append(warnings, msg)
	}
	return warnings
}

func runOptimize(cmd *cobra.Command, args []string) error {
	cfg := appConfig

	areasFlag, _ := cmd.Flags().GetString("areas")
	areas, err := resolveAreas(args, areasFlag, cfg)
	if err != nil {
		return err
	}

	reasonFlag, _ := cmd.Flags().GetString("reason")
	reason, err := types.ParseReason(reasonFlag)
	if err != nil {
		return err
	}

	viaDaemon, _ := cmd.Flags().GetBool("via-daemon")

	caps := capability.Detect()
	printVerbose("OS version %s, supported areas: %s", caps.Version(), caps.Supported())
	printVerbose("optimizing %s (reason %s)", areas, reason)

	snaps := snapshot.NewService(nil)
	before := snaps.Snapshot()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var start tui.StartFunc
	if viaDaemon {
		if err := maybeStartDaemon(cfg); err != nil {
			printVerbose("auto-start failed: %v", err)
		}
		start = daemonStart(ctx, daemonPaths(cfg), areas, reason)
	} else {
		var exclude []string
		if cfg != nil {
			exclude = cfg.ExcludeProcesses
		}
		opt, err := optimizer.NewWithExclusions(exclude, reclaim.WithCapabilities(caps))
		if err != nil {
			return err
		}
		start = localStart(opt, areas, reason)
	}

	var run *types.OptimizationRun
	if viper.GetBool("no_interactive") || !isPrettyOutput() || getQuiet() {
		run, err = start(plainProgress)
	} else {
		run, err = tui.Run(tui.Options{Areas: areas, Reason: reason, Start: start})
	}
	if err != nil {
		if errors.Is(err, tui.ErrInterrupted) {
			printInfo("Progress view closed; the optimization continues in the background")
			return nil
		}
		return err
	}

	snaps.RefreshSnapshot()

	report := &output.Report{
		Run:       run,
		Before:    before,
		After:     snaps.Snapshot(),
		OSVersion: caps.Version().String(),
		DaemonUp:  client.IsDaemonRunning(daemonPaths(cfg).PID),
		Warnings:  unsupportedWarnings(areas, caps),
	}
	return printReport(report)
}

// localStart runs the optimization in this process.
func localStart(opt *optimizer.Optimizer, areas types.MemoryArea, reason types.OptimizationReason) tui.StartFunc {
	total := tui.Total(areas)
	return func(progress func(tui.Step)) (*types.OptimizationRun, error) {
		run := opt.Optimize(areas, reason, func(counter uint8, label string) {
			progress(tui.Step{Counter: int(counter), Total: total, Label: label})
		})
		return run, nil
	}
}

// daemonStart asks memsweepd to run the optimization and relays its stream.
func daemonStart(ctx context.Context, paths client.DaemonPaths, areas types.MemoryArea, reason types.OptimizationReason) tui.StartFunc {
	return func(progress func(tui.Step)) (*types.OptimizationRun, error) {
		if !client.IsDaemonRunning(paths.PID) {
			return nil, errors.New("daemon is not running (start with: memsweep daemon start)")
		}

		c, err := client.ConnectWithContext(ctx, paths.Socket)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to daemon: %w", err)
		}
		defer c.Close()

		return c.Optimize(ctx, areas.String(), reason, func(p client.Progress) {
			progress(tui.Step{Counter: p.Counter, Total: p.Total, Label: p.Label})
		})
	}
}

// plainProgress prints one line per notification to stderr, keeping stdout
// for the report.
func plainProgress(s tui.Step) {
	if getQuiet() {
		return
	}
	fmt.Fprintf(os.Stderr, "[%d/%d] %s\n", s.Counter, s.Total, s.Label)
}
