package main

import (
	"github.com/spf13/cobra"

	"github.com/jamesainslie/memsweep/pkg/client"
	"github.com/jamesainslie/memsweep/pkg/memsweep/capability"
	"github.com/jamesainslie/memsweep/pkg/memsweep/output"
	"github.com/jamesainslie/memsweep/pkg/memsweep/snapshot"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show memory load and the areas this host can reclaim",
	Long: `Display the current memory snapshot, the detected OS version and the
capability table of memory areas.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(_ *cobra.Command, _ []string) error {
	caps := capability.Detect()
	snaps := snapshot.NewService(nil)

	report := &output.Report{
		Before:    snaps.Snapshot(),
		OSVersion: caps.Version().String(),
		Areas:     output.DescribeAreas(caps),
		DaemonUp:  client.IsDaemonRunning(daemonPaths(appConfig).PID),
	}
	if report.Before.IsZero() {
		report.Warnings = append(report.Warnings, "memory status could not be read")
	}
	return printReport(report)
}
