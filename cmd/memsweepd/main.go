// Package main provides memsweepd, the background daemon that optimizes
// memory on a schedule or when memory load runs high.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/memsweep/pkg/daemon"
	"github.com/jamesainslie/memsweep/pkg/daemon/watcher"
	"github.com/jamesainslie/memsweep/pkg/memsweep/capability"
	"github.com/jamesainslie/memsweep/pkg/memsweep/config"
	"github.com/jamesainslie/memsweep/pkg/memsweep/logging"
	"github.com/jamesainslie/memsweep/pkg/memsweep/optimizer"
	"github.com/jamesainslie/memsweep/pkg/memsweep/reclaim"
	"github.com/jamesainslie/memsweep/pkg/memsweep/snapshot"
	"github.com/jamesainslie/memsweep/pkg/memsweep/trigger"
)

// logBufferSize is the number of log entries kept for GetStatus.
const logBufferSize = 200

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "memsweepd",
		Short: "Background memory optimization daemon",
		Long: `memsweepd serves the memsweep daemon API and optimizes memory on a
schedule or when memory load crosses the configured threshold. It is
normally started by "memsweep daemon start".`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := run(configPath); err != nil {
				fmt.Fprintf(os.Stderr, "memsweepd: %v\n", err)
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "config file (default: ~/.config/memsweep/config.yaml)")
	return cmd
}

func run(configPath string) error {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}

	if err := logging.Init(logging.Config{
		Level:      cfg.Logging.Level,
		Path:       cfg.Logging.Path,
		Rotation:   rotationConfig(cfg.Logging.Rotation),
		Components: cfg.Logging.Components,
		BufferSize: logBufferSize,
	}); err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	defer func() { _ = logging.Close() }()
	log := logging.Get("daemon")

	dataDir := config.DataDir()
	socketPath := cfg.Daemon.SocketPath
	if socketPath == "" {
		socketPath = config.DefaultSocketPath()
	}
	pidPath := cfg.Daemon.PIDPath
	if pidPath == "" {
		pidPath = config.DefaultPIDPath()
	}
	statusPath := daemon.StatusPath(dataDir)

	if err := daemon.RecoverFromStaleDaemon(pidPath, socketPath, dataDir); err != nil {
		return err
	}

	fail := func(err error) error {
		if werr := daemon.WriteStatusError(statusPath, err); werr != nil {
			log.Warn("writing status file", "error", werr)
		}
		log.Error("startup failed", "error", err)
		return err
	}

	caps := capability.Detect()
	areas, err := cfg.AreaMask()
	if err != nil {
		return fail(err)
	}
	opt, err := optimizer.NewWithExclusions(cfg.ExcludeProcesses, reclaim.WithCapabilities(caps))
	if err != nil {
		return fail(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svc := daemon.NewService(opt, snapshot.NewService(nil), caps,
		daemon.WithAreas(areas),
		daemon.WithTracker(trigger.NewTracker(policyFromConfig(cfg.Daemon))),
		daemon.WithShutdownFunc(cancel),
	)

	srv, err := daemon.NewServer(daemon.Config{SocketPath: socketPath, DataDir: dataDir}, svc)
	if err != nil {
		return fail(fmt.Errorf("creating server: %w", err))
	}

	if err := daemon.WritePIDFile(pidPath); err != nil {
		_ = srv.Close()
		return fail(fmt.Errorf("writing PID file: %w", err))
	}
	defer func() {
		if err := daemon.RemovePIDFile(pidPath); err != nil {
			log.Warn("failed to remove PID file", "error", err)
		}
		_ = daemon.RemoveStatus(statusPath)
	}()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		svc.RunScheduler(ctx, schedulerInterval(cfg.Daemon))
	}()

	if err := watchConfig(ctx, &wg, configPath, svc, caps); err != nil {
		log.Warn("config hot reload disabled", "error", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve()
	}()

	if err := daemon.WriteStatusReady(statusPath, srv.Addr()); err != nil {
		log.Warn("writing status file", "error", err)
	}
	log.Info("memsweepd started",
		"address", socketPath,
		"os", caps.Version().String(),
		"areas", areas.String(),
		"pid", os.Getpid())

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			log.Error("server stopped", "error", err)
		}
		cancel()
	}

	if err := srv.Close(); err != nil {
		log.Warn("error during shutdown", "error", err)
	}
	wg.Wait()
	return nil
}

// watchConfig reloads the config file when it changes and applies the new
// areas, exclusions and trigger policy.
func watchConfig(ctx context.Context, wg *sync.WaitGroup, configPath string, svc *daemon.Service, caps *capability.Matrix) error {
	path := configPath
	if path == "" {
		var err error
		if path, err = config.ConfigPath(); err != nil {
			return err
		}
	}

	w, err := watcher.New()
	if err != nil {
		return err
	}
	if err := w.Watch(path); err != nil {
		_ = w.Close()
		return err
	}

	log := logging.Get("daemon")
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() { _ = w.Close() }()
		w.Run(ctx, func(changed string) {
			if err := reload(changed, svc, caps); err != nil {
				log.Error("config reload failed, keeping previous settings", "path", changed, "error", err)
				return
			}
			log.Info("config reloaded", "path", changed)
		})
	}()
	return nil
}

// reload applies the config at path to svc.
func reload(path string, svc *daemon.Service, caps *capability.Matrix) error {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return err
	}
	areas, err := cfg.AreaMask()
	if err != nil {
		return err
	}
	opt, err := optimizer.NewWithExclusions(cfg.ExcludeProcesses, reclaim.WithCapabilities(caps))
	if err != nil {
		return err
	}
	svc.Reconfigure(opt, areas, policyFromConfig(cfg.Daemon))
	return nil
}

// policyFromConfig converts the daemon config to a trigger policy.
func policyFromConfig(cfg config.DaemonConfig) trigger.Policy {
	return trigger.Policy{
		ScheduleEnabled:  cfg.Schedule.Enabled,
		Interval:         cfg.Schedule.Interval,
		LowMemoryEnabled: cfg.LowMemory.Enabled,
		ThresholdPercent: float64(cfg.LowMemory.ThresholdPercent),
		Cooldown:         cfg.LowMemory.Cooldown,
	}
}

// schedulerInterval is how often triggers are evaluated: the low-memory
// check interval, capped at one minute so schedules stay punctual.
func schedulerInterval(cfg config.DaemonConfig) time.Duration {
	interval := cfg.LowMemory.CheckInterval
	if interval <= 0 || interval > time.Minute {
		interval = time.Minute
	}
	return interval
}

// rotationConfig converts the config rotation settings for the logger.
func rotationConfig(cfg config.RotationConfig) logging.RotationConfig {
	rotation := logging.DefaultRotationConfig()
	rotation.MaxAge = cfg.MaxAge
	rotation.MaxBackups = cfg.MaxBackups
	rotation.Daily = cfg.Daily
	if size, err := logging.ParseSize(cfg.MaxSize); err == nil && size > 0 {
		rotation.MaxSize = size
	}
	return rotation
}
