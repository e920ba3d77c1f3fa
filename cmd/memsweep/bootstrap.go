package main

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/memsweep/pkg/client"
	"github.com/jamesainslie/memsweep/pkg/memsweep/config"
	"github.com/jamesainslie/memsweep/pkg/memsweep/logging"
	"github.com/jamesainslie/memsweep/pkg/memsweep/output"
)

// appConfig is the decoded configuration, set by initializeLogging.
var appConfig *config.Config

// initializeLogging is the root PersistentPreRunE. It creates the config,
// data and state directories, decodes the configuration and starts logging.
func initializeLogging(_ *cobra.Command, _ []string) error {
	if configErr != nil {
		return configErr
	}

	if err := config.EnsureConfigDir(); err != nil {
		return err
	}
	if err := config.EnsureDataDir(); err != nil {
		return err
	}
	if err := config.EnsureStateDir(); err != nil {
		return err
	}

	cfg, err := config.Decode(viper.GetViper())
	if err != nil {
		return err
	}
	appConfig = cfg

	consoleLevel := ""
	if getVerbose() {
		consoleLevel = "debug"
	}

	if err := logging.Init(logging.Config{
		Level:        cfg.Logging.Level,
		Path:         cfg.Logging.Path,
		Rotation:     parseRotationConfig(cfg.Logging.Rotation),
		Components:   cfg.Logging.Components,
		ConsoleLevel: consoleLevel,
		Quiet:        getQuiet(),
	}); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	logging.Get("cli").Debug("configuration loaded", "file", viper.ConfigFileUsed())
	return nil
}

// parseRotationConfig converts the config rotation settings, falling back to
// the default size when max_size is empty or unparsable.
func parseRotationConfig(cfg config.RotationConfig) logging.RotationConfig {
	rotation := logging.RotationConfig{
		MaxSize:    logging.DefaultRotationConfig().MaxSize,
		MaxAge:     cfg.MaxAge,
		MaxBackups: cfg.MaxBackups,
		Daily:      cfg.Daily,
	}
	if cfg.MaxSize == "" {
		return rotation
	}

	size, err := logging.ParseSize(cfg.MaxSize)
	if err == nil && size > 0 {
		rotation.MaxSize = size
	}
	return rotation
}

// daemonPaths returns the daemon paths for cfg. An explicit --config is
// handed to the daemon so both processes read the same file.
func daemonPaths(cfg *config.Config) client.DaemonPaths {
	var paths client.DaemonPaths
	if cfg != nil {
		paths = client.PathsFromConfig(cfg.Daemon)
	} else {
		paths = client.PathsFromConfig(config.DaemonConfig{})
	}
	paths.Config = cfgFile
	return paths
}

// maybeStartDaemon starts memsweepd when daemon.auto_start is set and it is
// not already running.
func maybeStartDaemon(cfg *config.Config) error {
	if cfg == nil || !cfg.Daemon.AutoStart {
		return nil
	}

	paths := daemonPaths(cfg)
	if client.IsDaemonRunning(paths.PID) {
		return nil
	}

	printVerbose("auto-starting daemon")
	return client.EnsureDaemon(paths)
}

// formatList returns the registered report formats for flag help.
func formatList() string {
	return strings.Join(output.Available(), ", ")
}

// newFormatter returns the formatter selected by -o, or by the config file.
func newFormatter() (output.Formatter, error) {
	format := viper.GetString("output")
	if format == "" {
		format = config.DefaultOutput
	}

	if format == "template" {
		tmpl := viper.GetString("template")
		if tmpl == "" {
			return nil, fmt.Errorf("--template is required when using -o template")
		}
		return output.NewTemplateFormatter(tmpl), nil
	}

	formatter, err := output.Get(format)
	if err != nil {
		return nil, fmt.Errorf("unknown output format %q: available formats are %v", format, output.Available())
	}
	return formatter, nil
}

// printReport formats and prints r.
func printReport(r *output.Report) error {
	formatter, err := newFormatter()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := formatter.Format(&buf, r); err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	fmt.Print(buf.String())
	return nil
}

// isPrettyOutput reports whether the report format is the interactive one.
func isPrettyOutput() bool {
	format := viper.GetString("output")
	return format == "" || format == "pretty"
}
