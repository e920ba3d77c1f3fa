package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/memsweep/pkg/memsweep/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage memsweep configuration settings.

Configuration is loaded from:
  1. $XDG_CONFIG_HOME/memsweep/config.yaml (if set)
  2. ~/.config/memsweep/config.yaml

Environment variables can override config file settings using the MEMSWEEP_ prefix:
  MEMSWEEP_OUTPUT=json
  MEMSWEEP_DAEMON_LOW_MEMORY_THRESHOLD_PERCENT=85
  MEMSWEEP_LOGGING_LEVEL=debug`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current configuration settings from all sources.`,
	RunE:  runConfigShow,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit configuration file",
	Long: `Open the configuration file in your default editor.

The editor is determined by:
  1. $VISUAL environment variable
  2. $EDITOR environment variable
  3. Falls back to 'vi' ('notepad' on Windows)

If the config file doesn't exist, a default one will be created first.`,
	RunE: runConfigEdit,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration file",
	Long:  `Create a default configuration file if one doesn't exist.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Long:  `Display the path to the configuration file.`,
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// envOverrides lists the environment variables that override config keys.
var envOverrides = []struct {
	name string
	key  string
}{
	{"MEMSWEEP_AREAS", "areas"},
	{"MEMSWEEP_EXCLUDE_PROCESSES", "exclude_processes"},
	{"MEMSWEEP_OUTPUT", "output"},
	{"MEMSWEEP_LOGGING_LEVEL", "logging.level"},
	{"MEMSWEEP_LOGGING_PATH", "logging.path"},
	{"MEMSWEEP_DAEMON_AUTO_START", "daemon.auto_start"},
	{"MEMSWEEP_DAEMON_SOCKET_PATH", "daemon.socket_path"},
	{"MEMSWEEP_DAEMON_PID_PATH", "daemon.pid_path"},
	{"MEMSWEEP_DAEMON_SCHEDULE_ENABLED", "daemon.schedule.enabled"},
	{"MEMSWEEP_DAEMON_SCHEDULE_INTERVAL", "daemon.schedule.interval"},
	{"MEMSWEEP_DAEMON_LOW_MEMORY_ENABLED", "daemon.low_memory.enabled"},
	{"MEMSWEEP_DAEMON_LOW_MEMORY_THRESHOLD_PERCENT", "daemon.low_memory.threshold_percent"},
	{"MEMSWEEP_DAEMON_LOW_MEMORY_CHECK_INTERVAL", "daemon.low_memory.check_interval"},
	{"MEMSWEEP_DAEMON_LOW_MEMORY_COOLDOWN", "daemon.low_memory.cooldown"},
}

// formatConfig renders the settings shown by config show.
func formatConfig(cfg *config.Config) string {
	var b strings.Builder
	line := func(key string, value any) {
		fmt.Fprintf(&b, "%-36s %v\n", key+":", value)
	}

	line("areas", strings.Join(cfg.Areas, ", "))
	line("exclude_processes", strings.Join(cfg.ExcludeProcesses, ", "))
	line("output", cfg.Output)
	line("logging.level", cfg.Logging.Level)
	line("logging.path", displayPath(cfg.Logging.Path, config.DefaultLogPath()))
	line("logging.rotation.max_size", cfg.Logging.Rotation.MaxSize)
	line("logging.rotation.max_age", fmt.Sprintf("%d days", cfg.Logging.Rotation.MaxAge))
	line("logging.rotation.max_backups", cfg.Logging.Rotation.MaxBackups)
	line("logging.rotation.daily", cfg.Logging.Rotation.Daily)
	line("daemon.auto_start", cfg.Daemon.AutoStart)
	line("daemon.socket_path", displayPath(cfg.Daemon.SocketPath, config.DefaultSocketPath()))
	line("daemon.pid_path", displayPath(cfg.Daemon.PIDPath, config.DefaultPIDPath()))
	line("daemon.schedule.enabled", cfg.Daemon.Schedule.Enabled)
	line("daemon.schedule.interval", cfg.Daemon.Schedule.Interval)
	line("daemon.low_memory.enabled", cfg.Daemon.LowMemory.Enabled)
	line("daemon.low_memory.threshold_percent", fmt.Sprintf("%d%%", cfg.Daemon.LowMemory.ThresholdPercent))
	line("daemon.low_memory.check_interval", cfg.Daemon.LowMemory.CheckInterval)
	line("daemon.low_memory.cooldown", cfg.Daemon.LowMemory.Cooldown)
	return b.String()
}

// displayPath shows the default a blank path resolves to.
func displayPath(path, def string) string {
	if path == "" {
		return def + " (default)"
	}
	return path
}

// runConfigShow displays the current configuration.
func runConfigShow(_ *cobra.Command, _ []string) error {
	cfg := appConfig
	if cfg == nil {
		v := viper.New()
		config.SetDefaults(v)
		var err error
		if cfg, err = config.Decode(v); err != nil {
			return err
		}
	}

	if configFile := viper.ConfigFileUsed(); configFile != "" {
		fmt.Printf("Config file: %s\n\n", configFile)
	} else {
		fmt.Println("Config file: (using defaults, no file found)")
		fmt.Println()
	}

	fmt.Println("Current Configuration:")
	fmt.Println("----------------------")
	fmt.Print(formatConfig(cfg))

	fmt.Println("\nEnvironment Overrides:")
	fmt.Println("----------------------")
	anyOverrides := false
	for _, ev := range envOverrides {
		if val := os.Getenv(ev.name); val != "" {
			fmt.Printf("%s=%s\n", ev.name, val)
			anyOverrides = true
		}
	}
	if !anyOverrides {
		fmt.Println("(none)")
	}

	return nil
}

// editorCommand returns the user's editor.
func editorCommand() string {
	if editor := os.Getenv("VISUAL"); editor != "" {
		return editor
	}
	if editor := os.Getenv("EDITOR"); editor != "" {
		return editor
	}
	return defaultEditor
}

// runConfigEdit opens the config file in an editor.
func runConfigEdit(_ *cobra.Command, _ []string) error {
	configPath, err := config.WriteDefault()
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	editor := editorCommand()
	printVerbose("Opening %s with %s", configPath, editor)

	editorCmd := exec.Command(editor, configPath) //nolint:gosec // editor comes from the user's environment
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr

	if err := editorCmd.Run(); err != nil {
		return fmt.Errorf("editor command failed: %w", err)
	}

	return nil
}

// runConfigInit creates a default config file.
func runConfigInit(_ *cobra.Command, _ []string) error {
	configPath, err := config.ConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		printInfo("Config file already exists: %s", configPath)
		printInfo("Use 'memsweep config edit' to modify it.")
		return nil
	}

	if _, err := config.WriteDefault(); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	printInfo("Created default config file: %s", configPath)
	return nil
}

// runConfigPath shows the config file path.
func runConfigPath(_ *cobra.Command, _ []string) error {
	configPath, err := config.ConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	fmt.Println(configPath)

	if _, err := os.Stat(configPath); err == nil {
		printVerbose("File exists")
	} else if os.IsNotExist(err) {
		printVerbose("File does not exist (will use defaults)")
	}

	return nil
}
