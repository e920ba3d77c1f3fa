package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/jamesainslie/memsweep/pkg/memsweep/types"
)

// AppName names the config, data and state directories.
const AppName = "memsweep"

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Daily      bool   `mapstructure:"daily"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Path       string            `mapstructure:"path"`
	Rotation   RotationConfig    `mapstructure:"rotation"`
	Components map[string]string `mapstructure:"components"`
}

// ScheduleConfig configures periodic optimization.
type ScheduleConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// LowMemoryConfig configures optimization when memory load is high.
type LowMemoryConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	ThresholdPercent int           `mapstructure:"threshold_percent"`
	CheckInterval    time.Duration `mapstructure:"check_interval"`
	Cooldown         time.Duration `mapstructure:"cooldown"`
}

// DaemonConfig configures the background daemon.
type DaemonConfig struct {
	AutoStart  bool            `mapstructure:"auto_start"`
	BinaryPath string          `mapstructure:"binary_path"` // Path to memsweepd (auto-discovered if empty)
	SocketPath string          `mapstructure:"socket_path"`
	PIDPath    string          `mapstructure:"pid_path"`
	Schedule   ScheduleConfig  `mapstructure:"schedule"`
	LowMemory  LowMemoryConfig `mapstructure:"low_memory"`
}

// Config represents the application configuration.
type Config struct {
	Areas            []string      `mapstructure:"areas"`
	ExcludeProcesses []string      `mapstructure:"exclude_processes"`
	Output           string        `mapstructure:"output"`
	Logging          LoggingConfig `mapstructure:"logging"`
	Daemon           DaemonConfig  `mapstructure:"daemon"`
}

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// AreaMask parses Areas into a mask.
func (c *Config) AreaMask() (types.MemoryArea, error) {
	return types.ParseAreaList(c.Areas)
}

// Validate checks values that cannot be expressed by defaults alone.
func (c *Config) Validate() error {
	if _, err := c.AreaMask(); err != nil {
		return fmt.Errorf("%w: areas: %w", ErrInvalidConfig, err)
	}
	lm := c.Daemon.LowMemory
	if lm.Enabled {
		if lm.ThresholdPercent < 1 || lm.ThresholdPercent > 100 {
			return fmt.Errorf("%w: daemon.low_memory.threshold_percent must be between 1 and 100, got %d",
				ErrInvalidConfig, lm.ThresholdPercent)
		}
		if lm.CheckInterval <= 0 {
			return fmt.Errorf("%w: daemon.low_memory.check_interval must be positive", ErrInvalidConfig)
		}
	}
	if c.Daemon.Schedule.Enabled && c.Daemon.Schedule.Interval < time.Minute {
		return fmt.Errorf("%w: daemon.schedule.interval must be at least 1m, got %s",
			ErrInvalidConfig, c.Daemon.Schedule.Interval)
	}
	return nil
}

// Configure prepares v: config file search paths (or the explicit cfgFile),
// the MEMSWEEP_ environment prefix and defaults, then reads the file.
// A missing config file is not an error.
func Configure(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		if _, err := os.Stat(cfgFile); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		dir, err := ConfigDir()
		if err != nil {
			return err
		}
		v.AddConfigPath(dir)
	}

	v.SetEnvPrefix("MEMSWEEP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return nil
}

// SetDefaults registers every default value on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("areas", DefaultAreas)
	v.SetDefault("exclude_processes", DefaultExcludedProcesses)
	v.SetDefault("output", DefaultOutput)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "") // Empty means use DefaultLogPath
	v.SetDefault("logging.rotation.max_size", "10MB")
	v.SetDefault("logging.rotation.max_age", 30)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.rotation.daily", true)
	v.SetDefault("logging.components", map[string]string{
		"daemon":    "info",
		"optimizer": "info",
		"reclaim":   "info",
		"privilege": "warn",
		"watcher":   "warn",
	})

	v.SetDefault("daemon.auto_start", false)
	v.SetDefault("daemon.socket_path", "")
	v.SetDefault("daemon.pid_path", "")
	v.SetDefault("daemon.schedule.enabled", false)
	v.SetDefault("daemon.schedule.interval", DefaultScheduleInterval)
	v.SetDefault("daemon.low_memory.enabled", true)
	v.SetDefault("daemon.low_memory.threshold_percent", DefaultLowMemoryThreshold)
	v.SetDefault("daemon.low_memory.check_interval", DefaultLowMemoryCheckInterval)
	v.SetDefault("daemon.low_memory.cooldown", DefaultLowMemoryCooldown)
}

// Decode unmarshals and validates the configuration held by v.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var err error
	if cfg.Logging.Path, err = ExpandPath(cfg.Logging.Path); err != nil {
		return nil, err
	}
	if cfg.Daemon.SocketPath, err = ExpandPath(cfg.Daemon.SocketPath); err != nil {
		return nil, err
	}
	if cfg.Daemon.PIDPath, err = ExpandPath(cfg.Daemon.PIDPath); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load loads configuration from file and environment variables.
// Config file locations (in order of precedence):
//   - $XDG_CONFIG_HOME/memsweep/config.yaml
//   - $HOME/.config/memsweep/config.yaml
//
// Environment variables are prefixed with MEMSWEEP_ (e.g., MEMSWEEP_OUTPUT).
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile loads configuration from an explicit file, or from the default
// locations when path is empty.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	if err := Configure(v, path); err != nil {
		return nil, err
	}
	return Decode(v)
}

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, AppName), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", AppName), nil
}

// ConfigPath returns the default config file path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// EnsureConfigDir creates the config directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return nil
}

// WriteDefault writes a default config file if none exists and returns its
// path. An existing file is left untouched.
func WriteDefault() (string, error) {
	if err := EnsureConfigDir(); err != nil {
		return "", err
	}

	configPath, err := ConfigPath()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(configPath); err == nil {
		return configPath, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to check config file: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(defaultConfigTemplate()), 0o644); err != nil {
		return "", fmt.Errorf("failed to write default config: %w", err)
	}

	return configPath, nil
}

func defaultConfigTemplate() string {
	var areas, excludes strings.Builder
	for _, a := range DefaultAreas {
		fmt.Fprintf(&areas, "  - %s\n", a)
	}
	for _, p := range DefaultExcludedProcesses {
		fmt.Fprintf(&excludes, "  - %s\n", p)
	}

	return fmt.Sprintf(`# memsweep configuration

# Memory areas optimized when none are given on the command line.
# processes, system, modified, standby, standby-low, combined,
# modified-file-cache, file-cache, registry (or "all")
areas:
%s
# Processes whose working set is never trimmed (names or glob patterns)
exclude_processes:
%s
# Report format: pretty, plain, json, yaml, template
output: %s

# Logging configuration
logging:
  # Log level: debug, info, warn, error
  level: info
  # Log file path (empty means use default: $XDG_STATE_HOME/memsweep/memsweep.log)
  path: ""
  rotation:
    max_size: 10MB
    max_age: 30       # days
    max_backups: 5
    daily: true
  components:
    daemon: info
    optimizer: info
    reclaim: info
    privilege: warn
    watcher: warn

# Daemon configuration
daemon:
  # Start memsweepd automatically for "memsweep daemon optimize"
  auto_start: false
  # Socket path (empty means $XDG_DATA_HOME/memsweep/memsweep.sock; named pipe on Windows)
  socket_path: ""
  # PID file path (empty means $XDG_DATA_HOME/memsweep/memsweep.pid)
  pid_path: ""
  schedule:
    enabled: false
    interval: %s
  low_memory:
    enabled: true
    threshold_percent: %d
    check_interval: %s
    cooldown: %s
`, areas.String(), excludes.String(), DefaultOutput,
		DefaultScheduleInterval, DefaultLowMemoryThreshold,
		DefaultLowMemoryCheckInterval, DefaultLowMemoryCooldown)
}

// ExpandPath expands ~ in a path to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, path[1:]), nil
}

// DataDir returns $XDG_DATA_HOME/memsweep/ for the socket, pid and status files.
func DataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// StateDir returns $XDG_STATE_HOME/memsweep/ for log files.
func StateDir() string {
	return filepath.Join(xdg.StateHome, AppName)
}

// DefaultSocketPath returns the default daemon address: a unix socket under
// DataDir, or a named pipe on Windows.
func DefaultSocketPath() string {
	return defaultSocketPath()
}

// DaemonBinaryName is the daemon executable name, without extension.
const DaemonBinaryName = "memsweepd"

// DefaultBinaryPath returns the daemon binary from the standard Go install
// locations (GOBIN, GOPATH/bin, ~/go/bin), or "" if none has it.
func DefaultBinaryPath() string {
	var dirs []string
	if gobin := os.Getenv("GOBIN"); gobin != "" {
		dirs = append(dirs, gobin)
	}
	if gopath := os.Getenv("GOPATH"); gopath != "" {
		for _, p := range filepath.SplitList(gopath) {
			dirs = append(dirs, filepath.Join(p, "bin"))
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, "go", "bin"))
	}

	for _, dir := range dirs {
		candidate := filepath.Join(dir, DaemonBinaryName+binaryExt)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}

// DefaultPIDPath returns the default PID file path.
func DefaultPIDPath() string {
	return filepath.Join(DataDir(), AppName+".pid")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(StateDir(), AppName+".log")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	if err := os.MkdirAll(DataDir(), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	return nil
}

// EnsureStateDir creates the state directory if it doesn't exist.
func EnsureStateDir() error {
	if err := os.MkdirAll(StateDir(), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	return nil
}
