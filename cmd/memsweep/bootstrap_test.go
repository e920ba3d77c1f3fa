package main

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/spf13/viper"

	"github.com/jamesainslie/memsweep/pkg/memsweep/config"
	"github.com/jamesainslie/memsweep/pkg/memsweep/logging"
)

func TestParseRotationConfig(t *testing.T) {
	tests := []struct {
		name     string
		input    config.RotationConfig
		expected logging.RotationConfig
	}{
		{
			name:  "default values",
			input: config.RotationConfig{MaxSize: "10MB", MaxAge: 30, MaxBackups: 5, Daily: true},
			expected: logging.RotationConfig{
				MaxSize:    10 * 1024 * 1024,
				MaxAge:     30,
				MaxBackups: 5,
				Daily:      true,
			},
		},
		{
			name:  "custom size in gigabytes",
			input: config.RotationConfig{MaxSize: "1G", MaxAge: 7, MaxBackups: 3},
			expected: logging.RotationConfig{
				MaxSize:    1024 * 1024 * 1024,
				MaxAge:     7,
				MaxBackups: 3,
			},
		},
		{
			name:  "explicit IEC unit",
			input: config.RotationConfig{MaxSize: "512KiB", MaxAge: 1},
			expected: logging.RotationConfig{
				MaxSize: 512 * 1024,
				MaxAge:  1,
			},
		},
		{
			name:  "empty max_size uses default",
			input: config.RotationConfig{MaxSize: "", MaxAge: 14, MaxBackups: 2, Daily: true},
			expected: logging.RotationConfig{
				MaxSize:    10 * 1024 * 1024,
				MaxAge:     14,
				MaxBackups: 2,
				Daily:      true,
			},
		},
		{
			name:  "invalid max_size uses default",
			input: config.RotationConfig{MaxSize: "invalid", MaxAge: 21, MaxBackups: 4},
			expected: logging.RotationConfig{
				MaxSize:    10 * 1024 * 1024,
				MaxAge:     21,
				MaxBackups: 4,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseRotationConfig(tt.input)

			if result.MaxSize != tt.expected.MaxSize {
				t.Errorf("MaxSize = %d, want %d", result.MaxSize, tt.expected.MaxSize)
			}
			if result.MaxAge != tt.expected.MaxAge {
				t.Errorf("MaxAge = %d, want %d", result.MaxAge, tt.expected.MaxAge)
			}
			if result.MaxBackups != tt.expected.MaxBackups {
				t.Errorf("MaxBackups = %d, want %d", result.MaxBackups, tt.expected.MaxBackups)
			}
			if result.Daily != tt.expected.Daily {
				t.Errorf("Daily = %v, want %v", result.Daily, tt.expected.Daily)
			}
		})
	}
}

func TestInitializeLoggingEnsuresDirectories(t *testing.T) {
	// XDG paths are resolved at package init, so the real directories are used.
	if err := initializeLogging(nil, nil); err != nil {
		t.Fatalf("initializeLogging() returned error: %v", err)
	}
	t.Cleanup(func() { _ = logging.Close() })

	configDir, err := config.ConfigDir()
	if err != nil {
		t.Fatalf("failed to get config dir: %v", err)
	}
	for _, dir := range []string{configDir, config.DataDir(), config.StateDir()} {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			t.Errorf("directory was not created: %s", dir)
		}
	}

	if appConfig == nil {
		t.Fatal("expected appConfig to be set")
	}
}

func TestInitializeLoggingReportsConfigError(t *testing.T) {
	prev := configErr
	t.Cleanup(func() { configErr = prev })

	configErr = os.ErrNotExist
	if err := initializeLogging(nil, nil); err == nil {
		t.Fatal("expected config error to be returned")
	}
}

func TestMaybeStartDaemonDisabled(t *testing.T) {
	if err := maybeStartDaemon(nil); err != nil {
		t.Errorf("maybeStartDaemon(nil) = %v", err)
	}

	cfg := &config.Config{Daemon: config.DaemonConfig{AutoStart: false}}
	if err := maybeStartDaemon(cfg); err != nil {
		t.Errorf("maybeStartDaemon() with auto_start off = %v", err)
	}
}

func TestMaybeStartDaemonAlreadyRunning(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "memsweep.pid")
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		t.Fatalf("failed to write PID file: %v", err)
	}

	cfg := &config.Config{
		Daemon: config.DaemonConfig{
			AutoStart: true,
			PIDPath:   pidPath,
		},
	}

	if err := maybeStartDaemon(cfg); err != nil {
		t.Errorf("maybeStartDaemon() returned error when daemon is running: %v", err)
	}
}

func TestMaybeStartDaemonMissingBinary(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Daemon: config.DaemonConfig{
			AutoStart:  true,
			BinaryPath: filepath.Join(dir, "no-such-memsweepd"),
			PIDPath:    filepath.Join(dir, "memsweep.pid"),
		},
	}

	if err := maybeStartDaemon(cfg); err == nil {
		t.Error("expected an error for a missing daemon binary")
	}
}

func TestDaemonPathsPassesExplicitConfig(t *testing.T) {
	prev := cfgFile
	t.Cleanup(func() { cfgFile = prev })

	cfgFile = "/etc/memsweep/config.yaml"
	paths := daemonPaths(&config.Config{Daemon: config.DaemonConfig{PIDPath: "/run/memsweep.pid"}})

	if paths.Config != cfgFile {
		t.Errorf("Config = %q, want %q", paths.Config, cfgFile)
	}
	if paths.PID != "/run/memsweep.pid" {
		t.Errorf("PID = %q, want /run/memsweep.pid", paths.PID)
	}
	if paths.Socket == "" {
		t.Error("expected default socket path")
	}

	if daemonPaths(nil).PID != config.DefaultPIDPath() {
		t.Error("expected default PID path for nil config")
	}
}

func TestNewFormatter(t *testing.T) {
	t.Cleanup(func() {
		viper.Set("output", nil)
		viper.Set("template", nil)
	})

	viper.Set("output", "json")
	if _, err := newFormatter(); err != nil {
		t.Errorf("newFormatter(json) = %v", err)
	}

	viper.Set("output", "nope")
	if _, err := newFormatter(); err == nil {
		t.Error("expected error for unknown format")
	}

	viper.Set("output", "template")
	if _, err := newFormatter(); err == nil {
		t.Error("expected error for template without --template")
	}

	viper.Set("template", "{{.OSVersion}}")
	if _, err := newFormatter(); err != nil {
		t.Errorf("newFormatter(template) = %v", err)
	}
}
