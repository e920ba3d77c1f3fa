package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jamesainslie/memsweep/pkg/memsweep/config"
	"github.com/jamesainslie/memsweep/pkg/memsweep/logging"
)

func TestPolicyFromConfig(t *testing.T) {
	cfg := config.DaemonConfig{
		Schedule: config.ScheduleConfig{Enabled: true, Interval: 2 * time.Hour},
		LowMemory: config.LowMemoryConfig{
			Enabled:          true,
			ThresholdPercent: 85,
			CheckInterval:    30 * time.Second,
			Cooldown:         10 * time.Minute,
		},
	}

	p := policyFromConfig(cfg)
	if !p.ScheduleEnabled || p.Interval != 2*time.Hour {
		t.Errorf("schedule = %v every %v, want enabled every 2h", p.ScheduleEnabled, p.Interval)
	}
	if !p.LowMemoryEnabled {
		t.Error("low memory trigger should be enabled")
	}
	if p.ThresholdPercent != 85 {
		t.Errorf("ThresholdPercent = %v, want 85", p.ThresholdPercent)
	}
	if p.Cooldown != 10*time.Minute {
		t.Errorf("Cooldown = %v, want 10m", p.Cooldown)
	}
}

func TestSchedulerInterval(t *testing.T) {
	tests := []struct {
		name  string
		check time.Duration
		want  time.Duration
	}{
		{"unset", 0, time.Minute},
		{"negative", -time.Second, time.Minute},
		{"short", 15 * time.Second, 15 * time.Second},
		{"capped", 5 * time.Minute, time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DaemonConfig{LowMemory: config.LowMemoryConfig{CheckInterval: tt.check}}
			if got := schedulerInterval(cfg); got != tt.want {
				t.Errorf("schedulerInterval() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRotationConfig(t *testing.T) {
	got := rotationConfig(config.RotationConfig{MaxSize: "5MB", MaxAge: 7, MaxBackups: 2})
	if got.MaxSize != 5*1024*1024 {
		t.Errorf("MaxSize = %d, want 5MiB", got.MaxSize)
	}
	if got.MaxAge != 7 || got.MaxBackups != 2 || got.Daily {
		t.Errorf("rotation = %+v", got)
	}

	got = rotationConfig(config.RotationConfig{MaxSize: "bogus"})
	if got.MaxSize != logging.DefaultRotationConfig().MaxSize {
		t.Errorf("invalid size should keep the default, got %d", got.MaxSize)
	}
}

func TestReload_InvalidConfigKeepsService(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("areas: [nonsense]\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	// An invalid area list is rejected before the service is touched.
	if err := reload(path, nil, nil); err == nil {
		t.Error("reload() should fail for an unknown area")
	}
}

func TestRootCmd_ConfigFlag(t *testing.T) {
	cmd := newRootCmd()
	f := cmd.Flags().Lookup("config")
	if f == nil {
		t.Fatal("--config flag not registered")
	}
	if f.DefValue != "" {
		t.Errorf("--config default = %q, want empty", f.DefValue)
	}
	if err := cmd.Args(cmd, []string{"extra"}); err == nil {
		t.Error("positional arguments should be rejected")
	}
}
