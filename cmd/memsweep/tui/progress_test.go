package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jamesainslie/memsweep/pkg/memsweep/logging"
	"github.com/jamesainslie/memsweep/pkg/memsweep/types"
)

func TestTotal(t *testing.T) {
	tests := []struct {
		name  string
		areas types.MemoryArea
		want  int
	}{
		{"none", types.AreaNone, 0},
		{"single", types.AreaRegistryCache, 2},
		{"two", types.AreaProcessesWorkingSet | types.AreaRegistryCache, 3},
		{"standby pair counts once", types.AreaStandbyList | types.AreaStandbyListLowPriority, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Total(tt.areas); got != tt.want {
				t.Errorf("Total(%s) = %d, want %d", tt.areas, got, tt.want)
			}
		})
	}
}

func TestNewModel(t *testing.T) {
	m := NewModel(Options{
		Areas:  types.AreaProcessesWorkingSet | types.AreaRegistryCache,
		Reason: types.ReasonManual,
	})

	if m.opts.Title != "memsweep" {
		t.Errorf("expected default title 'memsweep', got %q", m.opts.Title)
	}
	if m.opts.LogLines != 5 {
		t.Errorf("expected default 5 log lines, got %d", m.opts.LogLines)
	}
	if len(m.labels) != 2 {
		t.Fatalf("expected 2 labels, got %d", len(m.labels))
	}
	if m.labels[0] != "Processes Working Set" || m.labels[1] != "Registry Cache" {
		t.Errorf("unexpected labels: %v", m.labels)
	}
	if m.step.Total != 3 {
		t.Errorf("expected total 3, got %d", m.step.Total)
	}
	if m.IsDone() {
		t.Error("expected model not done initially")
	}
}

func TestModelStepAndComplete(t *testing.T) {
	m := NewModel(Options{Areas: types.AreaProcessesWorkingSet | types.AreaRegistryCache})

	updated, _ := m.Update(StepMsg{Counter: 1, Total: 3, Label: "Processes Working Set"})
	m = updated.(Model)
	if m.step.Counter != 1 || m.step.Label != "Processes Working Set" {
		t.Errorf("unexpected step: %+v", m.step)
	}

	run := &types.OptimizationRun{
		Outcomes: []types.OperationOutcome{
			{Area: types.AreaProcessesWorkingSet, Success: true},
			{Area: types.AreaRegistryCache, Cause: "denied"},
		},
	}
	updated, cmd := m.Update(CompleteMsg{Run: run})
	m = updated.(Model)

	if !m.IsDone() {
		t.Fatal("expected model done after CompleteMsg")
	}
	if m.step.Counter != m.step.Total {
		t.Errorf("expected counter to reach total, got %d/%d", m.step.Counter, m.step.Total)
	}
	if cmd == nil {
		t.Error("expected quit command after completion")
	}

	got, err := m.Result()
	if err != nil || got != run {
		t.Errorf("Result() = %v, %v", got, err)
	}

	view := m.View()
	if !strings.Contains(view, "1 failed area") {
		t.Errorf("expected failure summary in view:\n%s", view)
	}
}

func TestModelCompleteWithError(t *testing.T) {
	m := NewModel(Options{Areas: types.AreaRegistryCache})

	updated, _ := m.Update(CompleteMsg{Err: errors.New("daemon went away")})
	m = updated.(Model)

	if _, err := m.Result(); err == nil {
		t.Fatal("expected error from Result")
	}
	if !strings.Contains(m.View(), "daemon went away") {
		t.Error("expected error in view")
	}
}

func TestModelQuitKey(t *testing.T) {
	m := NewModel(Options{Areas: types.AreaRegistryCache})

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	m = updated.(Model)

	if !m.quit {
		t.Error("expected quit flag after ctrl+c")
	}
	if cmd == nil {
		t.Error("expected quit command")
	}
	if m.IsDone() {
		t.Error("quitting must not mark the optimization done")
	}
}

func TestModelWindowSize(t *testing.T) {
	m := NewModel(Options{Areas: types.AreaRegistryCache})

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m = updated.(Model)

	if m.width != 120 || m.height != 40 {
		t.Errorf("expected 120x40, got %dx%d", m.width, m.height)
	}
}

func TestModelStartReportsSteps(t *testing.T) {
	run := &types.OptimizationRun{ID: "run-1"}
	m := NewModel(Options{
		Areas: types.AreaRegistryCache,
		Start: func(progress func(Step)) (*types.OptimizationRun, error) {
			progress(Step{Counter: 1, Total: 2, Label: "Registry Cache"})
			progress(Step{Counter: 2, Total: 2, Label: "Optimized"})
			return run, nil
		},
	})

	msg := m.start()()
	complete, ok := msg.(CompleteMsg)
	if !ok {
		t.Fatalf("expected CompleteMsg, got %T", msg)
	}
	if complete.Run != run || complete.Err != nil {
		t.Errorf("unexpected completion: %+v", complete)
	}

	var labels []string
	for s := range m.stepCh {
		labels = append(labels, s.Label)
	}
	if strings.Join(labels, ",") != "Registry Cache,Optimized" {
		t.Errorf("unexpected steps: %v", labels)
	}
}

func TestModelStartWithoutFunc(t *testing.T) {
	m := NewModel(Options{Areas: types.AreaRegistryCache})

	msg := m.start()()
	complete, ok := msg.(CompleteMsg)
	if !ok || complete.Err == nil {
		t.Fatalf("expected CompleteMsg with error, got %#v", msg)
	}
}

func TestModelLogMsg(t *testing.T) {
	m := NewModel(Options{Areas: types.AreaRegistryCache, LogLines: 2})

	for _, text := range []string{"first", "second", "third"} {
		updated, _ := m.Update(logMsg{Time: time.Now(), Level: logging.LevelInfo, Component: "optimizer", Message: text})
		m = updated.(Model)
	}

	if len(m.logs.entries) != 2 {
		t.Fatalf("expected 2 retained entries, got %d", len(m.logs.entries))
	}
	if m.logs.entries[0].Message != "second" {
		t.Errorf("expected oldest retained entry 'second', got %q", m.logs.entries[0].Message)
	}
}

func TestRenderStepsMarksActive(t *testing.T) {
	m := NewModel(Options{Areas: types.AreaProcessesWorkingSet | types.AreaRegistryCache})
	m.step = Step{Counter: 2, Total: 3, Label: "Registry Cache"}

	lines := strings.Split(strings.TrimRight(m.renderSteps(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 step lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "✓") {
		t.Errorf("expected first step done: %q", lines[0])
	}
	if !strings.Contains(lines[1], "›") {
		t.Errorf("expected second step active: %q", lines[1])
	}
}
