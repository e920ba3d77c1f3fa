package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jamesainslie/memsweep/pkg/memsweep/logging"
	"github.com/jamesainslie/memsweep/pkg/memsweep/types"
)

// ErrInterrupted is returned by Run when the user quits before the
// optimization finished. The optimization itself keeps running to completion.
var ErrInterrupted = errors.New("progress view closed before the optimization finished")

// Step is one progress notification.
type Step struct {
	Counter int
	Total   int
	Label   string
}

// StartFunc runs an optimization, reporting every notification to progress.
type StartFunc func(progress func(Step)) (*types.OptimizationRun, error)

// Options configures the progress view.
type Options struct {
	// Title is shown in the header.
	Title string

	// Areas is the requested mask, used to list pending steps.
	Areas types.MemoryArea

	// Reason is shown in the header.
	Reason types.OptimizationReason

	// Start runs the optimization. It is called once, off the UI goroutine.
	Start StartFunc

	// LogLines is the number of log lines shown under the step list.
	LogLines int
}

// StepMsg is sent for each progress notification.
type StepMsg Step

// CompleteMsg is sent when the optimization returns.
type CompleteMsg struct {
	Run *types.OptimizationRun
	Err error
}

// logMsg carries a log entry from the logging subscription.
type logMsg logging.LogEntry

// Model is the Bubble Tea model for the optimization progress view.
type Model struct {
	opts    Options
	spinner spinner.Model
	labels  []string
	step    Step

	stepCh chan Step
	logCh  <-chan logging.LogEntry
	logs   logTail

	startTime time.Time
	elapsed   time.Duration
	done      bool
	quit      bool
	run       *types.OptimizationRun
	err       error

	width  int
	height int
}

// NewModel creates a progress model for opts.
func NewModel(opts Options) Model {
	if opts.Title == "" {
		opts.Title = "memsweep"
	}
	if opts.LogLines <= 0 {
		opts.LogLines = 5
	}

	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = lipgloss.NewStyle().Foreground(primaryColor)

	labels := make([]string, 0, len(opts.Areas.Areas()))
	for _, area := range opts.Areas.Areas() {
		labels = append(labels, area.Label())
	}

	return Model{
		opts:      opts,
		spinner:   s,
		labels:    labels,
		step:      Step{Total: Total(opts.Areas)},
		stepCh:    make(chan Step, 16),
		logs:      newLogTail(opts.LogLines, logging.LevelInfo),
		startTime: time.Now(),
		width:     80,
		height:    24,
	}
}

// Total returns the number of notifications an optimization of areas emits:
// one per executed area plus the completion notice, or zero for no areas.
func Total(areas types.MemoryArea) int {
	n := len(areas.Areas())
	if n == 0 {
		return 0
	}
	return n + 1
}

// Init starts the spinner, the optimization and the listeners.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.start(),
		m.listenForSteps(),
		m.listenForLogs(),
	)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.quit = true
			return m, tea.Quit
		case "enter":
			if m.done {
				return m, tea.Quit
			}
		}
		return m, nil

	case StepMsg:
		m.step = Step(msg)
		return m, m.listenForSteps()

	case logMsg:
		m.logs.add(logging.LogEntry(msg))
		return m, m.listenForLogs()

	case CompleteMsg:
		m.done = true
		m.run = msg.Run
		m.err = msg.Err
		m.elapsed = time.Since(m.startTime)
		if m.step.Total > 0 {
			m.step.Counter = m.step.Total
		}
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// start runs the optimization in a command and reports its result.
func (m Model) start() tea.Cmd {
	stepCh := m.stepCh
	startFn := m.opts.Start
	return func() tea.Msg {
		defer close(stepCh)
		if startFn == nil {
			return CompleteMsg{Err: errors.New("no optimization to run")}
		}
		run, err := startFn(func(s Step) {
			select {
			case stepCh <- s:
			default:
			}
		})
		return CompleteMsg{Run: run, Err: err}
	}
}

func (m Model) listenForSteps() tea.Cmd {
	stepCh := m.stepCh
	return func() tea.Msg {
		s, ok := <-stepCh
		if !ok {
			return nil
		}
		return StepMsg(s)
	}
}

func (m Model) listenForLogs() tea.Cmd {
	logCh := m.logCh
	if logCh == nil {
		return nil
	}
	return func() tea.Msg {
		e, ok := <-logCh
		if !ok {
			return nil
		}
		return logMsg(e)
	}
}

// View renders the progress view.
func (m Model) View() string {
	contentWidth := m.width - 4
	if contentWidth < 40 {
		contentWidth = 40
	}

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(m.renderHeader(contentWidth))
	b.WriteString("\n")
	b.WriteString(renderDivider(contentWidth))
	b.WriteString("\n\n")

	b.WriteString(m.renderStatus(contentWidth))
	b.WriteString("\n\n")
	b.WriteString(m.renderProgressBar(contentWidth))
	b.WriteString("\n\n")
	b.WriteString(m.renderSteps())
	b.WriteString("\n")
	b.WriteString(renderDivider(contentWidth))
	b.WriteString("\n")
	b.WriteString(m.logs.render(contentWidth, m.opts.LogLines))

	return outerBoxStyle.Width(m.width - 2).Render(b.String())
}

func (m Model) renderHeader(width int) string {
	title := titleStyle.Render("  " + m.opts.Title)
	hint := mutedTextStyle.Render(fmt.Sprintf("reason: %s  [q to close]", m.opts.Reason))

	spacing := width - lipgloss.Width(title) - lipgloss.Width(hint)
	if spacing < 1 {
		spacing = 1
	}
	return title + strings.Repeat(" ", spacing) + hint
}

func (m Model) renderStatus(width int) string {
	switch {
	case m.done && m.err != nil:
		return errorTextStyle.Render(truncate(fmt.Sprintf("  Error: %v", m.err), width))
	case m.done && m.run != nil && m.run.Failed() > 0:
		return warningTextStyle.Render(fmt.Sprintf("  Finished with %d failed area(s) in %s",
			m.run.Failed(), formatElapsed(m.elapsed)))
	case m.done:
		return successTextStyle.Render(fmt.Sprintf("  Optimized in %s", formatElapsed(m.elapsed)))
	case m.step.Label == "":
		return fmt.Sprintf("  %s Starting", m.spinner.View())
	default:
		return fmt.Sprintf("  %s %s", m.spinner.View(), truncate(m.step.Label, width-6))
	}
}

// renderProgressBar renders a determinate bar from the notification counter.
func (m Model) renderProgressBar(width int) string {
	barWidth := width - 12
	if barWidth < 10 {
		barWidth = 10
	}

	filled := 0
	if m.step.Total > 0 {
		filled = barWidth * m.step.Counter / m.step.Total
	}
	if filled > barWidth {
		filled = barWidth
	}

	var bar strings.Builder
	bar.WriteString("  ")
	bar.WriteString(progressFillStyle.Render(strings.Repeat("█", filled)))
	bar.WriteString(progressEmptyStyle.Render(strings.Repeat("░", barWidth-filled)))
	bar.WriteString(fmt.Sprintf(" %d/%d", m.step.Counter, m.step.Total))
	return bar.String()
}

// renderSteps lists each area as done, active or pending. Area i is the
// active one while the counter equals i+1.
func (m Model) renderSteps() string {
	var b strings.Builder
	for i, label := range m.labels {
		var line string
		switch {
		case m.done || m.step.Counter > i+1:
			mark := successTextStyle.Render("✓")
			if o, ok := m.outcome(i); ok && !o.Success {
				mark = errorTextStyle.Render("✗")
			}
			line = fmt.Sprintf("  %s %s", mark, label)
		case m.step.Counter == i+1:
			line = activeStepStyle.Render(fmt.Sprintf("  › %s", label))
		default:
			line = mutedTextStyle.Render(fmt.Sprintf("  · %s", label))
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) outcome(i int) (types.OperationOutcome, bool) {
	if m.run == nil || i >= len(m.run.Outcomes) {
		return types.OperationOutcome{}, false
	}
	return m.run.Outcomes[i], true
}

// formatElapsed formats a duration with one decimal place of seconds.
func formatElapsed(d time.Duration) string {
	return types.FormatSeconds(d) + "s"
}

// Result returns the finished run and error.
func (m Model) Result() (*types.OptimizationRun, error) {
	return m.run, m.err
}

// IsDone reports whether the optimization returned.
func (m Model) IsDone() bool {
	return m.done
}

// Run shows the progress view until the optimization finishes and returns
// its result.
func Run(opts Options) (*types.OptimizationRun, error) {
	model := NewModel(opts)
	logCh := logging.Subscribe()
	defer logging.Unsubscribe(logCh)
	model.logCh = logCh

	p := tea.NewProgram(model)
	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("running progress view: %w", err)
	}

	m, ok := final.(Model)
	if !ok {
		return nil, errors.New("unexpected progress model")
	}
	if !m.done {
		return nil, ErrInterrupted
	}
	return m.Result()
}
