package output

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jamesainslie/memsweep/pkg/memsweep/types"
)

// PrettyFormatter formats output with colors and styling using lipgloss.
// It produces a visually appealing output suitable for terminal display.
type PrettyFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *Report) error {
	w.WriteString(f.formatHeader(r))
	w.WriteString("\n")

	if r.HasRun() {
		w.WriteString(f.formatOutcomes(r.Run))
		w.WriteString(f.formatFooter(r))
		if failures := f.formatFailures(r.Run); failures != "" {
			w.WriteString("\n")
			w.WriteString(failures)
		}
	} else {
		w.WriteString(f.formatAreas(r.Areas))
	}

	if len(r.Warnings) > 0 {
		w.WriteString("\n")
		w.WriteString(f.formatWarnings(r.Warnings))
	}

	return nil
}

// formatHeader builds the header box with host and memory information.
func (f *PrettyFormatter) formatHeader(r *Report) string {
	var lines []string

	if r.OSVersion != "" {
		lines = append(lines, fmt.Sprintf("%s %s", LabelStyle.Render("System:"), ValueStyle.Render(r.OSVersion)))
	}

	current := r.Current()
	if !current.IsZero() {
		memory := fmt.Sprintf("%s %s  %s %s",
			LabelStyle.Render("Available:"),
			SizeStyle.Render(types.FormatSize(current.AvailablePhysical)),
			LabelStyle.Render("of"),
			ValueStyle.Render(types.FormatSize(current.TotalPhysical)))
		lines = append(lines, memory+"  "+f.formatLoad(r))
	}

	lines = append(lines, f.formatDaemonStatus(r.DaemonUp))

	return HeaderBox.Render(strings.Join(lines, "\n"))
}

// formatLoad renders the memory load, with the before value when it changed.
func (f *PrettyFormatter) formatLoad(r *Report) string {
	label := LabelStyle.Render("Load:")
	if r.Before.IsZero() || r.After.IsZero() {
		return fmt.Sprintf("%s %s", label, loadStyle(r.Current().UsedPercent()).Render(fmt.Sprintf("%.0f%%", r.Current().UsedPercent())))
	}
	before := loadStyle(r.Before.UsedPercent()).Render(fmt.Sprintf("%.0f%%", r.Before.UsedPercent()))
	after := loadStyle(r.After.UsedPercent()).Render(fmt.Sprintf("%.0f%%", r.After.UsedPercent()))
	return fmt.Sprintf("%s %s %s %s", label, before, MutedStyle.Render("->"), after)
}

// formatDaemonStatus returns a styled string indicating daemon status.
func (f *PrettyFormatter) formatDaemonStatus(daemonUp bool) string {
	if !daemonUp {
		return MutedStyle.Render("daemon: off")
	}
	return LabelStyle.Render("daemon: ") + SuccessStyle.Render("up")
}

// formatOutcomes builds the per-area result table.
func (f *PrettyFormatter) formatOutcomes(run *types.OptimizationRun) string {
	if len(run.Outcomes) == 0 {
		return MutedStyle.Render("  No memory areas selected\n")
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("  %s  %s  %s\n",
		TableHeaderStyle.Render(padRight("STATUS", 11)),
		TableHeaderStyle.Render(padLeft("TIME", 6)),
		TableHeaderStyle.Render("AREA")))

	for _, o := range run.Outcomes {
		status := padRight(outcomeStatus(o), 11)
		switch {
		case o.Success:
			status = SuccessStyle.Render(status)
		case outcomeStatus(o) == "unsupported":
			status = MutedStyle.Render(status)
		default:
			status = ErrorStyle.Render(status)
		}
		elapsed := MutedStyle.Render(padLeft(types.FormatSeconds(o.Elapsed)+"s", 6))
		sb.WriteString(fmt.Sprintf("  %s  %s  %s\n", status, elapsed, AreaStyle.Render(o.Area.Label())))
	}

	return sb.String()
}

// formatAreas builds the capability table for a status report.
func (f *PrettyFormatter) formatAreas(areas []AreaInfo) string {
	if len(areas) == 0 {
		return ""
	}

	width := 0
	for _, a := range areas {
		width = max(width, len(a.Label))
	}

	var sb strings.Builder
	sb.WriteString("  " + TitleStyle.Render("Memory areas") + "\n")
	sb.WriteString(fmt.Sprintf("  %s  %s  %s\n",
		TableHeaderStyle.Render(padRight("AREA", width)),
		TableHeaderStyle.Render(padRight("SUPPORT", 11)),
		TableHeaderStyle.Render("PRIVILEGE")))

	for _, a := range areas {
		support := SuccessStyle.Render(padRight("supported", 11))
		if !a.Supported {
			support = MutedStyle.Render(padRight("needs "+a.Minimum, 11))
		}
		privilege := a.Privilege
		if privilege == "" {
			privilege = "-"
		}
		sb.WriteString(fmt.Sprintf("  %s  %s  %s\n",
			AreaStyle.Render(padRight(a.Label, width)), support, MutedStyle.Render(privilege)))
	}

	return sb.String()
}

// formatFooter builds the footer box with the run summary.
func (f *PrettyFormatter) formatFooter(r *Report) string {
	run := r.Run
	var parts []string

	parts = append(parts, fmt.Sprintf("%s %s", LabelStyle.Render("Optimized:"),
		ValueStyle.Render(fmt.Sprintf("%d/%d", run.Succeeded(), len(run.Outcomes)))))

	parts = append(parts, fmt.Sprintf("%s %s", LabelStyle.Render("Time:"),
		ValueStyle.Render(types.FormatSeconds(run.Total)+"s")))

	if freed := r.Freed(); freed != 0 || !r.After.IsZero() {
		style := SizeStyle
		if freed < 0 {
			style = WarningStyle
		}
		parts = append(parts, fmt.Sprintf("%s %s", LabelStyle.Render("Freed:"), style.Render(formatSigned(freed))))
	}

	parts = append(parts, MutedStyle.Render(run.Reason.String()))

	return FooterBox.Render(strings.Join(parts, "  "))
}

// formatFailures boxes the causes of areas that failed. Unsupported areas
// are left to the outcome table.
func (f *PrettyFormatter) formatFailures(run *types.OptimizationRun) string {
	var lines []string
	for _, o := range run.Outcomes {
		if o.Success || outcomeStatus(o) == "unsupported" {
			continue
		}
		cause := o.Cause
		if cause == "" {
			cause = "unknown error"
		}
		lines = append(lines, fmt.Sprintf("%s %s", AreaStyle.Render(o.Area.Label()+":"), ErrorStyle.Render(cause)))
	}
	if len(lines) == 0 {
		return ""
	}

	title := TitleStyle.Foreground(ColorDanger).Render("Failed areas")
	return FailureBox.Render(title+"\n"+strings.Join(lines, "\n")) + "\n"
}

// formatWarnings builds a warning block.
func (f *PrettyFormatter) formatWarnings(warnings []string) string {
	var sb strings.Builder

	titleStyle := WarningStyle.Bold(true)
	sb.WriteString(titleStyle.Render("Warnings:"))
	sb.WriteString("\n")

	for _, warning := range warnings {
		sb.WriteString(WarningStyle.Render("  " + warning))
		sb.WriteString("\n")
	}

	return sb.String()
}

// padLeft pads a string with spaces on the left to achieve the desired width.
func padLeft(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(" ", width-len(s)) + s
}

// padRight pads a string with spaces on the right to achieve the desired width.
func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

// Ensure PrettyFormatter implements Formatter.
var _ Formatter = (*PrettyFormatter)(nil)
