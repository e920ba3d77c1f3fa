package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jamesainslie/memsweep/pkg/memsweep/logging"
)

// logTail keeps the most recent log entries shown under the progress bar.
type logTail struct {
	entries  []logging.LogEntry
	capacity int
	minLevel logging.Level
}

func newLogTail(capacity int, minLevel logging.Level) logTail {
	if capacity < 1 {
		capacity = 1
	}
	return logTail{
		entries:  make([]logging.LogEntry, 0, capacity),
		capacity: capacity,
		minLevel: minLevel,
	}
}

// add records entry if it is at or above the tail's level.
func (t *logTail) add(entry logging.LogEntry) {
	if entry.Level < t.minLevel {
		return
	}
	if len(t.entries) >= t.capacity {
		t.entries = t.entries[1:]
	}
	t.entries = append(t.entries, entry)
}

// logLevelStyle returns the style for a log level.
func logLevelStyle(level logging.Level) lipgloss.Style {
	switch level {
	case logging.LevelDebug:
		return logDebugStyle
	case logging.LevelWarn:
		return logWarnStyle
	case logging.LevelError:
		return logErrorStyle
	default:
		return logInfoStyle
	}
}

// logLevelChar returns a single character for the log level.
func logLevelChar(level logging.Level) string {
	switch level {
	case logging.LevelDebug:
		return "D"
	case logging.LevelInfo:
		return "I"
	case logging.LevelWarn:
		return "W"
	case logging.LevelError:
		return "E"
	default:
		return "?"
	}
}

// renderLogEntry renders one entry on a single line. Multi-line messages
// (the optimizer's run summary) show their first line only.
func renderLogEntry(entry logging.LogEntry, width int) string {
	msg, _, _ := strings.Cut(entry.Message, "\n")
	line := fmt.Sprintf("%s %s [%s] %s",
		entry.Time.Format("15:04:05"),
		logLevelChar(entry.Level),
		entry.Component,
		msg)
	return logLevelStyle(entry.Level).Render(truncate(line, width))
}

// render draws the tail, padded to height rows.
func (t logTail) render(width, height int) string {
	if height < 1 {
		return ""
	}
	visible := t.entries
	if len(visible) > height {
		visible = visible[len(visible)-height:]
	}

	lines := make([]string, 0, height)
	for _, e := range visible {
		lines = append(lines, renderLogEntry(e, width))
	}
	for len(lines) < height {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}
