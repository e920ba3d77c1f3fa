package logging

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func messages(entries []LogEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Message)
	}
	return out
}

func TestLogBufferOverflowKeepsNewest(t *testing.T) {
	buf := NewLogBuffer(3)
	for i := 0; i < 5; i++ {
		buf.Add(LogEntry{Message: fmt.Sprintf("m%d", i)})
	}

	assert.Equal(t, []string{"m2", "m3", "m4"}, messages(buf.Last(10, LevelDebug)))
}

func TestLogBufferLast(t *testing.T) {
	buf := NewLogBuffer(4)
	for i := 0; i < 3; i++ {
		buf.Add(LogEntry{Message: fmt.Sprintf("m%d", i)})
	}

	assert.Equal(t, []string{"m1", "m2"}, messages(buf.Last(2, LevelDebug)))
	assert.Len(t, buf.Last(10, LevelDebug), 3)
	assert.Empty(t, buf.Last(0, LevelDebug))
}

func TestLogBufferLastFiltersLevel(t *testing.T) {
	buf := NewLogBuffer(8)
	buf.Add(LogEntry{Level: LevelInfo, Message: "Optimization start reason: Manual"})
	buf.Add(LogEntry{Level: LevelError, Message: "MEMORY AREAS\nRegistry Cache (Error: access denied)"})
	buf.Add(LogEntry{Level: LevelDebug, Message: "volume closed"})
	buf.Add(LogEntry{Level: LevelWarn, Message: "low memory"})
	buf.Add(LogEntry{Level: LevelInfo, Message: "optimization finished"})

	got := buf.Last(10, LevelWarn)
	assert.Equal(t, []string{"MEMORY AREAS\nRegistry Cache (Error: access denied)", "low memory"}, messages(got))

	// n counts matching entries only.
	assert.Equal(t, []string{"low memory"}, messages(buf.Last(1, LevelWarn)))
}

func TestLogBufferDefaultSize(t *testing.T) {
	buf := NewLogBuffer(0)
	for i := 0; i < DefaultBufferSize+1; i++ {
		buf.Add(LogEntry{Message: fmt.Sprintf("m%d", i)})
	}

	got := buf.Last(DefaultBufferSize+10, LevelDebug)
	assert.Len(t, got, DefaultBufferSize)
	assert.Equal(t, "m1", got[0].Message)
}
