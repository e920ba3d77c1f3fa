package logging

import "sync"

// DefaultBufferSize is the number of entries retained when no size is given.
const DefaultBufferSize = 100

// LogBuffer retains the most recent entries for the daemon status. Once full,
// each new entry replaces the oldest.
type LogBuffer struct {
	mu      sync.RWMutex
	entries []LogEntry
	next    int
	full    bool
}

// NewLogBuffer returns a buffer holding up to size entries.
func NewLogBuffer(size int) *LogBuffer {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &LogBuffer{entries: make([]LogEntry, size)}
}

// Add retains entry.
func (b *LogBuffer) Add(entry LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.next] = entry
	b.next = (b.next + 1) % len(b.entries)
	if b.next == 0 {
		b.full = true
	}
}

// Last returns up to n of the newest entries at or above minLevel, oldest first.
func (b *LogBuffer) Last(n int, minLevel Level) []LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n <= 0 {
		return nil
	}

	count := b.next
	if b.full {
		count = len(b.entries)
	}

	// Walk backwards from the newest entry, then reverse.
	var out []LogEntry
	for i := 1; i <= count && len(out) < n; i++ {
		entry := b.entries[(b.next-i+len(b.entries))%len(b.entries)]
		if entry.Level >= minLevel {
			out = append(out, entry)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
