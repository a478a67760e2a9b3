package supervisor

import (
	"strings"

	"simsweep/internal/history"
)

// DefaultMaxLines bounds the captured output of one process.
const DefaultMaxLines = 1000

// LogBuffer keeps the newest lines of process output.
type LogBuffer struct {
	lines *history.Ring[string]
}

// NewLogBuffer creates a buffer retaining at most max lines.
func NewLogBuffer(max int) *LogBuffer {
	if max <= 0 {
		max = DefaultMaxLines
	}
	return &LogBuffer{lines: history.New[string](max)}
}

func (b *LogBuffer) Append(line string) { b.lines.Append(line) }

// Tail returns up to n of the newest lines. n <= 0 returns all of them.
func (b *LogBuffer) Tail(n int) []string { return b.lines.Values(n) }

// Len is the number of retained lines.
func (b *LogBuffer) Len() int { return b.lines.Len() }

// String joins the retained lines.
func (b *LogBuffer) String() string {
	lines := b.lines.Values(0)
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
