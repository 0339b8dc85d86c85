// Package logger provides the console logging used across steward.
// Output lines carry [HH:MM:SS] timestamps and a level tag, with color
// when writing to a terminal. Implementations are thread-safe.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Numeric level values for filtering.
const (
	levelDebug int = iota
	levelInfo
	levelWarn
	levelError
)

// ConsoleLogger writes timestamped, level-filtered log lines to a
// writer. A nil writer silently discards everything.
type ConsoleLogger struct {
	writer   io.Writer
	level    int
	mutex    sync.Mutex
	useColor bool
	clock    func() time.Time
}

// New creates a ConsoleLogger. level is one of debug, info, warn,
// error (case-insensitive); empty or unknown levels default to info.
// Color is enabled automatically when the writer is a terminal.
func New(writer io.Writer, level string) *ConsoleLogger {
	return &ConsoleLogger{
		writer:   writer,
		level:    parseLevel(level),
		useColor: isTerminal(writer),
		clock:    time.Now,
	}
}

// isTerminal reports whether the writer is a TTY that supports color.
// NO_COLOR is honored via the color library's global detection.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	if color.NoColor {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// parseLevel normalizes a level name, defaulting to info.
func parseLevel(level string) int {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return levelDebug
	case "info":
		return levelInfo
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

// Debugf logs a formatted debug-level message.
func (cl *ConsoleLogger) Debugf(format string, args ...interface{}) {
	cl.logf(levelDebug, "DEBUG", format, args...)
}

// Infof logs a formatted info-level message.
func (cl *ConsoleLogger) Infof(format string, args ...interface{}) {
	cl.logf(levelInfo, "INFO", format, args...)
}

// Warnf logs a formatted warn-level message.
func (cl *ConsoleLogger) Warnf(format string, args ...interface{}) {
	cl.logf(levelWarn, "WARN", format, args...)
}

// Errorf logs a formatted error-level message.
func (cl *ConsoleLogger) Errorf(format string, args ...interface{}) {
	cl.logf(levelError, "ERROR", format, args...)
}

// logf writes one line if the message level passes the filter.
// Format: "[HH:MM:SS] [LEVEL] <message>"
func (cl *ConsoleLogger) logf(level int, tag, format string, args ...interface{}) {
	if cl.writer == nil || level < cl.level {
		return
	}

	timestamp := cl.clock().Format("15:04:05")
	message := fmt.Sprintf(format, args...)
	line := fmt.Sprintf("[%s] [%s] %s\n", timestamp, cl.colorTag(level, tag), message)

	cl.mutex.Lock()
	defer cl.mutex.Unlock()
	fmt.Fprint(cl.writer, line)
}

// colorTag colorizes the level tag for terminal output.
func (cl *ConsoleLogger) colorTag(level int, tag string) string {
	if !cl.useColor {
		return tag
	}
	switch level {
	case levelDebug:
		return color.HiBlackString(tag)
	case levelWarn:
		return color.YellowString(tag)
	case levelError:
		return color.RedString(tag)
	default:
		return color.CyanString(tag)
	}
}
