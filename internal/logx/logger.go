// Package logx is the coordinator's leveled, colored logger. It mirrors
// the mutex-guarded logger the teacher tool builds around go-pretty's
// terminal coloring, generalized to the downloader's log events.
package logx

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/jedib0t/go-pretty/v6/text"
)

type Logger struct {
	mu             sync.Mutex
	stdout         io.Writer
	stderr         io.Writer
	verboseEnabled bool
	debugEnabled   bool
}

func New() *Logger {
	return &Logger{
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
}

func (l *Logger) EnableVerbose() { l.mu.Lock(); l.verboseEnabled = true; l.mu.Unlock() }
func (l *Logger) EnableDebug()   { l.mu.Lock(); l.debugEnabled = true; l.mu.Unlock() }

func (l *Logger) IsVerboseEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.verboseEnabled
}

func (l *Logger) IsDebugEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.debugEnabled
}

func (l *Logger) write(w io.Writer, color text.Color, prefix, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(w, color.Sprintf("%s%s", prefix, msg))
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.write(l.stderr, text.FgWhite, "[INFO] ", format, args...)
}

func (l *Logger) Verbose(format string, args ...interface{}) {
	if !l.IsVerboseEnabled() {
		return
	}
	l.write(l.stderr, text.FgCyan, "[VERBOSE] ", format, args...)
}

func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.IsDebugEnabled() {
		return
	}
	l.write(l.stderr, text.FgMagenta, "[DEBUG] ", format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.write(l.stderr, text.FgYellow, "[WARN] ", format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.write(l.stderr, text.FgRed, "[ERROR] ", format, args...)
}

// Default is the process-wide logger, created eagerly like the teacher's
// DefaultLogger so components that don't receive one explicitly (e.g.
// leaf helpers called deep in the fetch pipeline) still log sanely.
var Default = New()
