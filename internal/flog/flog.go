// Package flog is a small asynchronous logger: callers never block on I/O,
// log lines are formatted and handed to a buffered channel drained by a
// single goroutine.
package flog

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
)

type Level int

const None Level = -1

const (
	Debug Level = iota
	Info
	Warn
	Error
	Critical
)

var levelNames = [...]string{
	Debug:    "DEBUG",
	Info:     "INFO",
	Warn:     "WARN",
	Error:    "ERROR",
	Critical: "CRITICAL",
}

func (l Level) String() string {
	if l == None {
		return "none"
	}
	if int(l) >= 0 && int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "unknown"
}

// ParseLevel maps the CLI's --log-level vocabulary (debug,info,error,critical)
// plus the ambient "warn" and "none" onto a Level.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "debug":
		return Debug, nil
	case "info":
		return Info, nil
	case "warn":
		return Warn, nil
	case "error":
		return Error, nil
	case "critical":
		return Critical, nil
	case "none":
		return None, nil
	default:
		return None, fmt.Errorf("flog: unknown log level %q", s)
	}
}

var levelColor = [...]*color.Color{
	Debug:    color.New(color.FgCyan),
	Info:     color.New(color.FgGreen),
	Warn:     color.New(color.FgYellow),
	Error:    color.New(color.FgRed),
	Critical: color.New(color.FgRed, color.Bold),
}

// Logger is an independent async log sink. The package also exposes a
// default instance via the top-level Debugf/Infof/... functions so callers
// that don't need multiple sinks can skip constructing one.
type Logger struct {
	minLevel atomic.Int64
	out      io.Writer
	useColor bool
	ch       chan string
	dropped  atomic.Uint64
	done     chan struct{}
}

// New starts a Logger writing to out, gated at minLevel. useColor should be
// false whenever out is not an interactive terminal (a file, a pipe).
func New(out io.Writer, minLevel Level, useColor bool) *Logger {
	l := &Logger{
		out:      out,
		useColor: useColor,
		ch:       make(chan string, 1024),
		done:     make(chan struct{}),
	}
	l.minLevel.Store(int64(minLevel))
	go l.drain()
	return l
}

func (l *Logger) drain() {
	defer close(l.done)
	for msg := range l.ch {
		fmt.Fprint(l.out, msg)
	}
}

// SetLevel adjusts the minimum level gated at log time; it is safe to call
// concurrently with logging calls and is the hook --watch-config uses for
// live log-level reload.
func (l *Logger) SetLevel(level Level) { l.minLevel.Store(int64(level)) }

func (l *Logger) Level() Level { return Level(l.minLevel.Load()) }

// Dropped returns the number of log lines discarded because the internal
// channel was full; a non-zero value means logging is the bottleneck, not
// the thing being logged about.
func (l *Logger) Dropped() uint64 { return l.dropped.Load() }

func (l *Logger) logf(level Level, format string, args ...any) {
	min := Level(l.minLevel.Load())
	if min == None || level < min {
		return
	}
	name := level.String()
	if l.useColor {
		if c := levelColor[level]; c != nil {
			name = c.Sprint(name)
		}
	}
	now := time.Now().Format("2006-01-02 15:04:05.000")
	line := fmt.Sprintf("%s [%s] %s\n", now, name, fmt.Sprintf(format, args...))
	select {
	case l.ch <- line:
	default:
		l.dropped.Add(1)
	}
}

func (l *Logger) Debugf(format string, args ...any)    { l.logf(Debug, format, args...) }
func (l *Logger) Infof(format string, args ...any)     { l.logf(Info, format, args...) }
func (l *Logger) Warnf(format string, args ...any)     { l.logf(Warn, format, args...) }
func (l *Logger) Errorf(format string, args ...any)    { l.logf(Error, format, args...) }
func (l *Logger) Criticalf(format string, args ...any) { l.logf(Critical, format, args...) }

// Close stops accepting new lines and blocks until the drain goroutine has
// flushed everything already queued.
func (l *Logger) Close() {
	close(l.ch)
	<-l.done
}

var std = New(os.Stdout, Info, shouldColor(os.Stdout))

func shouldColor(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// SetDefault replaces the package-level default logger, used by cmd to wire
// --log/--log-level into the top-level Debugf/Infof/... helpers.
func SetDefault(l *Logger) { std = l }

func Default() *Logger { return std }

func Debugf(format string, args ...any)    { std.Debugf(format, args...) }
func Infof(format string, args ...any)     { std.Infof(format, args...) }
func Warnf(format string, args ...any)     { std.Warnf(format, args...) }
func Errorf(format string, args ...any)    { std.Errorf(format, args...) }
func Criticalf(format string, args ...any) { std.Criticalf(format, args...) }
func Dropped() uint64                      { return std.Dropped() }
func Close()                               { std.Close() }
