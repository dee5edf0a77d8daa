package eventloop

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Level is the severity of an Entry, ordered from least to most severe.
type Level int32

const (
	LevelDebug Level = iota
	LevelWarn
	LevelError
)

// String returns the human-readable name of the level.
func (lv Level) String() string {
	switch lv {
	case LevelDebug:
		return "DEBUG"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", lv)
	}
}

// Entry is a single structured diagnostic emitted by a Loop or one of the
// cooperative primitives in csync. Component names the primitive kind
// ("semaphore", "rlock", "event", "threadevent", ...); Fields carries
// ad-hoc context such as waiter counts or coroutine ids.
type Entry struct {
	Level     Level
	Component string
	LoopID    uint64
	Message   string
	Fields    map[string]any
	Err       error
	Time      time.Time
}

// Logger is the structured logging sink used throughout this module. It is
// intentionally tiny -- one method to check whether a level is worth
// formatting, one to actually record the entry -- so any logging framework
// can be adapted to it with a handful of lines.
type Logger interface {
	IsEnabled(Level) bool
	Log(Entry)
}

// noopLogger discards everything; it is the default when no Logger has
// been configured.
type noopLogger struct{}

func (noopLogger) IsEnabled(Level) bool { return false }
func (noopLogger) Log(Entry)            {}

// StdLogger adapts the standard library's log.Logger, matching how the
// event loop this package is modelled on reports its own internal faults
// (via plain log.Printf, reserving pluggable structured logging for
// call-site opt-in rather than core dispatch).
type StdLogger struct {
	level  atomic.Int32
	target *log.Logger
}

// NewStdLogger creates a Logger writing through target at or above min.
func NewStdLogger(target *log.Logger, min Level) *StdLogger {
	l := &StdLogger{target: target}
	l.level.Store(int32(min))
	return l
}

func (l *StdLogger) SetLevel(min Level) { l.level.Store(int32(min)) }

func (l *StdLogger) IsEnabled(lv Level) bool { return int32(lv) >= l.level.Load() }

func (l *StdLogger) Log(e Entry) {
	if !l.IsEnabled(e.Level) {
		return
	}
	msg := fmt.Sprintf("%s: %s: %s", e.Level, e.Component, e.Message)
	for k, v := range e.Fields {
		msg += fmt.Sprintf(" %s=%v", k, v)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(" err=%v", e.Err)
	}
	l.target.Print(msg)
}

var globalLogger struct {
	sync.RWMutex
	logger Logger
}

// SetLogger installs the process-wide Logger used by eventloop and, through
// it, csync/corogroup. Passing nil restores the no-op default.
func SetLogger(logger Logger) {
	globalLogger.Lock()
	defer globalLogger.Unlock()
	globalLogger.logger = logger
}

func currentLogger() Logger {
	globalLogger.RLock()
	defer globalLogger.RUnlock()
	if globalLogger.logger != nil {
		return globalLogger.logger
	}
	return noopLogger{}
}

// Debugf records a debug-level diagnostic if the installed Logger wants it.
func Debugf(component string, format string, args ...any) {
	logFmt(LevelDebug, component, nil, format, args...)
}

// Warnf records a warning-level diagnostic.
func Warnf(component string, format string, args ...any) {
	logFmt(LevelWarn, component, nil, format, args...)
}

// Errorf records an error-level diagnostic.
func Errorf(component string, err error, format string, args ...any) {
	logFmt(LevelError, component, err, format, args...)
}

func logFmt(lv Level, component string, err error, format string, args ...any) {
	logger := currentLogger()
	if !logger.IsEnabled(lv) {
		return
	}
	logger.Log(Entry{
		Level:     lv,
		Component: component,
		Message:   fmt.Sprintf(format, args...),
		Err:       err,
		Time:      time.Now(),
	})
}
