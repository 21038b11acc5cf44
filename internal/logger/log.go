package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

// ParseLevel maps a level name to a Level. Unknown names fall back to INFO.
func ParseLevel(level string) Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

type Logger struct {
	level     Level
	component string
	mu        sync.Mutex
	debugLog  *log.Logger
	infoLog   *log.Logger
	warnLog   *log.Logger
	errorLog  *log.Logger
}

// New returns a logger writing to stderr.
func New(level string) *Logger {
	return NewWithOutput(level, "", os.Stderr)
}

// NewComponent returns a stderr logger whose lines carry the component name.
func NewComponent(level, component string) *Logger {
	return NewWithOutput(level, component, os.Stderr)
}

// NewWithOutput returns a logger writing to w.
func NewWithOutput(level, component string, w io.Writer) *Logger {
	flags := log.LstdFlags | log.Lshortfile | log.Lmicroseconds

	prefix := func(lvl string) string {
		if component == "" {
			return "[" + lvl + "] "
		}
		return "[" + lvl + "] " + component + ": "
	}

	return &Logger{
		level:     ParseLevel(level),
		component: component,
		debugLog:  log.New(w, prefix("DEBUG"), flags),
		infoLog:   log.New(w, prefix("INFO"), flags),
		warnLog:   log.New(w, prefix("WARN"), flags),
		errorLog:  log.New(w, prefix("ERROR"), flags),
	}
}

func (l *Logger) output(lg *log.Logger, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	// depth 3: output -> Debug/Info/... -> caller
	lg.Output(3, fmt.Sprintf(format, args...))
}

func (l *Logger) Debug(format string, args ...interface{}) {
	if l.level <= DEBUG {
		l.output(l.debugLog, format, args...)
	}
}

func (l *Logger) Info(format string, args ...interface{}) {
	if l.level <= INFO {
		l.output(l.infoLog, format, args...)
	}
}

func (l *Logger) Warn(format string, args ...interface{}) {
	if l.level <= WARN {
		l.output(l.warnLog, format, args...)
	}
}

func (l *Logger) Error(format string, args ...interface{}) {
	if l.level <= ERROR {
		l.output(l.errorLog, format, args...)
	}
}

// Level reports the minimum level this logger emits.
func (l *Logger) Level() Level {
	return l.level
}

// Fields renders a map as sorted "k=v" pairs for use in a message.
func Fields(ctx map[string]interface{}) string {
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, ctx[k]))
	}
	return strings.Join(parts, " ")
}
