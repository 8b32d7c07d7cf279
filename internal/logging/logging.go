package logging

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// Logger is a simple leveled logger that writes to the console. Arguments
// after the message are alternating key/value pairs.
type Logger struct {
	*log.Logger
}

// NewLogger creates a new Logger.
func NewLogger() *Logger {
	return &Logger{
		Logger: log.New(os.Stdout, "", log.LstdFlags),
	}
}

// Info logs an informational message.
func (l *Logger) Info(msg string, args ...any) {
	l.write("INFO", msg, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, args ...any) {
	l.write("WARN", msg, args...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, args ...any) {
	l.write("ERROR", msg, args...)
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, args ...any) {
	l.write("DEBUG", msg, args...)
}

func (l *Logger) write(level, msg string, args ...any) {
	if len(args) == 0 {
		l.Printf("%s: %s", level, msg)
		return
	}
	var b strings.Builder
	for i := 0; i+1 < len(args); i += 2 {
		fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
	}
	l.Printf("%s: %s%s", level, msg, b.String())
}
