package log

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/davecgh/go-spew/spew"
	"github.com/fatih/color"
)

type contextKey string

const contextKeyRequestID contextKey = "request_id"

var (
	mu    sync.Mutex
	out   io.Writer = color.Output
	debug atomic.Bool
)

// SetOutput redirects all log lines to w and returns the previous writer.
func SetOutput(w io.Writer) io.Writer {
	mu.Lock()
	defer mu.Unlock()
	prev := out
	out = w
	return prev
}

// SetDebug turns Debug output on or off.
func SetDebug(enabled bool) {
	debug.Store(enabled)
}

// WithRequestID adds request ID to context for logging
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, requestID)
}

// RequestID returns the request ID stored in ctx, if any.
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return id
	}
	return ""
}

// formatLog formats log message with optional request ID
func formatLog(level string, requestID string, format string, a ...interface{}) string {
	msg := fmt.Sprintf(format, a...)
	if requestID != "" {
		return fmt.Sprintf("[%s] [req_id=%s] %s", level, requestID, msg)
	}
	return fmt.Sprintf("[%s] %s", level, msg)
}

func write(label string, line string) {
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(out, "%s %s\n", label, line)
}

var (
	infoLabel  = color.New(color.FgWhite, color.BgGreen).SprintFunc()
	warnLabel  = color.New(color.FgWhite, color.BgYellow).SprintFunc()
	errorLabel = color.New(color.FgRed).SprintFunc()
	debugLabel = color.New(color.FgCyan).SprintFunc()
)

// Info log information
func Info(format string, a ...interface{}) {
	write(infoLabel("[INFO] "), fmt.Sprintf(format, a...))
}

// InfoWithContext logs information with context (includes request ID if available)
func InfoWithContext(ctx context.Context, format string, a ...interface{}) {
	write(infoLabel("[INFO] "), formatLog("INFO", RequestID(ctx), format, a...))
}

// Warn log warning
func Warn(format string, a ...interface{}) {
	write(warnLabel("[WARN] "), fmt.Sprintf(format, a...))
}

// WarnWithContext logs warning with context (includes request ID if available)
func WarnWithContext(ctx context.Context, format string, a ...interface{}) {
	write(warnLabel("[WARN] "), formatLog("WARN", RequestID(ctx), format, a...))
}

// Error log error
func Error(format string, a ...interface{}) {
	write(errorLabel("[Error]"), fmt.Sprintf(format, a...))
}

// ErrorWithContext logs error with context (includes request ID if available)
func ErrorWithContext(ctx context.Context, format string, a ...interface{}) {
	write(errorLabel("[Error]"), formatLog("ERROR", RequestID(ctx), format, a...))
}

// Debug logs only when debug output is enabled.
func Debug(format string, a ...interface{}) {
	if !debug.Load() {
		return
	}
	write(debugLabel("[DEBUG]"), fmt.Sprintf(format, a...))
}

// DebugWithContext is Debug with the request ID of ctx.
func DebugWithContext(ctx context.Context, format string, a ...interface{}) {
	if !debug.Load() {
		return
	}
	write(debugLabel("[DEBUG]"), formatLog("DEBUG", RequestID(ctx), format, a...))
}

// DebugStruct dumps values with spew when debug output is enabled.
func DebugStruct(a ...interface{}) {
	if !debug.Load() {
		return
	}
	write(debugLabel("[DEBUG]"), spew.Sdump(a...))
}
