package logs

import (
	"runtime/debug"
	"strings"

	"go.uber.org/zap"
)

// StacktraceField captures the current goroutine stack, one frame per line.
func StacktraceField() zap.Field {
	lines := strings.Split(strings.TrimSpace(string(debug.Stack())), "\n")
	return zap.String("stacktrace", strings.Join(lines, "\n\t"))
}
