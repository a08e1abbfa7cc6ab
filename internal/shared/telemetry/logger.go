package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

// Levels in increasing severity. Debug lines are suppressed unless enabled
// via SetDebug (wired from LOG_LEVEL=debug at startup).
var debugEnabled atomic.Bool

// SetDebug toggles emission of debug-level lines.
func SetDebug(on bool) {
	debugEnabled.Store(on)
}

// InitFromEnv enables debug logging when LOG_LEVEL=debug.
func InitFromEnv() {
	SetDebug(strings.EqualFold(os.Getenv("LOG_LEVEL"), "debug"))
}

// Debug writes a debug-level log line, if debug logging is enabled.
func Debug(msg string, fields map[string]any) {
	if !debugEnabled.Load() {
		return
	}
	write("debug", msg, fields)
}

// Info writes an info-level log line with the given fields.
func Info(msg string, fields map[string]any) {
	write("info", msg, fields)
}

// Warn writes a warn-level log line with the given fields.
func Warn(msg string, fields map[string]any) {
	write("warn", msg, fields)
}

// Error writes an error-level log line with the given fields.
func Error(msg string, fields map[string]any) {
	write("error", msg, fields)
}

func write(level, msg string, fields map[string]any) {
	entry := make(map[string]any, len(fields)+3)
	entry["ts"] = time.Now().UTC().Format(time.RFC3339)
	entry["level"] = level
	entry["msg"] = msg
	for k, v := range fields {
		entry[k] = v
	}
	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stdout, `{"ts":"%s","level":"error","msg":"logger marshal failed","err":%q}`+"\n", time.Now().UTC().Format(time.RFC3339), err.Error())
		return
	}
	fmt.Fprintln(os.Stdout, string(data))
}
