package tui

import (
	"github.com/mwantia/mdquery/log"
)

var debugLogger *log.Logger

// InitDebugLog writes debug output to path until CloseDebugLog. An empty path
// disables it, the terminal belongs to the TUI.
func InitDebugLog(path string) *log.Logger {
	if path == "" {
		debugLogger = nil
		return log.Discard()
	}

	debugLogger = log.NewLogger("tui", log.Debug, path, true)
	debugLogger.NoColor = true
	DebugLog("=== Debug log started ===")
	return debugLogger
}

// CloseDebugLog stops debug output
func CloseDebugLog() {
	DebugLog("=== Debug log ended ===")
	debugLogger = nil
}

// DebugLog writes a message to the debug log, if enabled
func DebugLog(format string, args ...any) {
	debugLogger.Debug(format, args...)
}
