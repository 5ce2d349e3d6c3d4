package logging

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"
)

// LogFilePath builds a log file path using OS-appropriate path separators.
func LogFilePath(logsDir, appName string, sessionStart time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.log", appName, sessionStart.Format("20060102_150405")),
	)
}

// SessionContext returns a provider that tags every record with the session id.
func SessionContext(sessionID string) ContextProvider {
	attrs := []slog.Attr{slog.String("session", sessionID)}
	return func() []slog.Attr {
		return attrs
	}
}

// ActorContext tags records with the identity current returns. No attribute
// is added while it returns "".
func ActorContext(current func() string) ContextProvider {
	return func() []slog.Attr {
		return []slog.Attr{slog.String("actor", current())}
	}
}
