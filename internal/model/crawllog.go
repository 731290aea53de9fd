package model

import (
	"log/slog"
	"time"
)

// LogLevel is the severity of a CrawlLog entry.
type LogLevel string

const (
	LogDebug    LogLevel = "DEBUG"
	LogInfo     LogLevel = "INFO"
	LogWarning  LogLevel = "WARNING"
	LogError    LogLevel = "ERROR"
	LogCritical LogLevel = "CRITICAL"
)

// LevelCritical is the slog level recorded as CRITICAL.
const LevelCritical = slog.LevelError + 4

// LogLevelFromSlog maps a slog level onto the CrawlLog levels.
func LogLevelFromSlog(l slog.Level) LogLevel {
	switch {
	case l >= LevelCritical:
		return LogCritical
	case l >= slog.LevelError:
		return LogError
	case l >= slog.LevelWarn:
		return LogWarning
	case l >= slog.LevelInfo:
		return LogInfo
	default:
		return LogDebug
	}
}

// CrawlLog is an append-only event scoped to a session.
type CrawlLog struct {
	ID        int64          `json:"id"`
	SessionID string         `json:"session_id"`
	Level     LogLevel       `json:"level"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
