// Package logging provides structured logging with file and console output.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogEntry is one line kept in the in-memory history.
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Component string `json:"component"`
	Message   string `json:"message"`
	Data      string `json:"data,omitempty"`
}

// Config holds logger configuration
type Config struct {
	Dir        string `mapstructure:"dir"`         // Directory for log files, empty disables the file
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	MaxHistory int    `mapstructure:"max_history"` // Entries kept in memory
	Console    bool   `mapstructure:"console"`     // Also log to stderr
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Dir:        filepath.Join(home, ".avatarcore", "logs"),
		Level:      "info",
		MaxHistory: 1000,
		Console:    true,
	}
}

// Logger wraps zerolog with file output and log history
type Logger struct {
	zlog    zerolog.Logger
	file    *os.File
	logPath string

	mu      sync.RWMutex
	history []LogEntry
	maxHist int
	onLog   func(LogEntry)
}

// New creates a Logger. Extra writers receive the raw JSON lines.
func New(cfg Config, extra ...io.Writer) (*Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 1000
	}

	l := &Logger{
		history: make([]LogEntry, 0, cfg.MaxHistory),
		maxHist: cfg.MaxHistory,
	}

	writers := []io.Writer{historyWriter{l}}
	writers = append(writers, extra...)

	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		l.logPath = filepath.Join(cfg.Dir, fmt.Sprintf("avatarcore_%s.log", time.Now().Format("2006-01-02")))
		file, err := os.OpenFile(l.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		l.file = file
		writers = append(writers, file)
	}

	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "15:04:05",
		})
	}

	l.zlog = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Str("app", "avatarcore").
		Logger()

	l.zlog.Debug().
		Str("component", "logging").
		Str("logFile", l.logPath).
		Str("level", level.String()).
		Msg("Logger initialized")

	return l, nil
}

// SetOnLog sets a callback for real-time log streaming
func (l *Logger) SetOnLog(fn func(LogEntry)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onLog = fn
}

func (l *Logger) addToHistory(entry LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.history = append(l.history, entry)
	if len(l.history) > l.maxHist {
		l.history = l.history[len(l.history)-l.maxHist:]
	}
	if l.onLog != nil {
		go l.onLog(entry)
	}
}

// History returns up to limit recent entries, oldest first.
func (l *Logger) History(limit int) []LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 || limit > len(l.history) {
		limit = len(l.history)
	}
	result := make([]LogEntry, limit)
	copy(result, l.history[len(l.history)-limit:])
	return result
}

// Path returns the current log file path, empty when file output is off.
func (l *Logger) Path() string {
	return l.logPath
}

// Component returns a zerolog.Logger with the component field set
func (l *Logger) Component(name string) zerolog.Logger {
	return l.zlog.With().Str("component", name).Logger()
}

// Zerolog returns the underlying zerolog.Logger
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zlog
}

func (l *Logger) Close() error {
	l.zlog.Debug().Str("component", "logging").Msg("Logger shutting down")
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// historyWriter decodes each JSON line into a LogEntry.
type historyWriter struct{ l *Logger }

var reserved = map[string]bool{
	zerolog.TimestampFieldName: true,
	zerolog.LevelFieldName:     true,
	zerolog.MessageFieldName:   true,
	"component":                true,
	"app":                      true,
}

func (w historyWriter) Write(p []byte) (int, error) {
	var fields map[string]any
	if err := json.Unmarshal(p, &fields); err != nil {
		// Not ours to judge; keep the other writers going.
		return len(p), nil
	}

	entry := LogEntry{Timestamp: time.Now().Format("15:04:05.000")}
	entry.Level, _ = fields[zerolog.LevelFieldName].(string)
	entry.Component, _ = fields["component"].(string)
	entry.Message, _ = fields[zerolog.MessageFieldName].(string)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		if !reserved[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	entry.Data = strings.Join(parts, ", ")

	w.l.addToHistory(entry)
	return len(p), nil
}
