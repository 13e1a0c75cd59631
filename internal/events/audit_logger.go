package events

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	// Default maximum log file size (100MB)
	DefaultMaxLogSize = 100 * 1024 * 1024
	// Log file extension
	LogFileExtension = ".jsonl"
	// Archive directory name
	ArchiveDir = "archive"
)

// LogEntry is one audit record. Identifier fields are filled as far as the
// event knows them; a command_issued entry carries the full lineage because
// the command ID embeds it.
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	EventType string                 `json:"event_type"`
	RequestID string                 `json:"request_id,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
	GoalID    string                 `json:"goal_id,omitempty"`
	PlanID    string                 `json:"plan_id,omitempty"`
	CommandID string                 `json:"command_id,omitempty"`
	AttemptOf string                 `json:"attempt_of,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// AuditLogger provides append-only JSONL logging with size-based rotation.
type AuditLogger struct {
	mu              sync.Mutex
	file            *os.File
	currentSize     int64
	maxSize         int64
	logPath         string
	rotationCounter int
}

// NewAuditLogger creates a new audit logger instance.
func NewAuditLogger(logPath string, maxSize int64) (*AuditLogger, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxLogSize
	}

	logger := &AuditLogger{
		logPath: logPath,
		maxSize: maxSize,
	}

	logDir := filepath.Dir(logPath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	if err := logger.openLogFile(); err != nil {
		return nil, err
	}

	return logger, nil
}

func (l *AuditLogger) openLogFile() error {
	file, err := os.OpenFile(l.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}

	l.file = file
	l.currentSize = stat.Size()
	return nil
}

// Log writes an entry for an event. Known identifier fields are lifted out
// of details into the entry's typed columns.
func (l *AuditLogger) Log(eventType string, details map[string]interface{}) error {
	entry := LogEntry{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Details:   details,
	}

	if v, ok := details["request_id"].(string); ok {
		entry.RequestID = v
	}
	if v, ok := details["session_id"].(string); ok {
		entry.SessionID = v
	}
	if v, ok := details["goal_id"].(string); ok {
		entry.GoalID = v
	}
	if v, ok := details["plan_id"].(string); ok {
		entry.PlanID = v
	}
	if v, ok := details["command_id"].(string); ok {
		entry.CommandID = v
	}
	if v, ok := details["attempt_of"].(string); ok {
		entry.AttemptOf = v
	}

	return l.WriteEntry(&entry)
}

// WriteEntry appends a structured entry to the log, rotating first if the
// write would exceed the size bound.
func (l *AuditLogger) WriteEntry(entry *LogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}
	data = append(data, '\n')

	if l.currentSize+int64(len(data)) > l.maxSize {
		if err := l.rotate(); err != nil {
			return fmt.Errorf("failed to rotate log: %w", err)
		}
	}

	n, err := l.file.Write(data)
	if err != nil {
		return fmt.Errorf("failed to write log entry: %w", err)
	}

	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync log file: %w", err)
	}

	l.currentSize += int64(n)
	return nil
}

func (l *AuditLogger) rotate() error {
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("failed to close current log file: %w", err)
	}

	archiveDir := filepath.Join(filepath.Dir(l.logPath), ArchiveDir)
	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405")
	l.rotationCounter++
	baseName := filepath.Base(l.logPath)
	archiveName := fmt.Sprintf("%s.%s.%d%s",
		baseName[:len(baseName)-len(LogFileExtension)],
		timestamp,
		l.rotationCounter,
		LogFileExtension)
	archivePath := filepath.Join(archiveDir, archiveName)

	if err := os.Rename(l.logPath, archivePath); err != nil {
		return fmt.Errorf("failed to archive log file: %w", err)
	}

	if err := l.openLogFile(); err != nil {
		return fmt.Errorf("failed to open new log file: %w", err)
	}

	return nil
}

// Close closes the audit logger.
func (l *AuditLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		if err := l.file.Sync(); err != nil {
			return err
		}
		return l.file.Close()
	}
	return nil
}

// GetCurrentLogPath returns the current log file path.
func (l *AuditLogger) GetCurrentLogPath() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.logPath
}

// GetCurrentSize returns the current size of the log file.
func (l *AuditLogger) GetCurrentSize() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentSize
}
