package mealmemory

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// ReconciliationLogger is the interface for the per-call reconciliation audit trail.
type ReconciliationLogger interface {
	LogReconciliation(entry ReconcileLog) error
}

// NewReconcileLogFilePath returns a file path based on a cleaned up analyzer name to make it easier to tell logs from different backends apart.
func NewReconcileLogFilePath(analyzer string) string {
	return fmt.Sprintf(
		"./logs/%d.%s.json",
		time.Now().Unix(),
		strings.ReplaceAll(strings.ToLower(analyzer), ":", "_"),
	)
}

// ReconcileLog describes what a single reconcile call did.
type ReconcileLog struct {
	Timestamp   time.Time     `json:"timestamp"`
	Description string        `json:"description"`
	MealID      string        `json:"meal_id,omitempty"`
	Source      Source        `json:"source,omitempty"`
	Items       []ItemLog     `json:"items,omitempty"`
	Macros      Macros        `json:"macros"`
	Duration    time.Duration `json:"duration_ns"`
	Error       string        `json:"error,omitempty"`
}

// ItemLog records which trust policy resolved an item.
type ItemLog struct {
	Name       string  `json:"name"`
	Key        string  `json:"key"`
	Grams      float64 `json:"grams"`
	Resolution string  `json:"resolution"`
	Calories   float64 `json:"calories"`
}

// FileReconciliationLogger logs to a file, accumulating entries and flushing at the end
type FileReconciliationLogger struct {
	mu      sync.Mutex
	entries []ReconcileLog
	writer  io.Writer
}

// NewFileReconciliationLogger creates a new file-based reconciliation logger
func NewFileReconciliationLogger(writer io.Writer) *FileReconciliationLogger {
	return &FileReconciliationLogger{
		entries: make([]ReconcileLog, 0),
		writer:  writer,
	}
}

// LogReconciliation buffers the entry (does not flush immediately)
func (l *FileReconciliationLogger) LogReconciliation(entry ReconcileLog) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

// Flush writes all accumulated entries to the writer
func (l *FileReconciliationLogger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writer == nil {
		return nil
	}

	data, err := json.MarshalIndent(map[string]any{
		"reconcile_session": map[string]any{
			"timestamp": time.Now(),
			"entries":   l.entries,
		},
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal reconcile log: %w", err)
	}

	if _, err := l.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write reconcile log: %w", err)
	}

	l.entries = l.entries[:0]
	return nil
}

// NoOpReconciliationLogger discards all entries
type NoOpReconciliationLogger struct{}

func NewNoOpReconciliationLogger() *NoOpReconciliationLogger {
	return &NoOpReconciliationLogger{}
}

func (nop *NoOpReconciliationLogger) LogReconciliation(entry ReconcileLog) error {
	return nil
}

// StdoutReconciliationLogger logs each entry as a JSON line to stdout (for Lambda/CloudWatch)
type StdoutReconciliationLogger struct {
	out io.Writer
}

func NewStdoutReconciliationLogger() *StdoutReconciliationLogger {
	return &StdoutReconciliationLogger{out: os.Stdout}
}

// LogReconciliation writes the entry as a single JSON line
func (l *StdoutReconciliationLogger) LogReconciliation(entry ReconcileLog) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(l.out, string(data))
	return err
}
