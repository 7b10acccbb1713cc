// Package report provides the run logger and the structured run report that
// every invocation writes, regardless of outcome.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Run statuses.
const (
	StatusStarted   = "started"
	StatusCompleted = "completed"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
)

// FileReport is the per-document entry in the run report.
type FileReport struct {
	Filename    string   `json:"filename"`
	ChunksCount int      `json:"chunks_count"`
	Status      string   `json:"status"`
	Timestamp   string   `json:"timestamp"`
	ChunkIDs    []string `json:"chunk_ids,omitempty"`
	ContentHash string   `json:"content_hash,omitempty"`
}

// Report is the structured summary of one run.
type Report struct {
	RunID          string       `json:"run_id"`
	Timestamp      string       `json:"timestamp"`
	Status         string       `json:"status"`
	Message        string       `json:"message,omitempty"`
	FilesProcessed []FileReport `json:"files_processed"`
	ChunksCreated  int          `json:"chunks_created"`
	ChunksUploaded int          `json:"chunks_uploaded"`
	OrphansDeleted int          `json:"orphans_deleted"`
	Errors         []string     `json:"errors"`
	Warnings       []string     `json:"warnings"`
}

// Logger writes timestamped lines to a console writer while collecting them
// for a per-run log file, and accumulates the run report. Errors and warnings
// land in both the log and the report.
type Logger struct {
	logsDir string
	out     io.Writer
	lines   []string
	Report  Report
}

// NewLogger creates a logger for one run. Logs and the report are written
// under logsDir by Save.
func NewLogger(logsDir string) *Logger {
	return &Logger{
		logsDir: logsDir,
		out:     os.Stdout,
		Report: Report{
			RunID:          ulid.Make().String(),
			Timestamp:      time.Now().Format(time.RFC3339),
			Status:         StatusStarted,
			FilesProcessed: []FileReport{},
			Errors:         []string{},
			Warnings:       []string{},
		},
	}
}

// SetOutput redirects console output, mainly for tests.
func (l *Logger) SetOutput(w io.Writer) {
	l.out = w
}

func (l *Logger) log(level, format string, args ...any) string {
	msg := fmt.Sprintf(format, args...)
	line := fmt.Sprintf("[%s] [%s] %s", time.Now().Format("2006-01-02 15:04:05"), level, msg)
	fmt.Fprintln(l.out, line)
	l.lines = append(l.lines, line)
	return msg
}

// Info logs an informational line.
func (l *Logger) Info(format string, args ...any) {
	l.log("INFO", format, args...)
}

// Success logs a success line.
func (l *Logger) Success(format string, args ...any) {
	l.log("SUCCESS", format, args...)
}

// Warning logs a warning and records it in the report.
func (l *Logger) Warning(format string, args ...any) {
	msg := l.log("WARNING", format, args...)
	l.Report.Warnings = append(l.Report.Warnings, msg)
}

// Error logs an error and records it in the report.
func (l *Logger) Error(format string, args ...any) {
	msg := l.log("ERROR", format, args...)
	l.Report.Errors = append(l.Report.Errors, msg)
}

// Section prints a prominent section header.
func (l *Logger) Section(title string) {
	sep := strings.Repeat("=", 60)
	block := fmt.Sprintf("\n%s\n  %s\n%s", sep, title, sep)
	fmt.Fprintln(l.out, block)
	l.lines = append(l.lines, block)
}

// Subsection prints a step header.
func (l *Logger) Subsection(title string) {
	block := fmt.Sprintf("\n--- %s ---", title)
	fmt.Fprintln(l.out, block)
	l.lines = append(l.lines, block)
}

// AddFileReport appends a per-document entry, stamping it with the current
// time when unset.
func (l *Logger) AddFileReport(fr FileReport) {
	if fr.Timestamp == "" {
		fr.Timestamp = time.Now().Format(time.RFC3339)
	}
	l.Report.FilesProcessed = append(l.Report.FilesProcessed, fr)
}

// Save writes the text log and the JSON report into the logs directory and
// returns their paths.
func (l *Logger) Save() (logPath, reportPath string, err error) {
	if err := os.MkdirAll(l.logsDir, 0o755); err != nil {
		return "", "", fmt.Errorf("create logs dir: %w", err)
	}

	stamp := time.Now().Format("20060102_150405")
	logPath = filepath.Join(l.logsDir, fmt.Sprintf("upload_%s.log", stamp))
	reportPath = filepath.Join(l.logsDir, fmt.Sprintf("report_%s.json", stamp))

	if err := os.WriteFile(logPath, []byte(strings.Join(l.lines, "\n")+"\n"), 0o644); err != nil {
		return "", "", fmt.Errorf("write log: %w", err)
	}

	b, err := json.MarshalIndent(l.Report, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(reportPath, b, 0o644); err != nil {
		return "", "", fmt.Errorf("write report: %w", err)
	}
	return logPath, reportPath, nil
}
