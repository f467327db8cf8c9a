// Package logging keeps the rolling event log: every non-OK event is
// appended to a dated file, and completed days are gzip-compressed.
package logging

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// EventLog writes to a per-day file under dir and rotates at midnight.
type EventLog struct {
	dir    string
	useUTC bool
	logger *logrus.Logger

	mu   sync.Mutex
	file *os.File
	date string
}

// NewEventLog creates the directory if needed and opens today's file.
func NewEventLog(dir string, useUTC bool, logger *logrus.Logger) (*EventLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	e := &EventLog{dir: dir, useUTC: useUTC, logger: logger}
	if err := e.rotate(); err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return e, nil
}

func (e *EventLog) now() time.Time {
	if e.useUTC {
		return time.Now().UTC()
	}
	return time.Now()
}

func (e *EventLog) path(date string) string {
	return filepath.Join(e.dir, "events-"+date+".log")
}

// Start drives the daily rotation check until the context is done.
func (e *EventLog) Start(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.mu.Lock()
			if e.date != e.now().Format("2006-01-02") {
				if err := e.rotate(); err != nil {
					e.logger.WithError(err).Error("event log rotation failed")
				}
			}
			e.mu.Unlock()
		}
	}
}

// rotate closes the current file, compresses it, and opens the new
// day's file. Callers other than NewEventLog hold the mutex.
func (e *EventLog) rotate() error {
	newDate := e.now().Format("2006-01-02")

	if e.file != nil {
		old := e.file
		oldDate := e.date
		if err := old.Close(); err != nil {
			e.logger.WithError(err).Error("failed to close old event log")
		}
		go e.compress(e.path(oldDate))
	}

	f, err := os.OpenFile(e.path(newDate), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	e.file = f
	e.date = newDate
	return nil
}

// compress gzips a finished log file and removes the original.
func (e *EventLog) compress(path string) {
	in, err := os.Open(path)
	if err != nil {
		return
	}
	defer in.Close()

	out, err := os.Create(path + ".gz")
	if err != nil {
		return
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		e.logger.WithError(err).Error("event log compression failed")
		return
	}
	if err := gz.Close(); err != nil {
		return
	}
	_ = os.Remove(path)
}

// Write appends one record; EventLog is an io.Writer.
func (e *EventLog) Write(p []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.file == nil {
		return 0, os.ErrClosed
	}
	return e.file.Write(p)
}

// Close flushes and closes the current file.
func (e *EventLog) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.file == nil {
		return nil
	}
	err := e.file.Close()
	e.file = nil
	return err
}

// Hook mirrors warning-and-above logrus entries into the event log.
type Hook struct {
	log *EventLog
}

// NewHook wraps an EventLog as a logrus hook.
func NewHook(log *EventLog) *Hook { return &Hook{log: log} }

// Levels reports the non-OK levels.
func (h *Hook) Levels() []logrus.Level {
	return []logrus.Level{
		logrus.PanicLevel, logrus.FatalLevel,
		logrus.ErrorLevel, logrus.WarnLevel,
	}
}

// Fire appends the rendered entry.
func (h *Hook) Fire(entry *logrus.Entry) error {
	line, err := entry.String()
	if err != nil {
		return err
	}
	_, err = h.log.Write([]byte(line))
	return err
}
