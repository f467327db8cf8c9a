package logging

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestNewEventLog(t *testing.T) {
	tests := []struct {
		name   string
		dir    string
		useUTC bool
	}{
		{name: "Flat directory", dir: "logs", useUTC: true},
		{name: "Nested directory", dir: "nested/deeper/logs", useUTC: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), tt.dir)
			ev, err := NewEventLog(dir, tt.useUTC, quietLogger())
			require.NoError(t, err)
			defer ev.Close()

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Contains(t, entries[0].Name(), "events-")
		})
	}
}

func TestEventLogWrite(t *testing.T) {
	dir := t.TempDir()
	ev, err := NewEventLog(dir, true, quietLogger())
	require.NoError(t, err)

	n, err := ev.Write([]byte("something went wrong\n"))
	require.NoError(t, err)
	assert.Equal(t, 21, n)
	require.NoError(t, ev.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	content, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, "something went wrong\n", string(content))
}

func TestEventLogWriteAfterClose(t *testing.T) {
	ev, err := NewEventLog(t.TempDir(), true, quietLogger())
	require.NoError(t, err)
	require.NoError(t, ev.Close())

	_, err = ev.Write([]byte("late"))
	assert.Error(t, err)
}

func TestHookMirrorsWarnings(t *testing.T) {
	dir := t.TempDir()
	ev, err := NewEventLog(dir, true, quietLogger())
	require.NoError(t, err)
	defer ev.Close()

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.AddHook(NewHook(ev))

	logger.Info("routine, not mirrored")
	logger.Warn("mirrored warning")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	content, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(content), "mirrored warning")
	assert.NotContains(t, string(content), "routine")
}

func TestHookLevels(t *testing.T) {
	h := NewHook(nil)
	levels := h.Levels()
	assert.Contains(t, levels, logrus.WarnLevel)
	assert.Contains(t, levels, logrus.ErrorLevel)
	assert.NotContains(t, levels, logrus.InfoLevel)
}
