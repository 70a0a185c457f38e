package logging

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for s, want := range map[string]Level{
		"debug":   LevelDebug,
		"info":    LevelInfo,
		"warn":    LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"ERROR":   LevelError,
	} {
		got, err := ParseLevel(s)
		require.NoError(t, err, s)
		assert.Equal(t, want, got, s)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestFileOutputWritesRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "iptsd.log")

	l, err := New(&Config{
		Level:    LevelDebug,
		Format:   FormatJSON,
		Output:   "file",
		FilePath: path,
	})
	require.NoError(t, err)

	l.Info("frame processed", "contacts", 2)
	require.NoError(t, l.Sync())
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, "frame processed", rec["msg"])
	assert.EqualValues(t, 2, rec["contacts"])
}

func TestLevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "iptsd.log")

	l, err := New(&Config{
		Level:    LevelWarn,
		Format:   FormatText,
		Output:   "file",
		FilePath: path,
	})
	require.NoError(t, err)

	l.Debug("dropped")
	l.Info("dropped too")
	l.Warn("kept")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "dropped")
	assert.Contains(t, string(data), "kept")
}

func TestWithComponentTagsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "iptsd.log")

	l, err := New(&Config{
		Level:    LevelInfo,
		Format:   FormatJSON,
		Output:   "file",
		FilePath: path,
	})
	require.NoError(t, err)

	l.WithComponent("touch").Info("slot assigned")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, "touch", rec["component"])
}

func TestRotatorRollsOverBySize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "iptsd.log")

	rot, err := NewFileRotator(path, 64, 4, false)
	require.NoError(t, err)
	defer rot.Close()

	line := strings.Repeat("x", 40) + "\n"
	for i := 0; i < 4; i++ {
		_, err := rot.Write([]byte(line))
		require.NoError(t, err)
	}

	entries, err := filepath.Glob(filepath.Join(dir, "iptsd-*.log"))
	require.NoError(t, err)
	assert.NotEmpty(t, entries, "expected at least one rotated backup")

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Less(t, st.Size(), int64(64+len(line)))
}

func TestAuditLoggerWritesJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")

	a, err := NewAuditLogger(path)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, a.LogDeviceConnected(ctx, 0x045E, 0x0C1A))
	require.NoError(t, a.LogFrameTruncated(ctx, "container length mismatch", 128, 96))
	require.NoError(t, a.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var first AuditEvent
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, AuditEventDeviceConnected, first.Type)
	assert.Equal(t, "success", first.Result)
	assert.False(t, first.Timestamp.IsZero())
	assert.EqualValues(t, 0x045E, first.Details["vendor_id"])

	var second AuditEvent
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, AuditEventFrameTruncated, second.Type)
	assert.Equal(t, "failure", second.Result)
	assert.EqualValues(t, 128, second.Details["want_len"])
}

func TestWriteCrashReport(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	path, err := WriteCrashReport(CrashReport{
		Timestamp:  time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
		PanicValue: "index out of range",
		StackTrace: "goroutine 1 [running]:",
		Pipeline:   map[string]any{"heatmap_frames_total": 41},
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var rep CrashReport
	require.NoError(t, json.Unmarshal(data, &rep))
	assert.Equal(t, "index out of range", rep.PanicValue)
	assert.EqualValues(t, 41, rep.Pipeline["heatmap_frames_total"])
}
