package events

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLogger_WritesJSONL(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "audit.jsonl")

	logger, err := NewAuditLogger(logPath, 0)
	require.NoError(t, err)
	defer logger.Close()

	err = logger.Log("command_issued", map[string]interface{}{
		"session_id": "sess_20250909_163532_ek30",
		"plan_id":    "plan_001_01",
		"command_id": "cmd_plan_001_01_001",
	})
	require.NoError(t, err)

	err = logger.Log("tree_rejected", map[string]interface{}{
		"session_id": "sess_20250909_163532_ek30",
		"raw_ref":    "stepX",
	})
	require.NoError(t, err)

	f, err := os.Open(logPath)
	require.NoError(t, err)
	defer f.Close()

	var entries []LogEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e LogEntry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		entries = append(entries, e)
	}
	require.Len(t, entries, 2)

	assert.Equal(t, "command_issued", entries[0].EventType)
	assert.Equal(t, "cmd_plan_001_01_001", entries[0].CommandID)
	assert.Equal(t, "plan_001_01", entries[0].PlanID)
	assert.Equal(t, "sess_20250909_163532_ek30", entries[0].SessionID)

	assert.Equal(t, "tree_rejected", entries[1].EventType)
	assert.Equal(t, "stepX", entries[1].Details["raw_ref"])
}

func TestAuditLogger_Rotation(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "audit.jsonl")

	// tiny max size forces rotation after the first entry
	logger, err := NewAuditLogger(logPath, 200)
	require.NoError(t, err)
	defer logger.Close()

	for i := 0; i < 5; i++ {
		err := logger.Log("command_issued", map[string]interface{}{
			"command_id": "cmd_plan_001_01_001",
		})
		require.NoError(t, err)
	}

	archiveEntries, err := os.ReadDir(filepath.Join(dir, ArchiveDir))
	require.NoError(t, err)
	assert.NotEmpty(t, archiveEntries, "expected archived log files after rotation")

	// current log still exists and is writable
	assert.FileExists(t, logPath)
}
