package history

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendWritesOneJSONLinePerRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.jsonl")

	require.NoError(t, appendLine(path, map[string]any{"clipboard_type": "text"}))
	require.NoError(t, appendLine(path, map[string]any{"clipboard_type": "image"}))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		entry := map[string]any{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		lines = append(lines, entry)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, lines, 2)

	first := lines[0]
	ts, ok := first["ts"].(string)
	require.True(t, ok)
	_, err = time.Parse(time.RFC3339, ts)
	assert.NoError(t, err, "ts is RFC3339")
	event := first["event"].(map[string]any)
	assert.Equal(t, "text", event["clipboard_type"])
	assert.Equal(t, "image", lines[1]["event"].(map[string]any)["clipboard_type"])
}

func TestFileSinkSwallowsFailures(t *testing.T) {
	// Appending under a path whose parent is a regular file cannot succeed;
	// the sink must not panic or surface the error.
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	assert.NotPanics(t, func() {
		FileSink{}.Append(filepath.Join(blocker, "history.jsonl"), map[string]any{"k": "v"})
	})
}
