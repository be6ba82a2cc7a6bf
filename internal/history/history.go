// Package history appends structured run records to a JSONL file.
package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Sink appends one record per line. Failures never reach the run path.
type Sink interface {
	Append(path string, record any)
}

// FileSink writes JSON lines, creating parent directories as needed.
type FileSink struct{}

func (FileSink) Append(path string, record any) {
	if err := appendLine(path, record); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("history append failed")
	}
}

func appendLine(path string, record any) error {
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339),
		"event": record,
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "encode history record")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "create history dir")
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrap(err, "open history file")
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return errors.Wrap(err, "write history record")
	}
	return nil
}
