package settings

import (
	"os"
	"path/filepath"
)

// DefaultPath resolves the per-user settings file location. The
// PASTEFLOW_SETTINGS_PATH environment variable overrides it.
func DefaultPath() string {
	if override := os.Getenv("PASTEFLOW_SETTINGS_PATH"); override != "" {
		return override
	}
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, "pasteflow", "settings.yaml")
}
