package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns ~/.crmrag/logs, or a temp-dir fallback when no
// home directory is available.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".crmrag", "logs")
	}
	return filepath.Join(home, ".crmrag", "logs")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "crmrag.log")
}
