package paths

import (
	"os"
	"path/filepath"
)

// DataDir returns the user's data directory for ramcp (debug logs).
//
// If the home directory cannot be determined, it falls back to a directory
// under the system temporary directory. This is a best-effort fallback and
// not intended to be a security boundary.
func DataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Clean(filepath.Join(os.TempDir(), ".ramcp"))
	}
	return filepath.Clean(filepath.Join(homeDir, ".ramcp"))
}
