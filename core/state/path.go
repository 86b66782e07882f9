// Package state persists kernel state to a per-session SQLite database.
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

var validSession = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// DataDir resolves the directory holding session databases, following
// XDG conventions with a home-directory fallback.
func DataDir() (string, error) {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "kaish", "kernels"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve data dir: %w", err)
	}
	return filepath.Join(home, ".local", "share", "kaish", "kernels"), nil
}

// DBPath returns the database path for a named session, creating parent
// directories as needed.
func DBPath(session string) (string, error) {
	if !validSession.MatchString(session) {
		return "", fmt.Errorf("invalid session name %q", session)
	}
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	return filepath.Join(dir, session+".db"), nil
}
