// Package identity assigns this process a stable anonymous principal
// id. The id persists in a state file so reconnects and restarts keep
// the same identity, which is what lets a rejoining client reclaim its
// player record.
package identity

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// DefaultPath returns the default location of the identity file.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, "quizwar", "identity"), nil
}

// Ensure returns the principal id stored at path, creating and
// persisting a fresh one on first use. The id carries no credential;
// it is only a stable name.
func Ensure(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if _, parseErr := uuid.Parse(id); parseErr == nil {
			return id, nil
		}
		// Corrupt file: fall through and mint a new identity.
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("read identity file: %w", err)
	}

	id := uuid.New().String()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("create identity dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("write identity file: %w", err)
	}
	return id, nil
}
