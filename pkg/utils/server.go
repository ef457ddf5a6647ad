package utils

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const serverIDFile = ".server_id"

// GetPersistentServerID names this process host in claims and execution
// records. An explicit override wins, then the id stored under storageDir,
// then the hostname. A generated id is written back so restarts keep it.
func GetPersistentServerID(override, storageDir string) string {
	if id := strings.TrimSpace(override); id != "" {
		return id
	}

	idFile := filepath.Join(storageDir, serverIDFile)
	if data, err := os.ReadFile(idFile); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id
		}
	}

	if host := hostKey(); host != "" {
		return "azbulk-" + host
	}

	id := "azbulk-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	if err := os.MkdirAll(storageDir, 0755); err == nil {
		_ = os.WriteFile(idFile, []byte(id), 0644)
	}
	return id
}

// hostKey returns the hostname reduced to characters safe in lock keys.
func hostKey() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" || hostname == "localhost" {
		return ""
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return -1
	}, hostname)
}
