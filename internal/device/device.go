package device

import (
	"os"
	"strings"

	"github.com/google/uuid"
)

// SessionManager builds the terminal session id that, together with the
// reader name, forms the session identity against the backend
type SessionManager struct{}

// NewSessionManager creates a new session manager
func NewSessionManager() *SessionManager {
	return &SessionManager{}
}

// GetOrGenerateSessionID returns the configured session id if set, else a
// fresh id unique to this terminal run. The id carries a stable machine
// prefix when one can be determined, so backend logs tie sessions to
// terminals across restarts.
func (sm *SessionManager) GetOrGenerateSessionID(existingID string) (string, error) {
	if existingID != "" {
		return existingID, nil
	}

	runID := uuid.New().String()[:8]

	if prefix := sm.machinePrefix(); prefix != "" {
		return prefix + "-" + runID, nil
	}
	return uuid.New().String(), nil
}

// machinePrefix derives a short stable terminal identifier
func (sm *SessionManager) machinePrefix() string {
	// Try /etc/machine-id
	machineID, err := os.ReadFile("/etc/machine-id")
	if err != nil {
		machineID, err = os.ReadFile("/var/lib/dbus/machine-id")
	}
	if err == nil {
		id := strings.TrimSpace(string(machineID))
		if len(id) >= 8 {
			return id[:8]
		}
	}

	hostname, err := os.Hostname()
	if err == nil && hostname != "" {
		return hostname
	}

	return ""
}
