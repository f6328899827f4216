package memory

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	agenterrors "github.com/rfplab/proposal-agent/internal/errors"
)

// SessionStore persists per-session snapshots. Implementations:
// FileSessionStore (default) and RedisSessionStore.
type SessionStore interface {
	// Save persists the snapshot under its session ID.
	Save(ctx context.Context, snap *SessionSnapshot) error

	// Load returns the snapshot for a session, or (nil, nil) when absent.
	Load(ctx context.Context, sessionID string) (*SessionSnapshot, error)

	// Delete removes a session's snapshot. Missing sessions are not an error.
	Delete(ctx context.Context, sessionID string) error
}

// FileSessionStore writes one indented UTF-8 JSON document per session under
// a sessions directory. Files are safe to hand-edit or delete to reset state.
type FileSessionStore struct {
	dir string
}

// NewFileSessionStore creates the sessions directory if needed.
func NewFileSessionStore(dir string) (*FileSessionStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, agenterrors.NewStorageError("init", dir, err)
	}
	return &FileSessionStore{dir: dir}, nil
}

// Save persists the snapshot as <dir>/<session_id>.json.
func (f *FileSessionStore) Save(_ context.Context, snap *SessionSnapshot) error {
	if snap == nil || snap.SessionID == "" {
		return agenterrors.NewValidationError("session", "session id is required")
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return agenterrors.NewStorageError("save_session", snap.SessionID, err)
	}
	path := f.path(snap.SessionID)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return agenterrors.NewStorageError("save_session", path, err)
	}
	return nil
}

// Load reads a session snapshot, returning (nil, nil) when the file does not exist.
func (f *FileSessionStore) Load(_ context.Context, sessionID string) (*SessionSnapshot, error) {
	path := f.path(sessionID)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, agenterrors.NewStorageError("load_session", path, err)
	}

	var snap SessionSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, agenterrors.NewStorageError("load_session", path, err)
	}
	return &snap, nil
}

// Delete removes the session file if present.
func (f *FileSessionStore) Delete(_ context.Context, sessionID string) error {
	err := os.Remove(f.path(sessionID))
	if err != nil && !os.IsNotExist(err) {
		return agenterrors.NewStorageError("delete_session", sessionID, err)
	}
	return nil
}

func (f *FileSessionStore) path(sessionID string) string {
	return filepath.Join(f.dir, sessionID+".json")
}
