package session

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/codefionn/agentloop/internal/llm"
	"github.com/codefionn/agentloop/internal/logger"
)

const storageVersion = 1

// storedSession is the on-disk representation. Content blocks are encoded
// through the gob registrations in the llm package.
type storedSession struct {
	Version          int
	ID               string
	WorkingDir       string
	Messages         []llm.Message
	ApprovedTools    []string
	MemoryTrackingID string
	CreatedAt        time.Time
}

// Storage persists sessions as gob files under a directory, one file per
// session id.
type Storage struct {
	dir string
}

// NewStorage creates the storage directory if needed.
func NewStorage(dir string) (*Storage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}
	return &Storage{dir: dir}, nil
}

func (st *Storage) pathFor(id string) string {
	return filepath.Join(st.dir, id+".gob")
}

// Save writes the session atomically via a temp file and rename.
func (st *Storage) Save(s *Session) error {
	stored := s.snapshot()

	tmp, err := os.CreateTemp(st.dir, "session-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	tmpName := tmp.Name()

	if err := gob.NewEncoder(tmp).Encode(stored); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("encode session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp session file: %w", err)
	}
	if err := os.Rename(tmpName, st.pathFor(stored.ID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename session file: %w", err)
	}

	s.markClean()
	logger.Debug("session: saved %s (%d messages)", stored.ID, len(stored.Messages))
	return nil
}

// Load restores a session by id.
func (st *Storage) Load(id string) (*Session, error) {
	f, err := os.Open(st.pathFor(id))
	if err != nil {
		return nil, fmt.Errorf("open session file: %w", err)
	}
	defer f.Close()

	var stored storedSession
	if err := gob.NewDecoder(f).Decode(&stored); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if stored.Version != storageVersion {
		return nil, fmt.Errorf("unsupported session version %d", stored.Version)
	}

	s := &Session{}
	s.restore(stored)
	logger.Debug("session: loaded %s (%d messages)", stored.ID, len(stored.Messages))
	return s, nil
}

// List returns the ids of all persisted sessions.
func (st *Storage) List() ([]string, error) {
	entries, err := os.ReadDir(st.dir)
	if err != nil {
		return nil, fmt.Errorf("read session directory: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if filepath.Ext(name) == ".gob" {
			ids = append(ids, name[:len(name)-len(".gob")])
		}
	}
	return ids, nil
}

// Delete removes a persisted session.
func (st *Storage) Delete(id string) error {
	if err := os.Remove(st.pathFor(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete session file: %w", err)
	}
	return nil
}
