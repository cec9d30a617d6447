package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/codefionn/agentloop/internal/logger"
)

// DefaultFileName is the durable memory document inside the state directory.
const DefaultFileName = "memory.md"

// Store is an append-only markdown document that survives compaction. Each
// fold of conversation history becomes one dated section.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a store backed by the given file path. The parent
// directory is created on first write.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Append adds one section to the document. Empty content is a no-op.
func (s *Store) Append(content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create memory directory: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open memory file: %w", err)
	}
	defer f.Close()

	section := fmt.Sprintf("## %s\n\n%s\n\n", time.Now().UTC().Format(time.RFC3339), content)
	if _, err := f.WriteString(section); err != nil {
		return fmt.Errorf("append memory: %w", err)
	}
	logger.Debug("memory: appended %d bytes to %s", len(section), s.path)
	return nil
}

// Read returns the full document, or an empty string when none exists yet.
func (s *Store) Read() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read memory file: %w", err)
	}
	return string(data), nil
}
