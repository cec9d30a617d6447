package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/codefionn/agentloop/internal/llm"
)

// Session holds the mutable state of one conversation: its message history,
// per-session tool approvals and the compaction tracking identifier.
// All accessors are safe for concurrent use.
type Session struct {
	mu sync.RWMutex

	id               string
	workingDir       string
	messages         []llm.Message
	approvedTools    map[string]bool
	memoryTrackingID string
	createdAt        time.Time
	dirty            bool
}

// New creates an empty session rooted at workingDir.
func New(workingDir string) *Session {
	return &Session{
		id:            fmt.Sprintf("session-%d", time.Now().UnixNano()),
		workingDir:    workingDir,
		approvedTools: make(map[string]bool),
		createdAt:     time.Now(),
	}
}

func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

func (s *Session) WorkingDir() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.workingDir
}

// AddMessage appends one message to history.
func (s *Session) AddMessage(msg llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	s.dirty = true
}

// History returns a copy of the message list. Block slices are shared; blocks
// are treated as immutable throughout.
func (s *Session) History() []llm.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]llm.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// ReplaceHistory swaps the entire message list, as compaction does.
func (s *Session) ReplaceHistory(messages []llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = make([]llm.Message, len(messages))
	copy(s.messages, messages)
	s.dirty = true
}

// Len returns the current history length.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// ApproveTool records a session-wide allow for a tool name.
func (s *Session) ApproveTool(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approvedTools[name] = true
	s.dirty = true
}

// IsToolApproved reports whether the tool was allowed for the session.
func (s *Session) IsToolApproved(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.approvedTools[name]
}

// MemoryTrackingID returns the identifier persisted by the last successful
// durable-memory compaction, or empty.
func (s *Session) MemoryTrackingID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.memoryTrackingID
}

// SetMemoryTrackingID records the identifier of a durable-memory compaction.
func (s *Session) SetMemoryTrackingID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memoryTrackingID = id
	s.dirty = true
}

// Clear drops history, approvals and the tracking id, keeping identity.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.approvedTools = make(map[string]bool)
	s.memoryTrackingID = ""
	s.dirty = true
}

// Dirty reports whether the session changed since the last save.
func (s *Session) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

func (s *Session) markClean() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = false
}

// snapshot captures the persistable state under the read lock.
func (s *Session) snapshot() storedSession {
	s.mu.RLock()
	defer s.mu.RUnlock()

	approved := make([]string, 0, len(s.approvedTools))
	for name := range s.approvedTools {
		approved = append(approved, name)
	}
	messages := make([]llm.Message, len(s.messages))
	copy(messages, s.messages)

	return storedSession{
		Version:          storageVersion,
		ID:               s.id,
		WorkingDir:       s.workingDir,
		Messages:         messages,
		ApprovedTools:    approved,
		MemoryTrackingID: s.memoryTrackingID,
		CreatedAt:        s.createdAt,
	}
}

// restore overwrites the session from persisted state.
func (s *Session) restore(stored storedSession) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.id = stored.ID
	s.workingDir = stored.WorkingDir
	s.messages = stored.Messages
	s.approvedTools = make(map[string]bool, len(stored.ApprovedTools))
	for _, name := range stored.ApprovedTools {
		s.approvedTools[name] = true
	}
	s.memoryTrackingID = stored.MemoryTrackingID
	s.createdAt = stored.CreatedAt
	s.dirty = false
}
