// Package session owns one user conversation per Session: its message
// history, running token/cost summary, and status bookkeeping, persisted
// as one JSON file per session under a configurable directory. Trimmed to
// a single backend (no Agent/Provider selection) and with git-snapshot-
// backed revert/fork dropped in favor of internal/txn's transaction-level
// undo/redo, which operates independently of conversation history.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session represents one conversation between a user and the assistant.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  []Message `json:"messages"`
	Summary   *Summary  `json:"summary,omitempty"`
	Status    string    `json:"status"` // "idle", "busy", "retry"
}

// Summary tracks running session statistics.
type Summary struct {
	Additions int      `json:"additions"`
	Deletions int      `json:"deletions"`
	Files     []string `json:"files"`
	FileCount int      `json:"file_count"`
	TokensIn  int      `json:"tokens_in"`
	TokensOut int      `json:"tokens_out"`
	ToolCalls int      `json:"tool_calls"`
}

// Message represents one turn in the conversation.
type Message struct {
	ID          string        `json:"id"`
	Role        string        `json:"role"` // "user", "assistant", "tool", "system"
	Content     string        `json:"content"`
	Parts       []Part        `json:"parts,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	CompletedAt time.Time     `json:"completed_at,omitempty"`
	TokensIn    int           `json:"tokens_in,omitempty"`
	TokensOut   int           `json:"tokens_out,omitempty"`
	IsSummary   bool          `json:"is_summary,omitempty"` // true for compaction summary messages
	ParentMsgID string        `json:"parent_msg_id,omitempty"`
	FinishReason string       `json:"finish_reason,omitempty"`
	Error       *MessageError `json:"error,omitempty"`
}

// MessageError represents an error that occurred producing a message.
type MessageError struct {
	Type    string `json:"type"` // "api_error", "context_overflow", "unknown"
	Message string `json:"message"`
}

// ImageAttachment holds base64-encoded image data attached to a user
// message, e.g. a screenshot pasted into the web IDE.
type ImageAttachment struct {
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
	FileName  string `json:"file_name,omitempty"`
}

// Part represents one piece of a message: text, a tool call, a tool
// result, or an attached image.
type Part struct {
	Type        string                 `json:"type"` // "text", "tool_use", "tool_result", "image", "error"
	Content     string                 `json:"content,omitempty"`
	ToolID      string                 `json:"tool_id,omitempty"`
	ToolName    string                 `json:"tool_name,omitempty"`
	ToolInput   map[string]interface{} `json:"tool_input,omitempty"`
	IsError     bool                   `json:"is_error,omitempty"`
	IsCompacted bool                   `json:"is_compacted,omitempty"` // tool output was pruned by compaction
	PatchHash   string                 `json:"patch_hash,omitempty"`   // transaction ID of a file change
	PatchFiles  []string               `json:"patch_files,omitempty"`
	StartedAt   time.Time              `json:"started_at,omitempty"`
	EndedAt     time.Time              `json:"ended_at,omitempty"`
	Image       *ImageAttachment       `json:"image,omitempty"`
}

// Store manages session persistence under one base directory.
type Store struct {
	mu        sync.RWMutex
	baseDir   string
	sessions  map[string]*Session
	statusMgr *StatusManager

	loadDone chan struct{}
	loadErr  error
}

// NewStore creates a session store rooted at baseDir, loading any
// existing sessions from disk in the background so callers don't block
// startup on a large session directory.
func NewStore(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	store := &Store{
		baseDir:   baseDir,
		sessions:  make(map[string]*Session),
		statusMgr: NewStatusManager(),
		loadDone:  make(chan struct{}),
	}

	go func() {
		store.loadErr = store.loadAll()
		close(store.loadDone)
	}()

	return store, nil
}

func (s *Store) ensureLoaded() {
	<-s.loadDone
}

// StatusManager returns the status manager for this store.
func (s *Store) StatusManager() *StatusManager {
	return s.statusMgr
}

// Create starts a new session.
func (s *Store) Create(model string) (*Session, error) {
	s.ensureLoaded()
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := &Session{
		ID:        uuid.New().String()[:8],
		Title:     "New Session",
		Model:     model,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		Messages:  []Message{},
		Summary:   &Summary{},
		Status:    "idle",
	}

	s.sessions[sess.ID] = sess
	if err := s.save(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get retrieves a session by ID.
func (s *Store) Get(id string) (*Session, error) {
	s.ensureLoaded()
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	return sess, nil
}

// List returns all sessions sorted by most recently updated first.
func (s *Store) List() []*Session {
	s.ensureLoaded()
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions
}

// AddMessage appends a message to a session's history.
func (s *Store) AddMessage(sessionID string, msg Message) error {
	s.ensureLoaded()
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session not found: %s", sessionID)
	}

	if msg.ID == "" {
		msg.ID = uuid.New().String()[:8]
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	sess.Messages = append(sess.Messages, msg)
	sess.UpdatedAt = time.Now()

	if sess.Summary == nil {
		sess.Summary = &Summary{}
	}
	sess.Summary.TokensIn += msg.TokensIn
	sess.Summary.TokensOut += msg.TokensOut

	return s.save(sess)
}

// UpdateMessage mutates an existing message in place.
func (s *Store) UpdateMessage(sessionID, messageID string, updater func(*Message)) error {
	s.ensureLoaded()
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session not found: %s", sessionID)
	}

	for i := range sess.Messages {
		if sess.Messages[i].ID == messageID {
			updater(&sess.Messages[i])
			sess.UpdatedAt = time.Now()
			return s.save(sess)
		}
	}
	return fmt.Errorf("message not found: %s", messageID)
}

// ReplaceMessages swaps the full history for msgs, used by the
// compaction flow to replace pruned history with a summary turn.
func (s *Store) ReplaceMessages(sessionID string, msgs []Message) error {
	s.ensureLoaded()
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session not found: %s", sessionID)
	}

	for i := range msgs {
		if msgs[i].ID == "" {
			msgs[i].ID = uuid.New().String()[:8]
		}
	}
	sess.Messages = msgs
	sess.UpdatedAt = time.Now()
	return s.save(sess)
}

// UpdateTitle sets a session's display title.
func (s *Store) UpdateTitle(sessionID, title string) error {
	s.ensureLoaded()
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session not found: %s", sessionID)
	}
	sess.Title = title
	sess.UpdatedAt = time.Now()
	return s.save(sess)
}

// UpdateStatus sets a session's transient status without persisting —
// status is process-lifetime bookkeeping, not conversation state.
func (s *Store) UpdateStatus(sessionID, status string) error {
	s.ensureLoaded()
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session not found: %s", sessionID)
	}
	sess.Status = status
	return nil
}

// Delete removes a session from memory and disk.
func (s *Store) Delete(sessionID string) error {
	s.ensureLoaded()
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return fmt.Errorf("session not found: %s", sessionID)
	}
	delete(s.sessions, sessionID)
	return os.Remove(s.sessionPath(sessionID))
}

// Export returns a session's full JSON representation.
func (s *Store) Export(sessionID string) ([]byte, error) {
	s.ensureLoaded()
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session not found: %s", sessionID)
	}
	return json.MarshalIndent(sess, "", "  ")
}

// GetLatest returns the most recently updated session, or nil if none exist.
func (s *Store) GetLatest() *Session {
	sessions := s.List()
	if len(sessions) == 0 {
		return nil
	}
	return sessions[0]
}

// Compact prunes old tool outputs from a session's history in place.
func (s *Store) Compact(sessionID string) error {
	s.ensureLoaded()
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session not found: %s", sessionID)
	}
	sess.Messages = PruneToolOutputs(sess.Messages, true)
	sess.UpdatedAt = time.Now()
	return s.save(sess)
}

// GetSessionStats returns aggregate statistics for a session.
func (s *Store) GetSessionStats(sessionID string) (*Summary, error) {
	s.ensureLoaded()
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session not found: %s", sessionID)
	}

	summary := &Summary{}
	for _, msg := range sess.Messages {
		summary.TokensIn += msg.TokensIn
		summary.TokensOut += msg.TokensOut
		for _, part := range msg.Parts {
			if part.Type == "tool_use" {
				summary.ToolCalls++
			}
			if part.PatchHash != "" {
				summary.Files = append(summary.Files, part.PatchFiles...)
			}
		}
	}
	summary.FileCount = len(summary.Files)
	return summary, nil
}

func (s *Store) sessionPath(id string) string {
	return filepath.Join(s.baseDir, id+".json")
}

func (s *Store) save(sess *Session) error {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	return os.WriteFile(s.sessionPath(sess.ID), data, 0644)
}

func (s *Store) loadAll() error {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.baseDir, entry.Name()))
		if err != nil {
			continue
		}
		var sess Session
		if err := json.Unmarshal(data, &sess); err != nil {
			continue
		}
		s.sessions[sess.ID] = &sess
	}
	return nil
}
