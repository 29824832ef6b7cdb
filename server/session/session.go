// Package session keeps per-visitor chat state. The browser holds a signed
// cookie with the session id only; the state itself lives in a Store.
package session

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Chat roles stored in the history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat history entry. Assistant content is HTML ready for
// display; user content is raw text.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Session is the state of one visitor.
type Session struct {
	ID            string    `json:"id"`
	ChatHistory   []Message `json:"chat_history"`
	PromptsMemory []string  `json:"prompts_memory"`
	Role          string    `json:"role,omitempty"`

	// Initialized is set once the history exists; the welcome message is
	// only ever seeded into a session that was never initialized.
	Initialized bool      `json:"initialized"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	isNew bool
}

// New creates an empty session with a fresh ULID.
func New() *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        ulid.Make().String(),
		CreatedAt: now,
		UpdatedAt: now,
		isNew:     true,
	}
}

// IsNew reports whether the session was created during this request.
func (s *Session) IsNew() bool {
	return s.isNew
}

// EnsureInitialized seeds the welcome message on first use. It reports
// whether it did.
func (s *Session) EnsureInitialized(welcome string) bool {
	if s.Initialized {
		return false
	}
	s.Initialized = true
	if len(s.ChatHistory) > 0 {
		return false
	}
	s.ChatHistory = []Message{{Role: RoleAssistant, Content: welcome}}
	s.touch()
	return true
}

// AppendMessage adds an entry to the chat history.
func (s *Session) AppendMessage(role, content string) {
	s.Initialized = true
	s.ChatHistory = append(s.ChatHistory, Message{Role: role, Content: content})
	s.touch()
}

// Remember appends msg to the prompt memory and keeps only the newest max
// entries.
func (s *Session) Remember(msg string, max int) {
	s.PromptsMemory = append(s.PromptsMemory, msg)
	if max > 0 && len(s.PromptsMemory) > max {
		trimmed := make([]string, max)
		copy(trimmed, s.PromptsMemory[len(s.PromptsMemory)-max:])
		s.PromptsMemory = trimmed
	}
	s.touch()
}

// PriorMemory returns the memory without its newest entry, the message
// currently being answered.
func (s *Session) PriorMemory() []string {
	if len(s.PromptsMemory) <= 1 {
		return nil
	}
	prior := make([]string, len(s.PromptsMemory)-1)
	copy(prior, s.PromptsMemory[:len(s.PromptsMemory)-1])
	return prior
}

// Reset clears history and memory and re-seeds the welcome message. The
// role is kept.
func (s *Session) Reset(welcome string) {
	s.ChatHistory = []Message{{Role: RoleAssistant, Content: welcome}}
	s.PromptsMemory = nil
	s.Initialized = true
	s.touch()
}

// SetRole overwrites the persona label.
func (s *Session) SetRole(role string) {
	s.Role = role
	s.touch()
}

// CurrentRole returns the stored role or def when none is set.
func (s *Session) CurrentRole(def string) string {
	if s.Role == "" {
		return def
	}
	return s.Role
}

// Clone returns a deep copy. The copy is never marked new.
func (s *Session) Clone() *Session {
	c := *s
	c.isNew = false
	if s.ChatHistory != nil {
		c.ChatHistory = make([]Message, len(s.ChatHistory))
		copy(c.ChatHistory, s.ChatHistory)
	}
	if s.PromptsMemory != nil {
		c.PromptsMemory = make([]string, len(s.PromptsMemory))
		copy(c.PromptsMemory, s.PromptsMemory)
	}
	return &c
}

func (s *Session) touch() {
	s.UpdatedAt = time.Now().UTC()
}
