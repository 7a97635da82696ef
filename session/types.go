package session

import (
	"errors"
	"fmt"
	"time"
)

var ErrSessionNotFound = errors.New("session not found")

// PersistenceError reports a failure of the underlying repository.
type PersistenceError struct {
	Op  string
	ID  string
	Err error
}

func (e *PersistenceError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("session %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("session %s %s: %v", e.Op, e.ID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// IsValid returns true if the role is a known role.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	default:
		return false
	}
}

type MessageMetadata struct {
	TokenCount       int    `json:"token_count,omitempty"`
	ProcessingTimeMs int64  `json:"processing_time_ms,omitempty"`
	Error            string `json:"error,omitempty"`
}

// Diagram is an opaque diagram snapshot. It is always replaced wholesale.
type Diagram struct {
	Format    string    `json:"format"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Message struct {
	ID        string           `json:"id"`
	SessionID string           `json:"session_id"`
	Role      Role             `json:"role"`
	Content   string           `json:"content"`
	Timestamp time.Time        `json:"timestamp"`
	Diagram   *Diagram         `json:"diagram,omitempty"`
	Metadata  *MessageMetadata `json:"metadata,omitempty"`
}

// Config is the per-session model configuration. The store does not
// interpret it.
type Config struct {
	Provider       string `json:"provider"`
	Model          string `json:"model"`
	CredentialsRef string `json:"credentials_ref,omitempty"`
	Format         string `json:"format"`
}

func DefaultConfig() Config {
	return Config{
		Provider: "openai",
		Model:    "gpt-4o",
		Format:   "drawio",
	}
}

type Session struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	ChatHistory    []Message `json:"chat_history"`
	CurrentDiagram *Diagram  `json:"current_diagram"`
	Config         Config    `json:"config"`
}

// Update is a partial session update. Zero fields are left untouched;
// an empty Update only refreshes LastAccessedAt.
type Update struct {
	// ChatHistory replaces the whole history when non-nil.
	ChatHistory    []Message `json:"chat_history,omitempty"`
	CurrentDiagram *Diagram  `json:"current_diagram,omitempty"`
	ClearDiagram   bool      `json:"clear_diagram,omitempty"`
	Config         *Config   `json:"config,omitempty"`
}

func (u Update) apply(s *Session) {
	if u.ChatHistory != nil {
		s.ChatHistory = append([]Message(nil), u.ChatHistory...)
	}
	if u.ClearDiagram {
		s.CurrentDiagram = nil
	}
	if u.CurrentDiagram != nil {
		d := *u.CurrentDiagram
		s.CurrentDiagram = &d
	}
	if u.Config != nil {
		s.Config = *u.Config
	}
}
