package session

import (
	"encoding/json"
	"fmt"
	"time"
)

// Record is the persisted form of a Session. Nested values are stored
// serialized so the repository can treat them as opaque columns.
type Record struct {
	ID             string          `json:"id"`
	CreatedAt      time.Time       `json:"created_at"`
	LastAccessedAt time.Time       `json:"last_accessed_at"`
	ChatHistory    json.RawMessage `json:"chat_history"`
	CurrentDiagram json.RawMessage `json:"current_diagram"`
	Config         json.RawMessage `json:"config"`
}

// Repository is a keyed record store with a last-accessed index.
// Put is a whole-record upsert. Delete of a missing id is not an error.
type Repository interface {
	Put(rec Record) error
	Get(id string) (Record, bool, error)
	Delete(id string) error
	// ListAccessedBefore returns ids with LastAccessedAt strictly before
	// cutoff, oldest first.
	ListAccessedBefore(cutoff time.Time) ([]string, error)
}

func toRecord(s Session) (Record, error) {
	history := s.ChatHistory
	if history == nil {
		history = []Message{}
	}
	historyData, err := json.Marshal(history)
	if err != nil {
		return Record{}, fmt.Errorf("encode chat history: %w", err)
	}
	diagramData := json.RawMessage("null")
	if s.CurrentDiagram != nil {
		if diagramData, err = json.Marshal(s.CurrentDiagram); err != nil {
			return Record{}, fmt.Errorf("encode diagram: %w", err)
		}
	}
	configData, err := json.Marshal(s.Config)
	if err != nil {
		return Record{}, fmt.Errorf("encode config: %w", err)
	}
	return Record{
		ID:             s.ID,
		CreatedAt:      s.CreatedAt,
		LastAccessedAt: s.LastAccessedAt,
		ChatHistory:    historyData,
		CurrentDiagram: diagramData,
		Config:         configData,
	}, nil
}

func fromRecord(rec Record) (Session, error) {
	s := Session{
		ID:             rec.ID,
		CreatedAt:      rec.CreatedAt,
		LastAccessedAt: rec.LastAccessedAt,
		ChatHistory:    []Message{},
		Config:         DefaultConfig(),
	}
	if len(rec.ChatHistory) > 0 {
		if err := json.Unmarshal(rec.ChatHistory, &s.ChatHistory); err != nil {
			return Session{}, fmt.Errorf("decode chat history: %w", err)
		}
		if s.ChatHistory == nil {
			s.ChatHistory = []Message{}
		}
	}
	if len(rec.CurrentDiagram) > 0 {
		if err := json.Unmarshal(rec.CurrentDiagram, &s.CurrentDiagram); err != nil {
			return Session{}, fmt.Errorf("decode diagram: %w", err)
		}
	}
	if len(rec.Config) > 0 {
		if err := json.Unmarshal(rec.Config, &s.Config); err != nil {
			return Session{}, fmt.Errorf("decode config: %w", err)
		}
	}
	return s, nil
}
