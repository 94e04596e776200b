package conversation

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// PlaceholderTitle is shown for conversations that have no title yet.
const PlaceholderTitle = "New conversation"

type Message struct {
	ID        string
	IsUser    bool
	Content   Content
	Timestamp time.Time
}

type messageWire struct {
	ID        string          `json:"id,omitempty"`
	IsUser    bool            `json:"isUser"`
	Content   json.RawMessage `json:"content"`
	Timestamp time.Time       `json:"timestamp"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	content, err := MarshalContent(m.Content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(messageWire{ID: m.ID, IsUser: m.IsUser, Content: content, Timestamp: m.Timestamp})
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var w messageWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	content, err := UnmarshalContent(w.Content)
	if err != nil {
		return err
	}
	*m = Message{ID: w.ID, IsUser: w.IsUser, Content: content, Timestamp: w.Timestamp}
	return nil
}

// Validate checks the author/content invariant: user messages are plain
// text, and every message has content.
func (m Message) Validate() error {
	if m.Content == nil {
		return &ValidationError{Field: "content", Reason: "content is required"}
	}
	if m.IsUser && IsStructured(m.Content) {
		return &ValidationError{Field: "content", Reason: "user messages must be plain text"}
	}
	return nil
}

// ValidateStored checks the invariant for persisted messages: user messages
// are plain text and assistant messages are structured results. Plain-text
// assistant messages only exist as local error notices and are never stored.
func (m Message) ValidateStored() error {
	if err := m.Validate(); err != nil {
		return err
	}
	if !m.IsUser && !IsStructured(m.Content) {
		return &ValidationError{Field: "content", Reason: "assistant messages must be structured results"}
	}
	return nil
}

// NewMessage is a message submitted for persistence. A zero Timestamp is
// filled in by the store.
type NewMessage struct {
	IsUser    bool
	Content   Content
	Timestamp time.Time
}

type newMessageWire struct {
	IsUser    bool            `json:"isUser"`
	Content   json.RawMessage `json:"content"`
	Timestamp *time.Time      `json:"timestamp,omitempty"`
}

func (m NewMessage) MarshalJSON() ([]byte, error) {
	content, err := MarshalContent(m.Content)
	if err != nil {
		return nil, err
	}
	w := newMessageWire{IsUser: m.IsUser, Content: content}
	if !m.Timestamp.IsZero() {
		ts := m.Timestamp
		w.Timestamp = &ts
	}
	return json.Marshal(w)
}

func (m *NewMessage) UnmarshalJSON(data []byte) error {
	var w newMessageWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	content, err := UnmarshalContent(w.Content)
	if err != nil {
		return err
	}
	*m = NewMessage{IsUser: w.IsUser, Content: content}
	if w.Timestamp != nil {
		m.Timestamp = *w.Timestamp
	}
	return nil
}

func (m NewMessage) Validate() error {
	return Message{IsUser: m.IsUser, Content: m.Content}.ValidateStored()
}

type Conversation struct {
	ID        string    `json:"id"`
	Title     *string   `json:"title,omitempty"` // Nullable
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (c *Conversation) DisplayTitle() string {
	return displayTitle(c.Title)
}

// Summary is the registry projection of a Conversation, without message bodies.
type Summary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	MessageCount int       `json:"messageCount"`
}

func displayTitle(title *string) string {
	if title == nil || strings.TrimSpace(*title) == "" {
		return PlaceholderTitle
	}
	return *title
}

// NewSummary projects c. The title falls back to PlaceholderTitle.
func NewSummary(c *Conversation) Summary {
	return Summary{
		ID:           c.ID,
		Title:        displayTitle(c.Title),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		MessageCount: len(c.Messages),
	}
}

// SortOrder orders conversation listings by creation date.
type SortOrder string

const (
	SortAscending  SortOrder = "asc"
	SortDescending SortOrder = "desc"
)

// ParseSortOrder accepts asc, desc, 1 and -1. The empty string means descending.
func ParseSortOrder(s string) (SortOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "desc", "-1":
		return SortDescending, nil
	case "asc", "1":
		return SortAscending, nil
	}
	return "", errors.WithStack(&ValidationError{Field: "sortByDate", Reason: "must be one of asc, desc, 1, -1"})
}
