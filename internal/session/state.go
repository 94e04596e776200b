// Package session holds the client side of a conversation: the per-session
// state, the Coordinator that submits turns and the Registry that lists,
// selects and removes conversations.
//
// One State is created per client session and shared by reference between a
// Coordinator and a Registry. There is no package-level state, so several
// independent sessions can live in one process.
package session

import (
	"sync"

	"gwi.com/querychat/internal/conversation"
)

type State struct {
	mu       sync.Mutex
	activeID string
	messages []conversation.Message
	inFlight bool
	err      error
	sessions []conversation.Summary
}

func NewState() *State {
	return &State{}
}

// ActiveID is the id of the displayed conversation, "" for a new session.
func (s *State) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Messages returns a copy of the displayed message list.
func (s *State) Messages() []conversation.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]conversation.Message(nil), s.messages...)
}

// InFlight reports whether a turn is being submitted. Input should be
// disabled while it is set.
func (s *State) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// Err is the error of the last failed turn, nil after a success.
func (s *State) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Sessions returns a copy of the last registry snapshot.
func (s *State) Sessions() []conversation.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]conversation.Summary(nil), s.sessions...)
}

// beginTurn sets the in-flight flag. It returns false, changing nothing, when
// a turn is already in flight.
func (s *State) beginTurn() (activeID string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return "", false
	}
	s.inFlight = true
	return s.activeID, true
}

func (s *State) completeTurn(conversationID string, user, assistant conversation.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeID = conversationID
	s.messages = append(s.messages, user, assistant)
	s.inFlight = false
	s.err = nil
}

func (s *State) failTurn(errorMessage conversation.Message, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, errorMessage)
	s.inFlight = false
	s.err = err
}

// show replaces the displayed conversation unless a turn is in flight.
func (s *State) show(conv *conversation.Conversation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return false
	}
	s.activeID = conv.ID
	s.messages = append([]conversation.Message(nil), conv.Messages...)
	s.err = nil
	return true
}

// reset starts a new, not yet persisted session unless a turn is in flight.
func (s *State) reset() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return false
	}
	s.activeID = ""
	s.messages = nil
	s.err = nil
	return true
}

// canRemove reports whether id may be deleted now: the active conversation
// cannot be removed under an in-flight turn.
func (s *State) canRemove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !(s.inFlight && s.activeID == id)
}

// forget clears the active pointer and messages when id is active.
func (s *State) forget(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeID != id {
		return false
	}
	s.activeID = ""
	s.messages = nil
	return true
}

func (s *State) setSessions(sessions []conversation.Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append([]conversation.Summary(nil), sessions...)
}
