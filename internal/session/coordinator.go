package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"gwi.com/querychat/internal/conversation"
)

var (
	// ErrEmptyQuestion is returned for blank input. Callers drop it silently.
	ErrEmptyQuestion = &conversation.ValidationError{Field: "question", Reason: "question is empty"}
	// ErrTurnInFlight is returned when another turn is still being submitted.
	ErrTurnInFlight = errors.New("a turn is already in flight")
)

// Assistant answers a question, creating a conversation when sessionID is
// empty and appending to it otherwise.
type Assistant interface {
	Ask(ctx context.Context, question, sessionID string) (*conversation.Answer, error)
}

// Refresher reloads the conversation list after a turn.
type Refresher interface {
	Refresh(ctx context.Context) ([]conversation.Summary, error)
}

// TurnError wraps the downstream failure of a submitted turn.
type TurnError struct {
	Question string
	Err      error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("turn %q failed: %v", e.Question, e.Err)
}

func (e *TurnError) Unwrap() error { return e.Err }

type TurnResult struct {
	ConversationID   string
	UserMessage      conversation.Message
	AssistantMessage conversation.Message
}

type Coordinator struct {
	state     *State
	assistant Assistant
	refresher Refresher // may be nil

	now   func() time.Time
	newID func() string
}

func NewCoordinator(state *State, assistant Assistant, refresher Refresher) *Coordinator {
	return &Coordinator{
		state:     state,
		assistant: assistant,
		refresher: refresher,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// SubmitTurn asks question within the active conversation, or starts a new
// one when there is none, and appends the resulting [user, assistant] pair to
// the displayed messages.
//
// Blank questions return ErrEmptyQuestion and a call made while another turn
// is in flight returns ErrTurnInFlight; neither touches the state. Any
// downstream failure appends a single "Error: ..." assistant message, records
// the error in the state and returns a *TurnError. Failed turns are not retried.
func (c *Coordinator) SubmitTurn(ctx context.Context, question string) (*TurnResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	activeID, ok := c.state.beginTurn()
	if !ok {
		log.Debug().Msg("Dropping submission, a turn is already in flight")
		return nil, ErrTurnInFlight
	}

	answer, err := c.assistant.Ask(ctx, question, activeID)
	if err == nil && answer == nil {
		err = &conversation.MalformedResponseError{Op: "ask assistant", Reason: "empty answer"}
	}
	if err == nil && activeID == "" && answer.ID == "" {
		err = &conversation.MalformedResponseError{Op: "ask assistant", Reason: "conversation id missing"}
	}
	if err != nil {
		return nil, c.fail(question, activeID, err)
	}

	conversationID := activeID
	if conversationID == "" {
		conversationID = answer.ID
	} else if answer.ID != "" && answer.ID != activeID {
		log.Warn().Str("active_id", activeID).Str("answer_id", answer.ID).Msg("Assistant answered for a different conversation, keeping the active one")
	}

	// The server echo is the display text; the typed text is only a fallback.
	userText := strings.TrimSpace(answer.Question)
	if userText == "" {
		userText = question
	}

	ts := c.now()
	res := &TurnResult{
		ConversationID: conversationID,
		UserMessage: conversation.Message{
			ID:        c.newID(),
			IsUser:    true,
			Content:   conversation.TextContent(userText),
			Timestamp: ts,
		},
		AssistantMessage: conversation.Message{
			ID:        c.newID(),
			IsUser:    false,
			Content:   answer.StructuredContent(),
			Timestamp: ts,
		},
	}
	c.state.completeTurn(conversationID, res.UserMessage, res.AssistantMessage)

	log.Debug().Str("conversation_id", conversationID).Bool("new_session", activeID == "").Msg("Turn completed")

	if c.refresher != nil {
		// Registry logs its own failures; the turn itself succeeded.
		_, _ = c.refresher.Refresh(ctx)
	}
	return res, nil
}

func (c *Coordinator) fail(question, activeID string, cause error) error {
	msg := conversation.Message{
		ID:        c.newID(),
		IsUser:    false,
		Content:   conversation.TextContent("Error: " + cause.Error()),
		Timestamp: c.now(),
	}
	c.state.failTurn(msg, cause)

	log.Error().Err(cause).Str("conversation_id", activeID).Str("question", question).Msg("Turn failed")
	return &TurnError{Question: question, Err: cause}
}
