// Package gateway implements the assistant endpoint: it forwards a question
// to the NL-to-SQL engine and records the turn in the conversation store.
package gateway

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"gwi.com/querychat/internal/conversation"
)

// Engine translates a question into SQL and its result.
type Engine interface {
	Translate(ctx context.Context, question string) (*conversation.Translation, error)
}

// ConversationStore is the part of the store a Recorder writes through.
type ConversationStore interface {
	CreateConversation(ctx context.Context, title *string, messages []conversation.NewMessage) (*conversation.Conversation, error)
	GetConversation(ctx context.Context, conversationID string) (*conversation.Conversation, error)
	AppendMessages(ctx context.Context, conversationID string, messages []conversation.NewMessage) (*conversation.Conversation, error)
}

// Recorder persists turns. A turn without a session starts a conversation; a
// turn with one is appended to it, and never creates it when it is missing.
type Recorder struct {
	store ConversationStore
}

func NewRecorder(store ConversationStore) *Recorder {
	return &Recorder{store: store}
}

// Verify checks that sessionID still exists before any work is done for it.
func (r *Recorder) Verify(ctx context.Context, sessionID string) error {
	_, err := r.store.GetConversation(ctx, sessionID)
	return err
}

// Record stores the [user, assistant] pair of one turn and returns the id of
// the conversation it belongs to. Timestamps are assigned by the store so the
// pair shares one instant.
func (r *Recorder) Record(ctx context.Context, sessionID, question string, tr *conversation.Translation) (string, error) {
	turn := []conversation.NewMessage{
		{IsUser: true, Content: conversation.TextContent(question)},
		{IsUser: false, Content: conversation.StructuredContent{
			QuerySQL:    tr.SQL,
			QueryResult: tr.Result,
			ChartImage:  tr.ChartImage,
		}},
	}

	if sessionID == "" {
		var title *string
		if t := strings.TrimSpace(tr.Title); t != "" {
			title = &t
		}
		conv, err := r.store.CreateConversation(ctx, title, turn)
		if err != nil {
			return "", errors.Wrap(err, "create conversation")
		}
		return conv.ID, nil
	}

	if _, err := r.store.AppendMessages(ctx, sessionID, turn); err != nil {
		return "", errors.Wrapf(err, "append turn to %s", sessionID)
	}
	return sessionID, nil
}
