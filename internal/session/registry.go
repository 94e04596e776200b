package session

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"gwi.com/querychat/internal/conversation"
)

// Store is the part of the conversation store the Registry needs.
type Store interface {
	ListConversations(ctx context.Context, order conversation.SortOrder) ([]conversation.Summary, error)
	GetConversation(ctx context.Context, conversationID string) (*conversation.Conversation, error)
	DeleteConversation(ctx context.Context, conversationID string) error
}

// Registry keeps the conversation list in State eventually consistent with
// the store and switches the displayed conversation.
type Registry struct {
	state *State
	store Store
	order conversation.SortOrder
}

func NewRegistry(state *State, store Store) *Registry {
	return &Registry{state: state, store: store, order: conversation.SortDescending}
}

// Refresh replaces the snapshot with the store's current list, newest first.
// On failure the previous snapshot is kept.
func (r *Registry) Refresh(ctx context.Context) ([]conversation.Summary, error) {
	sessions, err := r.store.ListConversations(ctx, r.order)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to refresh conversation list, keeping stale snapshot")
		return nil, err
	}
	r.state.setSessions(sessions)
	return r.state.Sessions(), nil
}

// Select loads a conversation and makes it the displayed one. When the id no
// longer exists, or the fetch fails, the displayed conversation is left as is.
func (r *Registry) Select(ctx context.Context, conversationID string) (*conversation.Conversation, error) {
	if r.state.InFlight() {
		return nil, ErrTurnInFlight
	}

	conv, err := r.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			log.Warn().Str("conversation_id", conversationID).Msg("Selected conversation no longer exists")
		} else {
			log.Error().Err(err).Str("conversation_id", conversationID).Msg("Failed to load conversation")
		}
		return nil, err
	}
	if !r.state.show(conv) {
		return nil, ErrTurnInFlight
	}

	_, _ = r.Refresh(ctx)
	return conv, nil
}

// Remove deletes a conversation. Removing the displayed conversation clears
// the active id and message list. A NotFound from the store still clears the
// stale reference and is returned after the refresh.
func (r *Registry) Remove(ctx context.Context, conversationID string) error {
	if !r.state.canRemove(conversationID) {
		return ErrTurnInFlight
	}

	err := r.store.DeleteConversation(ctx, conversationID)
	if err != nil && !errors.Is(err, conversation.ErrNotFound) {
		log.Error().Err(err).Str("conversation_id", conversationID).Msg("Failed to delete conversation")
		return err
	}
	if err != nil {
		log.Warn().Str("conversation_id", conversationID).Msg("Deleted conversation was already gone")
	}

	if r.state.forget(conversationID) {
		log.Debug().Str("conversation_id", conversationID).Msg("Cleared active conversation")
	}
	_, _ = r.Refresh(ctx)
	return err
}

// NewSession resets to an empty, not yet persisted conversation. Nothing is
// sent to the store until the first turn.
func (r *Registry) NewSession() error {
	if !r.state.reset() {
		return ErrTurnInFlight
	}
	return nil
}
