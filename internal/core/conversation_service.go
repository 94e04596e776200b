package core

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"gwi.com/querychat/internal/conversation"
	"gwi.com/querychat/internal/store"
)

const titleTimeout = 30 * time.Second

// TitleGenerator produces a short label for a conversation from its first question.
type TitleGenerator interface {
	GenerateTitle(ctx context.Context, basis string) (string, error)
}

type ConversationService struct {
	dbStore *store.SQLiteStore
	titler  TitleGenerator // nil disables title generation

	titleJobs sync.WaitGroup
	pending   sync.Map // conversation id -> struct{}
}

func NewConversationService(db *store.SQLiteStore, titler TitleGenerator) *ConversationService {
	return &ConversationService{
		dbStore: db,
		titler:  titler,
	}
}

func validateBatch(messages []conversation.NewMessage) error {
	for i, m := range messages {
		if err := m.Validate(); err != nil {
			return errors.Wrapf(err, "message %d", i)
		}
	}
	return nil
}

func normalizeTitle(title *string) *string {
	if title == nil {
		return nil
	}
	t := strings.TrimSpace(*title)
	if t == "" {
		return nil
	}
	return &t
}

// CreateConversation stores a conversation with optional initial messages.
// Untitled conversations get a generated title in the background.
func (s *ConversationService) CreateConversation(ctx context.Context, title *string, messages []conversation.NewMessage) (*conversation.Conversation, error) {
	if err := validateBatch(messages); err != nil {
		return nil, err
	}
	conv, err := s.dbStore.CreateConversation(ctx, normalizeTitle(title), messages)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create conversation in DB")
	}
	s.maybeGenerateTitle(conv)
	return conv, nil
}

// AppendMessages appends a non-empty batch to an existing conversation.
func (s *ConversationService) AppendMessages(ctx context.Context, conversationID string, messages []conversation.NewMessage) (*conversation.Conversation, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, &conversation.ValidationError{Field: "id", Reason: "conversation id is required"}
	}
	if len(messages) == 0 {
		return nil, &conversation.ValidationError{Field: "messages", Reason: "at least one message is required"}
	}
	if err := validateBatch(messages); err != nil {
		return nil, err
	}
	conv, err := s.dbStore.AppendMessages(ctx, conversationID, messages)
	if err != nil {
		return nil, err
	}
	// Conversations created empty get their title once a question arrives.
	s.maybeGenerateTitle(conv)
	return conv, nil
}

func (s *ConversationService) GetConversation(ctx context.Context, conversationID string) (*conversation.Conversation, error) {
	return s.dbStore.GetConversation(ctx, conversationID)
}

func (s *ConversationService) GetHistory(ctx context.Context, conversationID string) ([]conversation.Message, error) {
	return s.dbStore.GetMessages(ctx, conversationID)
}

func (s *ConversationService) ListConversations(ctx context.Context, order conversation.SortOrder) ([]conversation.Summary, error) {
	return s.dbStore.ListConversations(ctx, order)
}

// UpdateTitle sets a conversation title. A blank title clears it.
func (s *ConversationService) UpdateTitle(ctx context.Context, conversationID string, title *string) (*conversation.Conversation, error) {
	return s.dbStore.UpdateConversationTitle(ctx, conversationID, normalizeTitle(title))
}

func (s *ConversationService) DeleteConversation(ctx context.Context, conversationID string) error {
	return s.dbStore.DeleteConversation(ctx, conversationID)
}

// Wait blocks until background title generation has finished.
func (s *ConversationService) Wait() {
	s.titleJobs.Wait()
}

func (s *ConversationService) maybeGenerateTitle(conv *conversation.Conversation) {
	if s.titler == nil || conv.Title != nil {
		return
	}
	basis := firstQuestion(conv.Messages)
	if basis == "" {
		return
	}
	if _, running := s.pending.LoadOrStore(conv.ID, struct{}{}); running {
		return
	}

	s.titleJobs.Add(1)
	go func() {
		defer s.titleJobs.Done()
		defer s.pending.Delete(conv.ID)
		s.generateAndSaveTitle(conv.ID, basis)
	}()
}

func firstQuestion(messages []conversation.Message) string {
	for _, m := range messages {
		if !m.IsUser {
			continue
		}
		if text, ok := conversation.Text(m.Content); ok && strings.TrimSpace(text) != "" {
			return text
		}
	}
	return ""
}

func (s *ConversationService) generateAndSaveTitle(conversationID string, basis string) {
	ctx, cancel := context.WithTimeout(context.Background(), titleTimeout)
	defer cancel()

	log.Debug().Str("conversation_id", conversationID).Msg("Attempting to generate title")
	title, err := s.titler.GenerateTitle(ctx, basis)
	if err != nil {
		log.Warn().Err(err).Str("conversation_id", conversationID).Msg("Failed to generate title")
		return
	}
	title = strings.Trim(title, "\"'\n\r\t .")
	if title == "" {
		return
	}

	saved, err := s.dbStore.SetTitleIfUnset(ctx, conversationID, title)
	if err != nil {
		log.Warn().Err(err).Str("conversation_id", conversationID).Str("title", title).Msg("Failed to save generated title")
		return
	}
	if !saved {
		log.Debug().Str("conversation_id", conversationID).Msg("Conversation titled or removed meanwhile, dropping generated title")
		return
	}
	log.Info().Str("conversation_id", conversationID).Str("title", title).Msg("Saved generated title")
}
