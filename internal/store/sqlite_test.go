package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwi.com/querychat/internal/conversation"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func userMsg(text string) conversation.NewMessage {
	return conversation.NewMessage{IsUser: true, Content: conversation.TextContent(text)}
}

func answerMsg(sql string) conversation.NewMessage {
	return conversation.NewMessage{
		IsUser: false,
		Content: conversation.StructuredContent{
			QuerySQL:    sql,
			QueryResult: conversation.QueryResult{Columns: []string{"n"}, Rows: [][]any{{"1"}}},
		},
	}
}

func TestCreateConversationWithFirstTurn(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv, err := s.CreateConversation(ctx, nil, []conversation.NewMessage{userMsg("top 5 customers"), answerMsg("SELECT 1")})
	require.NoError(t, err)
	require.NotEmpty(t, conv.ID)
	assert.Nil(t, conv.Title)
	assert.Equal(t, conversation.PlaceholderTitle, conv.DisplayTitle())
	require.Len(t, conv.Messages, 2)
	assert.True(t, conv.Messages[0].IsUser)
	assert.Equal(t, conversation.TextContent("top 5 customers"), conv.Messages[0].Content)
	assert.True(t, conversation.IsStructured(conv.Messages[1].Content))
	assert.False(t, conv.Messages[0].Timestamp.IsZero())
}

func TestCreateEmptyConversation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	title := "Revenue"
	conv, err := s.CreateConversation(ctx, &title, nil)
	require.NoError(t, err)
	assert.Empty(t, conv.Messages)
	assert.NotNil(t, conv.Messages)
	assert.Equal(t, "Revenue", conv.DisplayTitle())
}

func TestCreateNeverReusesIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		conv, err := s.CreateConversation(ctx, nil, []conversation.NewMessage{userMsg("same question")})
		require.NoError(t, err)
		assert.False(t, seen[conv.ID], "id reused: %s", conv.ID)
		seen[conv.ID] = true
	}
}

func TestAppendMessagesPreservesOrderAndFillsTimestamps(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	conv, err := s.CreateConversation(ctx, nil, nil)
	require.NoError(t, err)

	explicit := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	batch := []conversation.NewMessage{
		userMsg("first"),
		answerMsg("SELECT 'first'"),
		{IsUser: true, Content: conversation.TextContent("second"), Timestamp: explicit},
	}
	updated, err := s.AppendMessages(ctx, conv.ID, batch)
	require.NoError(t, err)
	require.Len(t, updated.Messages, 3)

	assert.Equal(t, conversation.TextContent("first"), updated.Messages[0].Content)
	assert.Equal(t, fixed, updated.Messages[0].Timestamp.UTC())
	assert.Equal(t, fixed, updated.Messages[1].Timestamp.UTC())
	assert.Equal(t, explicit, updated.Messages[2].Timestamp.UTC())
	assert.Equal(t, conversation.TextContent("second"), updated.Messages[2].Content)

	fetched, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.Messages, fetched.Messages)
}

func TestAppendToUnknownConversationIsNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.AppendMessages(context.Background(), "missing", []conversation.NewMessage{userMsg("q")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, conversation.ErrNotFound))

	list, err := s.ListConversations(context.Background(), conversation.SortDescending)
	require.NoError(t, err)
	assert.Empty(t, list, "append must not create a conversation")
}

func TestTurnsAlternateWithNonDecreasingTimestamps(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv, err := s.CreateConversation(ctx, nil, []conversation.NewMessage{userMsg("q0"), answerMsg("SELECT 0")})
	require.NoError(t, err)

	const turns = 5
	for i := 1; i < turns; i++ {
		_, err := s.AppendMessages(ctx, conv.ID, []conversation.NewMessage{userMsg(fmt.Sprintf("q%d", i)), answerMsg(fmt.Sprintf("SELECT %d", i))})
		require.NoError(t, err)
	}

	fetched, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, fetched.Messages, 2*turns)
	for i, m := range fetched.Messages {
		assert.Equal(t, i%2 == 0, m.IsUser, "message %d", i)
		if i > 0 {
			assert.False(t, m.Timestamp.Before(fetched.Messages[i-1].Timestamp), "message %d went back in time", i)
		}
	}
}

func TestConcurrentAppendsDoNotLoseUpdates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv, err := s.CreateConversation(ctx, nil, nil)
	require.NoError(t, err)

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.AppendMessages(ctx, conv.ID, []conversation.NewMessage{userMsg(fmt.Sprintf("q%d", i)), answerMsg("SELECT 1")})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	fetched, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, fetched.Messages, 2*writers)
	for i := 0; i < len(fetched.Messages); i += 2 {
		assert.True(t, fetched.Messages[i].IsUser, "batches must stay contiguous")
		assert.False(t, fetched.Messages[i+1].IsUser, "batches must stay contiguous")
	}
}

func TestGetConversationIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv, err := s.CreateConversation(ctx, nil, []conversation.NewMessage{userMsg("q"), answerMsg("SELECT 1")})
	require.NoError(t, err)

	first, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	second, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Messages, second.Messages)

	history, err := s.GetMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Messages, history)
}

func TestListConversationsSortAndCount(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Hour)
		s.now = func() time.Time { return at }
		msgs := make([]conversation.NewMessage, 0, i*2)
		for j := 0; j < i; j++ {
			msgs = append(msgs, userMsg("q"), answerMsg("SELECT 1"))
		}
		conv, err := s.CreateConversation(ctx, nil, msgs)
		require.NoError(t, err)
		ids = append(ids, conv.ID)
	}

	desc, err := s.ListConversations(ctx, conversation.SortDescending)
	require.NoError(t, err)
	require.Len(t, desc, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{desc[0].ID, desc[1].ID, desc[2].ID})
	assert.Equal(t, 4, desc[0].MessageCount)
	assert.Equal(t, conversation.PlaceholderTitle, desc[0].Title)

	asc, err := s.ListConversations(ctx, conversation.SortAscending)
	require.NoError(t, err)
	assert.Equal(t, []string{ids[0], ids[1], ids[2]}, []string{asc[0].ID, asc[1].ID, asc[2].ID})
}

func TestUpdateAndDeleteConversation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv, err := s.CreateConversation(ctx, nil, []conversation.NewMessage{userMsg("q")})
	require.NoError(t, err)

	title := "Customer ranking"
	updated, err := s.UpdateConversationTitle(ctx, conv.ID, &title)
	require.NoError(t, err)
	assert.Equal(t, "Customer ranking", updated.DisplayTitle())
	assert.Len(t, updated.Messages, 1)

	_, err = s.UpdateConversationTitle(ctx, "missing", &title)
	assert.True(t, errors.Is(err, conversation.ErrNotFound))

	require.NoError(t, s.DeleteConversation(ctx, conv.ID))

	_, err = s.GetConversation(ctx, conv.ID)
	assert.True(t, errors.Is(err, conversation.ErrNotFound))
	_, err = s.GetMessages(ctx, conv.ID)
	assert.True(t, errors.Is(err, conversation.ErrNotFound))

	err = s.DeleteConversation(ctx, conv.ID)
	assert.True(t, errors.Is(err, conversation.ErrNotFound))
}

func TestSetTitleIfUnsetKeepsExistingTitle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv, err := s.CreateConversation(ctx, nil, []conversation.NewMessage{userMsg("q")})
	require.NoError(t, err)

	saved, err := s.SetTitleIfUnset(ctx, conv.ID, "Generated")
	require.NoError(t, err)
	assert.True(t, saved)

	saved, err = s.SetTitleIfUnset(ctx, conv.ID, "Second guess")
	require.NoError(t, err)
	assert.False(t, saved)

	saved, err = s.SetTitleIfUnset(ctx, "missing", "Generated")
	require.NoError(t, err)
	assert.False(t, saved)

	fetched, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Generated", fetched.DisplayTitle())
}

func TestUnreadableMessageFailsRead(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv, err := s.CreateConversation(ctx, nil, []conversation.NewMessage{userMsg("q"), answerMsg("SELECT 1")})
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx, "UPDATE messages SET content_json = ? WHERE conversation_id = ? AND seq = 2", `42`, conv.ID)
	require.NoError(t, err)

	_, err = s.GetConversation(ctx, conv.ID)
	assert.True(t, errors.Is(err, conversation.ErrMalformedResponse))
	_, err = s.GetMessages(ctx, conv.ID)
	assert.True(t, errors.Is(err, conversation.ErrMalformedResponse))
}
