package session

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

type fakeAssistant struct {
	mu      sync.Mutex
	calls   []conversation.AskRequest
	answer  func(question, sessionID string) (*conversation.Answer, error)
	release chan struct{} // blocks Ask until closed when set
	entered chan struct{}
}

func (f *fakeAssistant) Ask(ctx context.Context, question, sessionID string) (*conversation.Answer, error) {
	f.mu.Lock()
	f.calls = append(f.calls, conversation.AskRequest{Question: question, SessionID: sessionID})
	f.mu.Unlock()
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	return f.answer(question, sessionID)
}

func (f *fakeAssistant) requests() []conversation.AskRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]conversation.AskRequest(nil), f.calls...)
}

type countingRefresher struct {
	mu    sync.Mutex
	count int
}

func (r *countingRefresher) Refresh(context.Context) ([]conversation.Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count++
	return nil, nil
}

func (r *countingRefresher) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func topCustomers(question, sessionID string) (*conversation.Answer, error) {
	id := sessionID
	if id == "" {
		id = "abc"
	}
	return &conversation.Answer{
		ID:           id,
		Question:     question,
		GeneratedSQL: "SELECT name FROM customers ORDER BY revenue DESC LIMIT 5",
		Result:       conversation.QueryResult{Columns: []string{"name"}, Rows: [][]any{{"Acme"}}},
		Status:       conversation.StatusSuccess,
	}, nil
}

func newTestCoordinator(a Assistant, r Refresher) (*Coordinator, *State) {
	state := NewState()
	c := NewCoordinator(state, a, r)
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }
	n := 0
	c.newID = func() string {
		n++
		return fmt.Sprintf("m%d", n)
	}
	return c, state
}

func TestSubmitTurnStartsConversation(t *testing.T) {
	assistant := &fakeAssistant{answer: topCustomers}
	refresher := &countingRefresher{}
	c, state := newTestCoordinator(assistant, refresher)

	res, err := c.SubmitTurn(context.Background(), "top 5 customers")
	require.NoError(t, err)

	assert.Equal(t, "abc", res.ConversationID)
	assert.Equal(t, "abc", state.ActiveID())
	assert.False(t, state.InFlight())
	assert.NoError(t, state.Err())
	assert.Equal(t, []conversation.AskRequest{{Question: "top 5 customers"}}, assistant.requests())

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, []conversation.Message{
		{ID: "m1", IsUser: true, Content: conversation.TextContent("top 5 customers"), Timestamp: ts},
		{ID: "m2", IsUser: false, Content: conversation.StructuredContent{
			QuerySQL:    "SELECT name FROM customers ORDER BY revenue DESC LIMIT 5",
			QueryResult: conversation.QueryResult{Columns: []string{"name"}, Rows: [][]any{{"Acme"}}},
			ChartImage:  "",
		}, Timestamp: ts},
	}, state.Messages())
	assert.Equal(t, 1, refresher.calls())
}

func TestSubmitTurnContinuesActiveConversation(t *testing.T) {
	assistant := &fakeAssistant{answer: topCustomers}
	c, state := newTestCoordinator(assistant, nil)

	_, err := c.SubmitTurn(context.Background(), "top 5 customers")
	require.NoError(t, err)
	_, err = c.SubmitTurn(context.Background(), "  and by region  ")
	require.NoError(t, err)

	assert.Equal(t, []conversation.AskRequest{
		{Question: "top 5 customers"},
		{Question: "and by region", SessionID: "abc"},
	}, assistant.requests())
	assert.Equal(t, "abc", state.ActiveID())

	msgs := state.Messages()
	require.Len(t, msgs, 4)
	for i, m := range msgs {
		assert.Equal(t, i%2 == 0, m.IsUser, "message %d", i)
	}
}

func TestSubmitTurnPrefersServerEcho(t *testing.T) {
	assistant := &fakeAssistant{answer: func(q, sid string) (*conversation.Answer, error) {
		a, _ := topCustomers(q, sid)
		a.Question = "Top 5 customers by revenue"
		return a, nil
	}}
	c, state := newTestCoordinator(assistant, nil)

	res, err := c.SubmitTurn(context.Background(), "top 5 customers")
	require.NoError(t, err)
	text, ok := conversation.Text(res.UserMessage.Content)
	require.True(t, ok)
	assert.Equal(t, "Top 5 customers by revenue", text)
	assert.Equal(t, res.UserMessage, state.Messages()[0])
}

func TestSubmitTurnFailure(t *testing.T) {
	boom := &conversation.TransportError{Op: "ask assistant", StatusCode: 500, Err: errors.New("internal server error")}
	assistant := &fakeAssistant{answer: topCustomers}
	refresher := &countingRefresher{}
	c, state := newTestCoordinator(assistant, refresher)

	_, err := c.SubmitTurn(context.Background(), "top 5 customers")
	require.NoError(t, err)
	before := state.Messages()

	assistant.answer = func(string, string) (*conversation.Answer, error) { return nil, boom }
	res, err := c.SubmitTurn(context.Background(), "and by region")
	require.Error(t, err)
	assert.Nil(t, res)

	var terr *TurnError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "and by region", terr.Question)
	assert.True(t, errors.Is(err, conversation.ErrTransport))

	msgs := state.Messages()
	require.Len(t, msgs, len(before)+1)
	last := msgs[len(msgs)-1]
	assert.False(t, last.IsUser)
	text, ok := conversation.Text(last.Content)
	require.True(t, ok)
	assert.Equal(t, "Error: "+boom.Error(), text)

	assert.Equal(t, "abc", state.ActiveID())
	assert.False(t, state.InFlight())
	assert.Equal(t, boom, state.Err())
	assert.Equal(t, 1, refresher.calls(), "failed turns do not refresh the list")

	assistant.answer = topCustomers
	_, err = c.SubmitTurn(context.Background(), "retry by hand")
	require.NoError(t, err)
	assert.NoError(t, state.Err())
}

func TestSubmitTurnFailureOnNewSessionKeepsNoID(t *testing.T) {
	assistant := &fakeAssistant{answer: func(string, string) (*conversation.Answer, error) {
		return &conversation.Answer{Status: conversation.StatusSuccess}, nil
	}}
	c, state := newTestCoordinator(assistant, nil)

	_, err := c.SubmitTurn(context.Background(), "top 5 customers")
	require.Error(t, err)
	assert.True(t, errors.Is(err, conversation.ErrMalformedResponse))
	assert.Equal(t, "", state.ActiveID())
	assert.Len(t, state.Messages(), 1)
}

func TestSubmitTurnIgnoresEmptyQuestion(t *testing.T) {
	assistant := &fakeAssistant{answer: topCustomers}
	c, state := newTestCoordinator(assistant, nil)

	for _, q := range []string{"", "   ", "\n\t"} {
		_, err := c.SubmitTurn(context.Background(), q)
		assert.True(t, errors.Is(err, ErrEmptyQuestion))
		assert.True(t, errors.Is(err, conversation.ErrValidation))
	}
	assert.Empty(t, assistant.requests())
	assert.Empty(t, state.Messages())
	assert.False(t, state.InFlight())
	assert.NoError(t, state.Err())
}

func TestSubmitTurnDropsWhileInFlight(t *testing.T) {
	assistant := &fakeAssistant{
		answer:  topCustomers,
		release: make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	c, state := newTestCoordinator(assistant, nil)

	done := make(chan error, 1)
	go func() {
		_, err := c.SubmitTurn(context.Background(), "top 5 customers")
		done <- err
	}()
	<-assistant.entered
	assert.True(t, state.InFlight())

	_, err := c.SubmitTurn(context.Background(), "second question")
	assert.True(t, errors.Is(err, ErrTurnInFlight))

	close(assistant.release)
	require.NoError(t, <-done)

	assert.Len(t, assistant.requests(), 1)
	assert.Len(t, state.Messages(), 2)
	assert.False(t, state.InFlight())
}
