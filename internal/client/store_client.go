package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"gwi.com/querychat/internal/conversation"
)

// StoreClient talks to the conversation persistence endpoint.
type StoreClient struct {
	baseURL string
	http    *http.Client
}

// NewStoreClient returns a client for the store rooted at baseURL
// (e.g. http://localhost:4000). A nil hc uses a client without timeout.
func NewStoreClient(baseURL string, hc *http.Client) *StoreClient {
	if hc == nil {
		hc = &http.Client{}
	}
	return &StoreClient{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

func (c *StoreClient) conversationsURL(parts ...string) string {
	u := c.baseURL + "/conversations"
	for _, p := range parts {
		u += "/" + url.PathEscape(p)
	}
	return u
}

func validConversation(op string, conv *conversation.Conversation) (*conversation.Conversation, error) {
	if conv.ID == "" {
		return nil, &conversation.MalformedResponseError{Op: op, Reason: "conversation id missing"}
	}
	for i, m := range conv.Messages {
		if err := m.ValidateStored(); err != nil {
			return nil, &conversation.MalformedResponseError{Op: op, Reason: fmt.Sprintf("message %d: %v", i, err)}
		}
	}
	if conv.Messages == nil {
		conv.Messages = []conversation.Message{}
	}
	return conv, nil
}

func (c *StoreClient) CreateConversation(ctx context.Context, title *string, messages []conversation.NewMessage) (*conversation.Conversation, error) {
	const op = "create conversation"
	body := struct {
		Title    *string                   `json:"title,omitempty"`
		Messages []conversation.NewMessage `json:"messages,omitempty"`
	}{Title: title, Messages: messages}

	var conv conversation.Conversation
	if err := doJSON(ctx, c.http, http.MethodPost, c.conversationsURL(), op, body, &conv); err != nil {
		return nil, err
	}
	return validConversation(op, &conv)
}

// AppendMessage appends one message. The conversation must exist.
func (c *StoreClient) AppendMessage(ctx context.Context, conversationID string, message conversation.NewMessage) (*conversation.Conversation, error) {
	const op = "append message"
	raw, err := json.Marshal(message)
	if err != nil {
		return nil, err
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}
	body["id"], _ = json.Marshal(conversationID)

	var conv conversation.Conversation
	if err := doJSON(ctx, c.http, http.MethodPost, c.conversationsURL("message"), op, body, &conv); err != nil {
		return nil, err
	}
	return validConversation(op, &conv)
}

// AppendMessages appends a batch in order. The conversation must exist.
func (c *StoreClient) AppendMessages(ctx context.Context, conversationID string, messages []conversation.NewMessage) (*conversation.Conversation, error) {
	const op = "append messages"
	body := struct {
		ID       string                    `json:"id"`
		Messages []conversation.NewMessage `json:"messages"`
	}{ID: conversationID, Messages: messages}

	var conv conversation.Conversation
	if err := doJSON(ctx, c.http, http.MethodPost, c.conversationsURL("multiple-messages"), op, body, &conv); err != nil {
		return nil, err
	}
	return validConversation(op, &conv)
}

func (c *StoreClient) ListConversations(ctx context.Context, order conversation.SortOrder) ([]conversation.Summary, error) {
	const op = "list conversations"
	if order == "" {
		order = conversation.SortDescending
	}
	u := c.conversationsURL() + "?sortByDate=" + url.QueryEscape(string(order))

	var summaries []conversation.Summary
	if err := doJSON(ctx, c.http, http.MethodGet, u, op, nil, &summaries); err != nil {
		return nil, err
	}
	for _, s := range summaries {
		if s.ID == "" {
			return nil, &conversation.MalformedResponseError{Op: op, Reason: "conversation id missing"}
		}
	}
	if summaries == nil {
		summaries = []conversation.Summary{}
	}
	return summaries, nil
}

func (c *StoreClient) GetConversation(ctx context.Context, conversationID string) (*conversation.Conversation, error) {
	const op = "get conversation"
	var conv conversation.Conversation
	if err := doJSON(ctx, c.http, http.MethodGet, c.conversationsURL(conversationID), op, nil, &conv); err != nil {
		return nil, err
	}
	return validConversation(op, &conv)
}

// History fetches only the message list of a conversation.
func (c *StoreClient) History(ctx context.Context, conversationID string) ([]conversation.Message, error) {
	const op = "get history"
	var hist struct {
		ID       string                 `json:"id"`
		Messages []conversation.Message `json:"messages"`
	}
	if err := doJSON(ctx, c.http, http.MethodGet, c.conversationsURL("history", conversationID), op, nil, &hist); err != nil {
		return nil, err
	}
	conv, err := validConversation(op, &conversation.Conversation{ID: conversationID, Messages: hist.Messages})
	if err != nil {
		return nil, err
	}
	return conv.Messages, nil
}

func (c *StoreClient) UpdateConversation(ctx context.Context, conversationID string, title *string) (*conversation.Conversation, error) {
	const op = "update conversation"
	body := struct {
		Title *string `json:"title"`
	}{Title: title}

	var conv conversation.Conversation
	if err := doJSON(ctx, c.http, http.MethodPatch, c.conversationsURL(conversationID), op, body, &conv); err != nil {
		return nil, err
	}
	return validConversation(op, &conv)
}

func (c *StoreClient) DeleteConversation(ctx context.Context, conversationID string) error {
	return doJSON(ctx, c.http, http.MethodDelete, c.conversationsURL(conversationID), "delete conversation", nil, nil)
}
