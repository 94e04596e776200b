package client

import (
	"context"
	"net/http"

	"github.com/pkg/errors"

	"gwi.com/querychat/internal/conversation"
)

// AssistantClient asks questions of the assistant endpoint.
type AssistantClient struct {
	url  string
	http *http.Client
}

// NewAssistantClient returns a client posting to url. A nil hc uses a client
// without timeout.
func NewAssistantClient(url string, hc *http.Client) *AssistantClient {
	if hc == nil {
		hc = &http.Client{}
	}
	return &AssistantClient{url: url, http: hc}
}

// Ask submits a question, within sessionID when non-empty. An answer whose
// status is not "success" is reported as a transport failure.
func (c *AssistantClient) Ask(ctx context.Context, question, sessionID string) (*conversation.Answer, error) {
	const op = "ask assistant"
	req := conversation.AskRequest{Question: question, SessionID: sessionID}

	var answer conversation.Answer
	if err := doJSON(ctx, c.http, http.MethodPost, c.url, op, req, &answer); err != nil {
		return nil, err
	}

	switch {
	case answer.Status == "":
		return nil, &conversation.MalformedResponseError{Op: op, Reason: "status missing"}
	case answer.Status != conversation.StatusSuccess:
		reason := answer.Error
		if reason == "" {
			reason = "assistant reported status " + answer.Status
		}
		return nil, &conversation.TransportError{Op: op, Err: errors.New(reason)}
	case answer.ID == "":
		return nil, &conversation.MalformedResponseError{Op: op, Reason: "conversation id missing"}
	}
	return &answer, nil
}
