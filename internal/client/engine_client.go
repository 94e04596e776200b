package client

import (
	"context"
	"net/http"

	"gwi.com/querychat/internal/conversation"
)

// EngineClient calls the upstream NL-to-SQL engine.
type EngineClient struct {
	url  string
	http *http.Client
}

func NewEngineClient(url string, hc *http.Client) *EngineClient {
	if hc == nil {
		hc = &http.Client{}
	}
	return &EngineClient{url: url, http: hc}
}

// Translate turns a question into SQL and its result table.
func (c *EngineClient) Translate(ctx context.Context, question string) (*conversation.Translation, error) {
	const op = "translate question"
	req := struct {
		Question string `json:"question"`
	}{Question: question}

	var tr conversation.Translation
	if err := doJSON(ctx, c.http, http.MethodPost, c.url, op, req, &tr); err != nil {
		return nil, err
	}
	if tr.SQL == "" {
		return nil, &conversation.MalformedResponseError{Op: op, Reason: "sql missing"}
	}
	return &tr, nil
}
