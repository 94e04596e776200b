package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwi.com/querychat/internal/conversation"
)

func TestAssistantClientAsk(t *testing.T) {
	var got conversation.AskRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"abc","question":"top 5 customers","generatedSql":"SELECT ...","result":{"columns":["name"],"rows":[["Acme"]]},"status":"success"}`))
	}))
	defer srv.Close()

	answer, err := NewAssistantClient(srv.URL, nil).Ask(context.Background(), "top 5 customers", "")
	require.NoError(t, err)
	assert.Equal(t, conversation.AskRequest{Question: "top 5 customers"}, got)
	assert.Equal(t, "abc", answer.ID)
	assert.Nil(t, answer.Chart)
	assert.Equal(t, conversation.StructuredContent{
		QuerySQL:    "SELECT ...",
		QueryResult: conversation.QueryResult{Columns: []string{"name"}, Rows: [][]any{{"Acme"}}},
		ChartImage:  "",
	}, answer.StructuredContent())

	_, err = NewAssistantClient(srv.URL, nil).Ask(context.Background(), "more", "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", got.SessionID)
}

func TestAssistantClientFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"http 500", http.StatusInternalServerError, `{"status":"error","error":"boom"}`, conversation.ErrTransport},
		{"error status", http.StatusOK, `{"id":"abc","status":"error","error":"engine unavailable"}`, conversation.ErrTransport},
		{"missing status", http.StatusOK, `{"id":"abc"}`, conversation.ErrMalformedResponse},
		{"missing id", http.StatusOK, `{"status":"success"}`, conversation.ErrMalformedResponse},
		{"not json", http.StatusOK, `<html>`, conversation.ErrMalformedResponse},
		{"stale session", http.StatusNotFound, `{"status":"error","error":"conversation not found"}`, conversation.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewAssistantClient(srv.URL, nil).Ask(context.Background(), "q", "")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), err.Error())
		})
	}
}
