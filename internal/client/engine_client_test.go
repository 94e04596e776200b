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

func TestEngineClientTranslate(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"sql":"SELECT 1","result":{"columns":["one"],"rows":[[1]]},"chartImage":"iVBOR","title":"Ones"}`))
	}))
	defer srv.Close()

	tr, err := NewEngineClient(srv.URL, nil).Translate(context.Background(), "one?")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"question": "one?"}, got)
	assert.Equal(t, &conversation.Translation{
		SQL:        "SELECT 1",
		Result:     conversation.QueryResult{Columns: []string{"one"}, Rows: [][]any{{json.Number("1")}}},
		ChartImage: "iVBOR",
		Title:      "Ones",
	}, tr)
}

func TestEngineClientFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"unavailable", http.StatusServiceUnavailable, "overloaded", conversation.ErrTransport},
		{"no sql", http.StatusOK, `{"result":{"columns":[],"rows":[]}}`, conversation.ErrMalformedResponse},
		{"garbage", http.StatusOK, `SELECT`, conversation.ErrMalformedResponse},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewEngineClient(srv.URL, nil).Translate(context.Background(), "q")
			assert.True(t, errors.Is(err, tc.want), "%v", err)
		})
	}
}
