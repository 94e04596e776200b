package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"gwi.com/querychat/internal/conversation"
)

// maxErrorBody bounds how much of a failed response is kept in the error.
const maxErrorBody = 512

// doJSON sends body (when non-nil) as JSON and decodes a 2xx response into
// out (when non-nil). Non-2xx responses become *conversation.TransportError;
// for a 404 it wraps conversation.ErrNotFound. Undecodable bodies become
// *conversation.MalformedResponseError.
func doJSON(ctx context.Context, hc *http.Client, method, url, op string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return errors.Wrapf(err, "%s: encode request", op)
		}
		rdr = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return errors.Wrapf(err, "%s: build request", op)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return &conversation.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		terr := &conversation.TransportError{Op: op, StatusCode: resp.StatusCode}
		msg := strings.TrimSpace(string(snippet))
		switch {
		case resp.StatusCode == http.StatusNotFound && msg != "":
			terr.Err = errors.Wrap(conversation.ErrNotFound, msg)
		case resp.StatusCode == http.StatusNotFound:
			terr.Err = conversation.ErrNotFound
		case msg != "":
			terr.Err = errors.New(msg)
		}
		return terr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &conversation.MalformedResponseError{Op: op, Reason: err.Error()}
	}
	return nil
}
