package conversation

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

const keyQuerySQL = "querySql"

// Content is the payload of a Message: either TextContent or StructuredContent.
type Content interface {
	isContent()
}

// TextContent is plain message text. User messages and synthesized error
// messages carry it.
type TextContent string

func (TextContent) isContent() {}

// QueryResult is the tabular output of a generated query. Numeric cells
// decode as json.Number so integers wider than 53 bits survive a round trip.
type QueryResult struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

func (r *QueryResult) UnmarshalJSON(data []byte) error {
	var w struct {
		Columns []string `json:"columns"`
		Rows    [][]any  `json:"rows"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&w); err != nil {
		return err
	}
	r.Columns, r.Rows = w.Columns, w.Rows
	return nil
}

// StructuredContent is an assistant answer: the generated query, its result
// and an optional base64 chart image ("" when no chart was produced).
type StructuredContent struct {
	QuerySQL    string
	QueryResult QueryResult
	ChartImage  string
}

func (StructuredContent) isContent() {}

// structuredWire is the persisted shape of StructuredContent.
type structuredWire struct {
	QuerySQL    string      `json:"querySql"`
	QueryResult QueryResult `json:"queryResult"`
	ChartBase64 string      `json:"chartBase64"`
}

// IsStructured reports whether v is a structured query-result payload.
// It accepts typed content, decoded JSON values and raw JSON bytes. Anything
// it does not recognize, nil included, is not structured.
func IsStructured(v any) bool {
	switch c := v.(type) {
	case StructuredContent:
		return true
	case *StructuredContent:
		return c != nil
	case map[string]any:
		_, ok := c[keyQuerySQL]
		return ok
	case map[string]json.RawMessage:
		_, ok := c[keyQuerySQL]
		return ok
	case json.RawMessage:
		return isStructuredJSON(c)
	case []byte:
		return isStructuredJSON(c)
	default:
		return false
	}
}

func isStructuredJSON(raw []byte) bool {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return false
	}
	return IsStructured(obj)
}

// Text returns the text of c when it is TextContent.
func Text(c Content) (string, bool) {
	t, ok := c.(TextContent)
	return string(t), ok
}

// Structured returns c as StructuredContent when IsStructured holds.
func Structured(c Content) (StructuredContent, bool) {
	if !IsStructured(c) {
		return StructuredContent{}, false
	}
	switch s := c.(type) {
	case StructuredContent:
		return s, true
	case *StructuredContent:
		return *s, true
	}
	return StructuredContent{}, false
}

// MarshalContent encodes c in its persisted shape: a JSON string or a
// querySql/queryResult/chartBase64 object.
func MarshalContent(c Content) ([]byte, error) {
	if s, ok := Structured(c); ok {
		rows := s.QueryResult.Rows
		if rows == nil {
			rows = [][]any{}
		}
		cols := s.QueryResult.Columns
		if cols == nil {
			cols = []string{}
		}
		return json.Marshal(structuredWire{
			QuerySQL:    s.QuerySQL,
			QueryResult: QueryResult{Columns: cols, Rows: rows},
			ChartBase64: s.ChartImage,
		})
	}
	if t, ok := Text(c); ok {
		return json.Marshal(t)
	}
	return nil, &ValidationError{Field: "content", Reason: "content is required"}
}

// UnmarshalContent decodes a persisted content value. The shape is decided by
// IsStructured alone; anything that is neither structured nor a string is
// rejected.
func UnmarshalContent(raw []byte) (Content, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, &ValidationError{Field: "content", Reason: "content is required"}
	}
	if IsStructured(json.RawMessage(raw)) {
		var w structuredWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, &ValidationError{Field: "content", Reason: errors.Wrap(err, "invalid structured content").Error()}
		}
		return StructuredContent{
			QuerySQL:    w.QuerySQL,
			QueryResult: w.QueryResult,
			ChartImage:  w.ChartBase64,
		}, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, &ValidationError{Field: "content", Reason: "content must be a string or a structured result"}
	}
	return TextContent(s), nil
}
