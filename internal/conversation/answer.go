package conversation

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// AskRequest is the assistant endpoint request. An empty SessionID starts a
// new conversation.
type AskRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"sessionId,omitempty"`
}

type Chart struct {
	Image string `json:"image"`
}

// Answer is the assistant endpoint response for one turn.
type Answer struct {
	ID           string      `json:"id"`
	Question     string      `json:"question"`
	GeneratedSQL string      `json:"generatedSql"`
	Result       QueryResult `json:"result"`
	Chart        *Chart      `json:"chart,omitempty"`
	Status       string      `json:"status"`
	Error        string      `json:"error,omitempty"`
}

// StructuredContent builds the assistant message payload of the answer.
// A missing chart yields an empty ChartImage.
func (a *Answer) StructuredContent() StructuredContent {
	sc := StructuredContent{
		QuerySQL:    a.GeneratedSQL,
		QueryResult: a.Result,
	}
	if a.Chart != nil {
		sc.ChartImage = a.Chart.Image
	}
	return sc
}

// Translation is the upstream NL-to-SQL engine's reply to a question.
type Translation struct {
	SQL        string      `json:"sql"`
	Result     QueryResult `json:"result"`
	ChartImage string      `json:"chartImage,omitempty"`
	Title      string      `json:"title,omitempty"`
}
