package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gwi.com/querychat/internal/conversation"
)

const timeLayout = "2006-01-02 15:04"

// maxPrintedRows bounds the result table printed for one answer.
const maxPrintedRows = 20

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}

func printSessions(w io.Writer, sessions []conversation.Summary, activeID string) {
	if len(sessions) == 0 {
		printf(w, "No conversations yet.\n")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	printf(tw, "\tID\tTITLE\tMESSAGES\tUPDATED\n")
	for _, s := range sessions {
		marker := ""
		if s.ID == activeID {
			marker = "*"
		}
		printf(tw, "%s\t%s\t%s\t%d\t%s\n", marker, s.ID, s.Title, s.MessageCount, s.UpdatedAt.Local().Format(timeLayout))
	}
	_ = tw.Flush()
}

func printConversation(w io.Writer, conv *conversation.Conversation) {
	printf(w, "# %s (%s)\n", conv.DisplayTitle(), conv.ID)
	for _, m := range conv.Messages {
		printMessage(w, m)
	}
}

func printMessage(w io.Writer, m conversation.Message) {
	if text, ok := conversation.Text(m.Content); ok {
		if m.IsUser {
			printf(w, "you: %s\n", text)
		} else {
			printf(w, "assistant: %s\n", text)
		}
		return
	}

	s, ok := conversation.Structured(m.Content)
	if !ok {
		return
	}
	printf(w, "assistant:\n  %s\n", strings.ReplaceAll(strings.TrimSpace(s.QuerySQL), "\n", "\n  "))
	printTable(w, s.QueryResult)
	if s.ChartImage != "" {
		printf(w, "  [chart, %d bytes base64]\n", len(s.ChartImage))
	}
}

func printTable(w io.Writer, res conversation.QueryResult) {
	if len(res.Columns) == 0 {
		printf(w, "  (no columns)\n")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	printf(tw, "  %s\n", strings.Join(res.Columns, "\t"))
	for i, row := range res.Rows {
		if i == maxPrintedRows {
			break
		}
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = formatCell(v)
		}
		printf(tw, "  %s\n", strings.Join(cells, "\t"))
	}
	_ = tw.Flush()
	if n := len(res.Rows); n > maxPrintedRows {
		printf(w, "  ... %d more rows\n", n-maxPrintedRows)
	} else if n == 0 {
		printf(w, "  (no rows)\n")
	}
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case json.Number:
		return x.String()
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%g", x)
	default:
		return fmt.Sprint(x)
	}
}
