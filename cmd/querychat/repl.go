package main

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/pkg/errors"

	"gwi.com/querychat/internal/session"
)

const replHelp = `Type a question, or one of:
  /new            start a new conversation
  /list           list conversations
  /select <id>    switch to a conversation
  /rm <id>        delete a conversation
  /quit           leave
`

// repl reads lines until EOF or /quit. Lines starting with "/" are commands,
// anything else is submitted as a turn.
func (a *app) repl(ctx context.Context, in io.Reader) error {
	if _, err := a.registry.Refresh(ctx); err == nil {
		printSessions(a.out, a.state.Sessions(), "")
	}
	printf(a.out, "%s", replHelp)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		printf(a.out, "%s> ", shortID(a.state.ActiveID()))
		if !scanner.Scan() {
			printf(a.out, "\n")
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "/") {
			a.submit(ctx, line)
			continue
		}

		cmd, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
		arg = strings.TrimSpace(arg)
		switch cmd {
		case "quit", "exit", "q":
			return nil
		case "new":
			if err := a.registry.NewSession(); err != nil {
				printf(a.out, "%v\n", err)
			}
		case "list":
			if _, err := a.registry.Refresh(ctx); err != nil {
				printf(a.out, "Could not list conversations: %v\n", err)
				continue
			}
			printSessions(a.out, a.state.Sessions(), a.state.ActiveID())
		case "select":
			conv, err := a.registry.Select(ctx, arg)
			if err != nil {
				printf(a.out, "Could not open %q: %v\n", arg, err)
				continue
			}
			printConversation(a.out, conv)
		case "rm":
			if err := a.registry.Remove(ctx, arg); err != nil {
				printf(a.out, "Could not delete %q: %v\n", arg, err)
				continue
			}
			printf(a.out, "Deleted %s\n", arg)
		case "help":
			printf(a.out, "%s", replHelp)
		default:
			printf(a.out, "Unknown command /%s\n", cmd)
		}
	}
}

func (a *app) submit(ctx context.Context, line string) {
	res, err := a.coordinator.SubmitTurn(ctx, line)
	switch {
	case errors.Is(err, session.ErrEmptyQuestion), errors.Is(err, session.ErrTurnInFlight):
		return
	case err != nil:
		// The coordinator already appended the error message.
		msgs := a.state.Messages()
		printMessage(a.out, msgs[len(msgs)-1])
		return
	}
	printMessage(a.out, res.AssistantMessage)
}

func shortID(id string) string {
	if id == "" {
		return "new"
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
