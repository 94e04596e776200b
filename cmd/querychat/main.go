package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"gwi.com/querychat/internal/client"
	"gwi.com/querychat/internal/config"
	"gwi.com/querychat/internal/logging"
	"gwi.com/querychat/internal/session"
)

// app is one client session: a State shared by the Coordinator and Registry.
type app struct {
	state       *session.State
	registry    *session.Registry
	coordinator *session.Coordinator
	out         io.Writer
}

func newApp(storeURL, assistantURL string, out io.Writer) *app {
	hc := &http.Client{Timeout: 90 * time.Second}
	state := session.NewState()
	registry := session.NewRegistry(state, client.NewStoreClient(storeURL, hc))
	return &app{
		state:       state,
		registry:    registry,
		coordinator: session.NewCoordinator(state, client.NewAssistantClient(assistantURL, hc), registry),
		out:         out,
	}
}

func newRootCmd() *cobra.Command {
	var (
		storeURL     string
		assistantURL string
		logLevel     string
	)
	build := func(cmd *cobra.Command) *app {
		return newApp(storeURL, assistantURL, cmd.OutOrStdout())
	}

	rootCmd := &cobra.Command{
		Use:   "querychat",
		Short: "Ask questions about your data and keep the conversations",
		Long: "querychat sends natural-language questions to the assistant endpoint and keeps\n" +
			"each session's conversation in the conversation store. Without a subcommand\n" +
			"it starts an interactive session.",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Init(logLevel)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return build(cmd).repl(cmd.Context(), cmd.InOrStdin())
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&storeURL, "store-url", config.AppConfig.StoreURL, "conversation store base URL")
	flags.StringVar(&assistantURL, "assistant-url", config.AppConfig.AssistantURL, "assistant endpoint URL")
	flags.StringVar(&logLevel, "log-level", config.AppConfig.LogLevel, "log level (debug, info, warn, error)")

	var sessionID string
	askCmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask one question, in a new conversation or an existing one",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := build(cmd)
			if sessionID != "" {
				if _, err := a.registry.Select(cmd.Context(), sessionID); err != nil {
					return err
				}
			}
			res, err := a.coordinator.SubmitTurn(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			printMessage(a.out, res.UserMessage)
			printMessage(a.out, res.AssistantMessage)
			printf(a.out, "conversation %s\n", res.ConversationID)
			return nil
		},
	}
	askCmd.Flags().StringVarP(&sessionID, "session", "s", "", "conversation id to continue")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List conversations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := build(cmd)
			sessions, err := a.registry.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			printSessions(a.out, sessions, "")
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show [conversation-id]",
		Short: "Print a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := build(cmd)
			conv, err := a.registry.Select(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printConversation(a.out, conv)
			return nil
		},
	}

	rmCmd := &cobra.Command{
		Use:   "rm [conversation-id]",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return build(cmd).registry.Remove(cmd.Context(), args[0])
		},
	}

	rootCmd.AddCommand(askCmd, listCmd, showCmd, rmCmd)
	return rootCmd
}

func main() {
	config.LoadConfig()
	logging.Init(config.AppConfig.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Debug().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}
