package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"gwi.com/querychat/internal/api"
	"gwi.com/querychat/internal/config"
	"gwi.com/querychat/internal/core"
	"gwi.com/querychat/internal/logging"
	"gwi.com/querychat/internal/store"
)

func main() {
	config.LoadConfig()
	logging.Init(config.AppConfig.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbStore, err := store.NewSQLiteStore(config.AppConfig.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Str("dsn", config.AppConfig.DatabaseURL).Msg("Failed to initialize database")
	}
	defer dbStore.Close()

	// Title generation is optional; without a key conversations keep the placeholder title.
	var titler core.TitleGenerator
	if config.AppConfig.GeminiAPIKey != "" {
		llmService, err := core.NewLLMService(ctx, config.AppConfig.GeminiAPIKey)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize LLM service")
		}
		defer llmService.Close()
		titler = llmService
	} else {
		log.Info().Msg("GEMINI_API_KEY not set, title generation disabled")
	}

	conversationService := core.NewConversationService(dbStore, titler)
	apiHandler := api.NewAPIHandler(conversationService, config.AppConfig.MaxBodyBytes())
	router := api.NewRouter(apiHandler)

	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", serverAddr).Msg("Starting conversation store. Press Ctrl+C to quit.")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")

		// Give active connections time to finish.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
	}

	// Let in-flight title jobs write before the database closes.
	conversationService.Wait()
	log.Info().Msg("Server exiting gracefully")
}
