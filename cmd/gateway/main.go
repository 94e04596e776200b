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

	"gwi.com/querychat/internal/client"
	"gwi.com/querychat/internal/config"
	"gwi.com/querychat/internal/gateway"
	"gwi.com/querychat/internal/logging"
)

func main() {
	config.LoadConfig()
	logging.Init(config.AppConfig.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storeClient := client.NewStoreClient(config.AppConfig.StoreURL, &http.Client{Timeout: 15 * time.Second})
	engine := client.NewEngineClient(config.AppConfig.EngineURL, &http.Client{Timeout: 45 * time.Second})

	handler := gateway.NewHandler(engine, gateway.NewRecorder(storeClient), config.AppConfig.MaxBodyBytes())

	serverAddr := fmt.Sprintf(":%s", config.AppConfig.GatewayPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      gateway.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // engine calls can take time
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().
			Str("addr", serverAddr).
			Str("store_url", config.AppConfig.StoreURL).
			Str("engine_url", config.AppConfig.EngineURL).
			Msg("Starting assistant gateway")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down gateway...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("Gateway stopped with error")
	}
	log.Info().Msg("Gateway exiting gracefully")
}
