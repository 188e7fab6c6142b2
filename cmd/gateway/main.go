package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizwar/internal/config"
	"github.com/mcdev12/quizwar/internal/gateway"
	"github.com/mcdev12/quizwar/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to yaml config file")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := store.NewNATSKV(ctx, store.NATSKVConfig{
		URL:           cfg.NATS.URL,
		Bucket:        cfg.NATS.Bucket,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("connect store")
	}
	defer st.Close()

	manager := gateway.NewConnectionManager(gateway.DefaultConnectionConfig(), gateway.StoreFeed(st))
	go manager.Start(ctx)

	handler := gateway.NewHandler(manager)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodHead, http.MethodGet},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	server := &http.Server{
		Addr:    cfg.Gateway.Addr,
		Handler: c.Handler(mux),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown")
		}
	}()

	log.Info().Str("addr", cfg.Gateway.Addr).Msg("gateway listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("gateway server")
	}
}
