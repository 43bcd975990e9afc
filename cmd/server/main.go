package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/meetwave/meetwave/internal/adapters/http"
	"github.com/meetwave/meetwave/internal/app"
	"github.com/meetwave/meetwave/internal/auth"
	"github.com/meetwave/meetwave/internal/config"
	"github.com/meetwave/meetwave/internal/core"
	"github.com/meetwave/meetwave/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	var (
		meetings core.MeetingStore
		users    core.UserStore
		chat     core.ChatSink
		closer   func()
	)
	switch cfg.Store {
	case "redis":
		rs, err := store.NewRedis(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.MeetingTTL, cfg.ChatHistory)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect redis")
		}
		meetings, users, chat = rs, rs, rs
		closer = func() { _ = rs.Close() }
	default:
		pg, err := store.NewPostgres(ctx, cfg.PostgresURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect postgres")
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to prepare schema")
		}
		meetings, users, chat = pg, pg, pg
		closer = pg.Close
	}
	defer closer()

	verifier := auth.NewVerifier(cfg.Secret, users)
	coord := app.NewCoordinator(app.NewRegistry(), app.NewRoomRegistry(), meetings, chat, verifier)

	r := router.SetupRouter(ctx, cfg, coord, meetings, verifier)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("meetwave server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
