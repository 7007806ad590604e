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

	"github.com/keremar/Amora/internal/adapters/directory"
	router "github.com/keremar/Amora/internal/adapters/http"
	"github.com/keremar/Amora/internal/app"
	"github.com/keremar/Amora/internal/config"
	"github.com/keremar/Amora/internal/core"
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
		log.Error().Err(err).Msg("failed to load config")
	}

	var dir core.Directory = directory.Noop{}
	if cfg.RedisAddr != "" {
		rd, err := directory.NewRedis(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable, presence persistence disabled")
		} else {
			defer rd.Close()
			dir = rd
		}
	}

	clock := core.SystemClock{}
	registry := app.NewRegistry()
	calls := app.NewCallTable(clock)
	presence := &app.Presence{Registry: registry, Directory: dir, Clock: clock}
	limiter := app.NewCallRateLimiter(clock, cfg.CallRateLimit, cfg.CallRateWindow)

	rt := &app.Router{
		Registry:  registry,
		Calls:     calls,
		Presence:  presence,
		Directory: dir,
		Clock:     clock,
		Limiter:   limiter,
	}

	r := router.SetupRouter(ctx, cfg, rt)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Amora signaling relay started")
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
