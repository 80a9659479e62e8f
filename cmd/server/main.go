// Command server runs the voice generation backend: an HTTP API that
// synthesizes speech through ElevenLabs and keeps a per-user generation
// history in SQLite.
//
// Startup order:
//  1. .env (optional) and environment configuration
//  2. zerolog global logger
//  3. SQLite open + migrations
//  4. OpenTelemetry tracing (optional, OTEL_ENABLED)
//  5. Gin engine with the full middleware/route set
//  6. http.Server with graceful shutdown on SIGINT/SIGTERM
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyroscale/go-voice-backend/internal/config"
	httpapi "github.com/hyroscale/go-voice-backend/internal/http"
	"github.com/hyroscale/go-voice-backend/internal/observability"
	"github.com/hyroscale/go-voice-backend/internal/repo"
	"github.com/hyroscale/go-voice-backend/internal/sysutil"
	"github.com/hyroscale/go-voice-backend/internal/tts"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Local development convenience; absent .env files are not an error.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	// Logging
	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	// Persistence
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	// Tracing (no-op unless OTEL_ENABLED)
	ctx := context.Background()
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("setup tracing")
	}

	// Provider client. A missing API key is deliberately not fatal here: the
	// server still serves history reads and reports the fault on synthesis.
	synth := &tts.Client{
		BaseURL: cfg.ElevenLabs.BaseURL,
		APIKey:  cfg.ElevenLabs.APIKey,
		ModelID: cfg.ElevenLabs.ModelID,
	}
	if cfg.ElevenLabs.APIKey == "" {
		log.Warn().Msg("ELEVENLABS_API_KEY not set; generation requests will fail until configured")
	}

	// HTTP engine
	r := gin.New()
	httpapi.RegisterRoutes(r, db, synth, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Block until a shutdown signal arrives.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	// Aggregate teardown failures instead of aborting on the first one so a
	// slow trace flush cannot leak the database handle.
	var result *multierror.Error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		result = multierror.Append(result, err)
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		result = multierror.Append(result, err)
	}
	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		log.Error().Err(err).Msg("shutdown finished with errors")
		os.Exit(1)
	}
	log.Info().Msg("shutdown complete")
}
