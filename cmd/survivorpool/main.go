package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/survivorpool/survivorpool/internal/api"
	"github.com/survivorpool/survivorpool/internal/auth"
	"github.com/survivorpool/survivorpool/internal/buildinfo"
	"github.com/survivorpool/survivorpool/internal/config"
	"github.com/survivorpool/survivorpool/internal/mailer"
	"github.com/survivorpool/survivorpool/internal/metrics"
	"github.com/survivorpool/survivorpool/internal/season"
	"github.com/survivorpool/survivorpool/internal/service"
	"github.com/survivorpool/survivorpool/internal/store"
)

func main() {
	// 1. Load and validate environment config (.env is optional)
	_ = godotenv.Load()
	envCfg, err := config.LoadEnvConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()
	log.Info().
		Str("version", buildinfo.Version).
		Str("commit", buildinfo.GitCommit).
		Str("built", buildinfo.BuildTime).
		Msg("starting survivorpool")

	// 2. Connect the store and ensure indexes
	connectCtx, cancelConnect := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelConnect()
	db, err := store.ConnectMongo(connectCtx, envCfg.MongoURL, envCfg.DatabaseName)
	if err != nil {
		log.Fatal().Err(err).Msg("mongo connect failed")
	}
	if err := db.EnsureIndexes(connectCtx); err != nil {
		log.Fatal().Err(err).Msg("ensure indexes failed")
	}

	// 3. Wire services
	seasons, err := season.NewReader(db.Seasons())
	if err != nil {
		log.Fatal().Err(err).Msg("season reader init failed")
	}
	tokens := auth.NewTokenCodec(envCfg.JWTSecretKey, envCfg.JWTTokenTTLDays, envCfg.JWTRefreshIntervalDays)
	reg := metrics.New()
	svc := service.New(service.Config{
		Store:         db,
		Seasons:       seasons,
		Mailer:        mailer.NewResend(envCfg.ResendAPIKey, envCfg.EmailFrom),
		Tokens:        tokens,
		Metrics:       reg,
		Logger:        log,
		PublicBaseURL: envCfg.PublicBaseURL,
	})

	// 4. Background cleanup of expired password-reset tokens
	janitor := cron.New()
	_, err = janitor.AddFunc(envCfg.ResetTokenCleanupSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		purged, err := db.Users().PurgeExpiredResetTokens(ctx, time.Now().UTC())
		if err != nil {
			log.Error().Err(err).Msg("reset token cleanup failed")
			return
		}
		if purged > 0 {
			log.Info().Int("purged", purged).Msg("expired reset tokens cleared")
		}
	})
	if err != nil {
		log.Fatal().Err(err).Msg("cleanup schedule invalid")
	}
	janitor.Start()

	// 5. Create and start API server
	srv, err := api.NewServer(api.ServerConfig{
		ListenAddress:        envCfg.ListenAddress,
		Port:                 envCfg.Port,
		Service:              svc,
		Authenticator:        auth.NewAuthenticator(db.Users(), tokens, nil),
		Store:                db,
		Metrics:              reg,
		Logger:               log,
		CORSAllowOriginRegex: envCfg.CORSAllowOriginRegex,
		APIMaxBodyBytes:      int64(envCfg.APIMaxBodyBytes),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("server init failed")
	}

	go func() {
		log.Info().Str("addr", envCfg.ListenAddress).Int("port", envCfg.Port).Msg("API server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("API server error")
		}
	}()

	// 6. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	<-janitor.Stop().Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	if err := db.Close(ctx); err != nil {
		log.Error().Err(err).Msg("store close error")
	}
	log.Info().Msg("server stopped")
}
