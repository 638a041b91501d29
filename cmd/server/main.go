package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/therapii/api-server-go/internal/billing"
	"github.com/therapii/api-server-go/internal/config"
	"github.com/therapii/api-server-go/internal/database"
	"github.com/therapii/api-server-go/internal/handler"
	"github.com/therapii/api-server-go/internal/jobs"
	"github.com/therapii/api-server-go/internal/middleware"
	"github.com/therapii/api-server-go/internal/notify"
	"github.com/therapii/api-server-go/internal/redis"
	"github.com/therapii/api-server-go/internal/repository"
	"github.com/therapii/api-server-go/internal/service"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setupLogger(cfg.LogFormat, cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	// Money fields go out as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	invitationRepo := repository.NewInvitationRepository(db.DB)
	userRepo := repository.NewUserRepository(db.DB)
	settingsRepo := repository.NewSettingsRepository(db.DB)
	summaryRepo := repository.NewSummaryRepository(db.DB)

	dispatcher, err := notify.NewDispatcher(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create email dispatcher")
	}
	renderer, err := notify.NewRenderer()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load email templates")
	}
	notifier := notify.NewInvitationNotifier(dispatcher, renderer, settingsRepo, notify.Sender{
		Email:        cfg.EmailFrom,
		Name:         cfg.EmailFromName,
		SupportEmail: cfg.SupportEmail,
	})

	invitationService := service.NewInvitationService(
		db, invitationRepo, userRepo, service.NewCodeGenerator(invitationRepo), notifier,
		service.InvitationOptions{
			NotifyWait: cfg.NotifyWaitTimeout(),
			NotifySend: cfg.NotifySendTimeout(),
		},
	)
	aiService := service.NewAIService(
		service.NewCompletionClient(cfg.OpenAIBaseURL), settingsRepo, userRepo, summaryRepo, cfg.OpenAIAPIKey,
	)
	billingService := service.NewBillingService(billing.NewProvider(cfg.StripeSecretKey), userRepo, service.BillingOptions{
		DefaultPriceID: cfg.StripeDefaultPriceID,
		SuccessURL:     cfg.BillingSuccessURL,
		CancelURL:      cfg.BillingCancelURL,
	})

	var limiter middleware.Limiter
	if cfg.RedisURL != "" {
		redisClient, err := redis.NewClient(context.Background(), cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		log.Info().Msg("redis connected")
		limiter = middleware.NewRedisRateLimiter(redisClient.Client)
	} else {
		log.Info().Msg("REDIS_URL not set, using in-process rate limiter")
		limiter = middleware.NewLocalRateLimiter()
	}

	r := handler.NewRouter(handler.RouterDeps{
		Health:       handler.NewHealthHandler(db),
		Invitations:  handler.NewInvitationHandler(invitationService),
		AI:           handler.NewAIHandler(aiService),
		Billing:      handler.NewBillingHandler(billingService),
		Auth:         middleware.NewAuthMiddleware(middleware.NewTokenVerifier(cfg.AuthJWTSecret, cfg.AuthJWTIssuer, cfg.AuthJWTAudience)),
		PreviewLimit: middleware.NewRateLimitMiddleware(limiter, cfg.PreviewRateLimitPerMin, "preview", middleware.KeyByIP),
		RedeemLimit:  middleware.NewRateLimitMiddleware(limiter, cfg.RedeemRateLimitPerMin, "redeem", middleware.KeyByCaller),
		BodyLimit:    middleware.NewBodyLimitMiddleware(cfg.MaxBodyBytes),
	})

	cleanupJob := jobs.NewCleanupJob(invitationRepo, cfg.InvitationRetention(), config.CleanupJobInterval)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Str("env", cfg.Env).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	if err := invitationService.Drain(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("pending invitation emails abandoned")
	}

	log.Info().Msg("server stopped")
}

func setupLogger(format, level string) {
	if format != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
