package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"spendwise/internal/ai"
	"spendwise/internal/amqp"
	"spendwise/internal/auth"
	"spendwise/internal/cache"
	"spendwise/internal/cli"
	"spendwise/internal/config"
	apphttp "spendwise/internal/http"
	applog "spendwise/internal/log"
	"spendwise/internal/services"
	"spendwise/internal/store"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backendResult := cli.InitStore(ctx, logger.Logger, cfg)
	defer func() {
		if backendResult.Cleanup != nil {
			if err := backendResult.Cleanup(); err != nil {
				logger.Error("Failed to close store", applog.FieldError, err)
			}
		}
	}()
	st := backendResult.Store

	verifier, err := newVerifier(ctx, cfg, st)
	if err != nil {
		logger.Error("Failed to initialize authentication", applog.FieldError, err, "mode", cfg.AuthMode)
		os.Exit(1)
	}

	var publisher services.Publisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		publisher = amqpClient
		logger.Info("AMQP publishing enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP_URL not set, export sync disabled")
	}

	var (
		categorizer services.Categorizer
		predictor   services.Predictor
		reader      services.ReceiptReader
	)
	if cfg.AIAPIKey != "" {
		client := ai.NewClient(ai.Config{
			BaseURL:    cfg.AIBaseURL,
			APIKey:     cfg.AIAPIKey,
			Model:      cfg.AIModel,
			Timeout:    cfg.AITimeout,
			Deadline:   cfg.AIDeadline,
			MaxRetries: cfg.AIMaxRetries,
		})
		categorizer, predictor, reader = client, client, client
		logger.Info("AI delegate enabled", applog.FieldModel, cfg.AIModel)
	} else {
		logger.Warn("AI_API_KEY not set, AI features disabled")
	}

	expenses := services.NewExpenseService(st, categorizer, publisher, cfg.AITimeout)

	cacheManager := cache.NewManager(logger.WithComponent(applog.ComponentCache).Logger)
	cacheManager.Register("suggestions", expenses.Suggestions())
	cacheManager.StartCleanup(10 * time.Minute)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Expenses:           expenses,
		Analytics:          services.NewAnalyticsService(st, cfg.AnalyticsWindow),
		Predictions:        services.NewPredictionService(st, predictor),
		Receipts:           services.NewReceiptService(reader, expenses),
		Settings:           services.NewSettingsService(st),
		Verifier:           verifier,
		Store:              st,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		CORSOrigins:        cfg.CORSAllowedOrigins,
		Cache:              cacheManager,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting spendwise server",
			"port", cfg.Port, "backend", cfg.DataBackend, "auth_mode", cfg.AuthMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server", applog.FieldOperation, applog.OpShutdown)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func newVerifier(ctx context.Context, cfg *config.Config, tokens store.TokenStore) (auth.Verifier, error) {
	if cfg.AuthMode == config.AuthModeFirebase {
		return auth.NewFirebaseVerifier(ctx, auth.FirebaseConfig{
			ProjectID:       cfg.FirebaseProjectID,
			CredentialsFile: cfg.FirebaseCredentialsFile,
			CredentialsJSON: cfg.FirebaseCredentialsJSON,
		})
	}
	slog.InfoContext(ctx, "Using personal API token authentication")
	return auth.NewTokenVerifier(tokens), nil
}
