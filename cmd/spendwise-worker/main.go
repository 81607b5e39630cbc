package main

import (
	"context"
	"errors"
	"os"
	"time"

	"spendwise/internal/amqp"
	"spendwise/internal/cli"
	applog "spendwise/internal/log"
	"spendwise/internal/services"
	gsheet "spendwise/internal/sheets/google"
	"spendwise/internal/store"
	"spendwise/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	logger.Info("Starting spendwise-worker")

	cfg := cli.LoadAndValidateConfig(logger.Logger)
	if err := cfg.ValidateWorker(); err != nil {
		logger.Error("Worker configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}

	backendResult := cli.InitStore(context.Background(), logger.Logger, cfg)
	st := backendResult.Store

	sheetsClient, err := gsheet.New(context.Background(), gsheet.Config{
		SpreadsheetID:      cfg.GoogleSpreadsheetID,
		SheetName:          cfg.GoogleSheetName,
		ServiceAccountFile: cfg.GoogleServiceAccountFile,
		ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}

	// Stores that remember sync state also get a poller that retries rows
	// whose messages were lost.
	var processor *services.SyncProcessor
	if tracker, ok := st.(store.SyncTracker); ok {
		processor = services.NewSyncProcessor(tracker, sheetsClient, services.SyncProcessorConfig{
			PollInterval: cfg.SyncInterval,
			BatchSize:    cfg.SyncBatchSize,
		})
	}

	ctx, done := cli.GracefulShutdown(logger.Logger, 30*time.Second, func() {
		if processor != nil {
			stopCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
			defer cancel()
			if err := processor.Stop(stopCtx); err != nil {
				logger.Error("Failed to stop sync processor", applog.FieldError, err)
			}
		}
		if err := amqpClient.Close(); err != nil {
			logger.Warn("Failed to close AMQP client", applog.FieldError, err)
		}
		if backendResult.Cleanup != nil {
			if err := backendResult.Cleanup(); err != nil {
				logger.Error("Failed to close store", applog.FieldError, err)
			}
		}
	})

	if processor != nil {
		if err := processor.Start(ctx); err != nil {
			logger.Error("Failed to start sync processor", applog.FieldError, err)
			os.Exit(1)
		}
	} else {
		logger.Info("Store does not track sync state, periodic sync disabled", "backend", cfg.DataBackend)
	}

	syncWorker := worker.NewSyncWorker(st, sheetsClient)
	go func() {
		err := amqpClient.ConsumeWithReconnect(ctx, syncWorker.Handle)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", applog.FieldError, err)
			os.Exit(1)
		}
	}()
	logger.Info("Consuming export messages", "queue", cfg.AMQPQueue)

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}
