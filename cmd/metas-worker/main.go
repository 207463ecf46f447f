package main

import (
	"context"
	"errors"
	"os"
	"time"

	"metas/internal/amqp"
	"metas/internal/backend"
	"metas/internal/cli"
	"metas/internal/log"
	"metas/internal/sheets"
	gsheet "metas/internal/sheets/google"
	"metas/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger)

	logger.Info("Starting metas-worker")

	// The worker shares the ledger with the API only through SQLite.
	if cfg.DataBackend != backend.SQLiteBackend.String() {
		logger.Error("metas-worker requires DATA_BACKEND=sqlite", "backend", cfg.DataBackend)
		os.Exit(1)
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger.Logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err)
		os.Exit(1)
	}
	if result.Cleanup != nil {
		defer result.Cleanup()
	}

	// Initialize Google Sheets mirror (optional)
	var mirror sheets.LedgerMirror
	if cfg.MirrorEnabled() {
		m, err := gsheet.New(context.Background(), gsheet.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets mirror", log.FieldError, err)
			os.Exit(1)
		}
		mirror = m
		logger.Info("Google Sheets mirror initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets mirror disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	ledgerWorker := worker.NewLedgerWorker(result.Backend, mirror, logger)

	scheduler := worker.NewScheduler(ledgerWorker, cfg.ReconcileSchedule, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error("Failed to start scheduler", log.FieldError, err)
		os.Exit(1)
	}

	// Catch up on anything decided while the worker was down.
	go scheduler.RunReconcile()

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer amqpClient.Close()
	} else {
		logger.Info("AMQP disabled - relying on the reconcile schedule only")
	}

	parent, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx, done := cli.GracefulShutdown(parent, logger, shutdownTimeout, func(ctx context.Context) {
		logger.Info("Shutting down worker...")
		select {
		case <-scheduler.Stop().Done():
		case <-ctx.Done():
		}
	})

	if amqpClient != nil {
		go func() {
			if err := amqpClient.Consume(ctx, ledgerWorker.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Event consumption failed", log.FieldError, err)
				cancel()
			}
		}()
	}

	<-ctx.Done()
	cli.WaitForShutdown(done)
	logger.Info("Worker shutdown complete")
}
