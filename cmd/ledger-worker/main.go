package main

import (
	"context"
	"errors"
	"os"
	"time"

	"splitledger/internal/amqp"
	"splitledger/internal/cli"
	"splitledger/internal/services"
	"splitledger/internal/sheets"
	gsheet "splitledger/internal/sheets/google"
	sheetmem "splitledger/internal/sheets/memory"
	"splitledger/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg)

	logger.Info("Starting ledger-worker")

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the export worker")
		os.Exit(1)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	// The worker writes balance snapshots to Google Sheets when configured,
	// otherwise it records them in memory so the pipeline stays runnable locally.
	var writer sheets.SnapshotWriter
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.NewFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		writer = client
		logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		writer = sheetmem.New()
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided, recording snapshots in memory")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	balances := services.NewBalanceService(repo)
	exportWorker := worker.NewExportWorker(repo, balances, writer)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	logger.Info("Consuming expense events",
		"queue", cfg.AMQPQueue, "sweep_interval", cfg.ExportSweepInterval.String())
	if err := exportWorker.Run(ctx, amqpClient, cfg.ExportSweepInterval); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Event consumption failed", "error", err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
