package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/medbrief/newsroom/internal/config"
	"github.com/medbrief/newsroom/internal/logger"
	"github.com/medbrief/newsroom/internal/provenance"
	"github.com/medbrief/newsroom/internal/storage"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Reconcile stored artifact provenance",
	Long: `Run one provenance reconciliation pass over every stored artifact.

Repairs legacy metadata encodings, infers missing search provenance
from the query history, and re-resolves publication dates. The pass is
idempotent: a second run over reconciled data updates nothing.

Examples:
  newsroom backfill
  newsroom backfill --human`,
	Args: cobra.NoArgs,
	Run:  runBackfill,
}

func init() {
	rootCmd.AddCommand(backfillCmd)
}

func runBackfill(cmd *cobra.Command, args []string) {
	cfg, err := config.Load()
	if err != nil {
		exitWithError(ExitConfigError, "loading configuration: %v", err)
	}

	log := logger.New(cfg.LogLevel, cfg.PrettyLog)
	defer func() { _ = log.Sync() }()

	db, err := storage.OpenDB(cfg.DBPath())
	if err != nil {
		exitWithError(ExitDataError, "opening database %s: %v", cfg.DBPath(), err)
	}
	defer db.Close()

	updated, err := provenance.NewReconciler(db, log).Run(context.Background())
	if err != nil {
		exitWithError(ExitError, "provenance backfill: %v", err)
	}

	if humanOutput {
		fmt.Printf("Backfilled provenance for %d artifact(s)\n", updated)
		return
	}
	if err := outputJSON(BackfillResponse{Updated: updated}); err != nil {
		exitWithError(ExitError, "encoding output: %v", err)
	}
}
