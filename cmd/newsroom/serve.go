package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/medbrief/newsroom/internal/config"
	"github.com/medbrief/newsroom/internal/logger"
	"github.com/medbrief/newsroom/internal/provenance"
	"github.com/medbrief/newsroom/internal/pubmed"
	"github.com/medbrief/newsroom/internal/storage"
	"github.com/medbrief/newsroom/internal/story"
	"github.com/medbrief/newsroom/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the newsroom web service",
	Long: `Run the public story gallery and the admin curation interface.

Reconciles stored artifact provenance before listening, then serves
until SIGINT or SIGTERM.

Examples:
  newsroom serve
  NEWSROOM_ADDR=0.0.0.0:8080 newsroom serve`,
	Args: cobra.NoArgs,
	Run:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	cfg, err := config.Load()
	if err != nil {
		exitWithError(ExitConfigError, "loading configuration: %v", err)
	}
	if err := cfg.ValidateEmail(); err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}

	log := logger.New(cfg.LogLevel, cfg.PrettyLog)
	defer func() { _ = log.Sync() }()

	if err := runApp(cfg, log); err != nil {
		log.Errorf("serve failed: %v", err)
		os.Exit(ExitError)
	}
}

func runApp(cfg *config.Config, log logger.Logger) error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory %s: %w", cfg.DataDir, err)
	}
	db, err := storage.OpenDB(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("opening database %s: %w", cfg.DBPath(), err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Reconcile before listening, so no page ever renders metadata the
	// backfill is about to rewrite. Startup survives a failed pass; the
	// backfill command can retry it later.
	if _, err := provenance.NewReconciler(db, log).Run(ctx); err != nil {
		log.Warnf("provenance backfill failed: %v", err)
	}

	client, err := buildPubMedClient(cfg, db)
	if err != nil {
		return err
	}
	generator, err := buildGenerator(cfg)
	if err != nil {
		return err
	}

	sessions := web.NewSessionManager(cfg.AdminPassword, cfg.AdminPasswordHash, cfg.AdminSessionSecret)
	if !sessions.Enabled() {
		log.Warn("no admin password configured, admin login disabled")
	}

	srv, err := web.NewServer(web.Options{
		Addr:     cfg.Addr,
		Store:    db,
		PubMed:   client,
		Stories:  generator,
		Sessions: sessions,
		Log:      log,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down gracefully")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("stopping server: %w", err)
	}
	log.Info("newsroom stopped cleanly")
	return nil
}

func buildPubMedClient(cfg *config.Config, db *storage.DB) (*pubmed.Client, error) {
	opts := []pubmed.ClientOption{pubmed.WithStore(db)}
	if cfg.PubMedAPIKey != "" {
		opts = append(opts, pubmed.WithAPIKey(cfg.PubMedAPIKey))
	}
	if cfg.FilterProfile != "" {
		filter, err := pubmed.LoadFilter(cfg.FilterProfile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, pubmed.WithFilter(filter))
	}
	return pubmed.NewClient(cfg.PubMedEmail, opts...), nil
}

func buildGenerator(cfg *config.Config) (*story.Generator, error) {
	var opts []story.GeneratorOption
	if cfg.Model != "" {
		opts = append(opts, story.WithModel(cfg.Model))
	}
	if cfg.PromptPath != "" {
		template, err := story.LoadTemplate(cfg.PromptPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, story.WithTemplate(template))
	}
	return story.NewGenerator(cfg.OpenAIAPIKey, opts...)
}
