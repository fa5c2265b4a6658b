package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"insight/internal/audit"
	"insight/internal/blueprint"
	"insight/internal/config"
	"insight/internal/metrics"
	"insight/internal/metrics/datadog"
	"insight/internal/server"
	"insight/internal/session"
	"insight/internal/storage"

	// Persistence backends register themselves on import.
	_ "insight/internal/storage/mssql"
	_ "insight/internal/storage/postgres"
	_ "insight/internal/storage/sqlite"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func serve(ctx context.Context) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logger := log.New(os.Stderr, "insightd ", log.LstdFlags)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider := blueprint.New(blueprint.Config{
		Provider: cfg.LLMProvider,
		APIKey:   cfg.APIKey,
		Model:    cfg.Model,
		Endpoint: cfg.LLMEndpoint,
	})
	logger.Printf("llm provider=%s model=%q", provider.Name(), cfg.Model)

	var repo storage.Repository
	if cfg.StorageKind != "" {
		repo, err = storage.New(ctx, storage.Config{Kind: cfg.StorageKind, DSN: cfg.StorageDSN})
		if err != nil {
			return err
		}
		defer repo.Close()
		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}
		logger.Printf("storage kind=%s", cfg.StorageKind)
	}

	var backend metrics.Backend = metrics.Nop{}
	if cfg.DatadogEnabled {
		dd, err := datadog.NewBackend(ctx, datadog.Options{
			ServiceName: "insightd",
			Tags:        datadog.ParseTagsCSV(cfg.DatadogTags),
		})
		if err != nil {
			return err
		}
		defer func() { _ = dd.Close() }()
		backend = dd
		logger.Printf("metrics backend=datadog")
	}

	sessions := session.NewStore(time.Duration(cfg.SessionTTLMinutes) * time.Minute)
	defer sessions.Close()

	srv := server.New(server.Options{
		Sessions:    sessions,
		Provider:    provider,
		Auditor:     audit.New(repo, logger),
		Repo:        repo,
		Metrics:     backend,
		Logger:      logger,
		PreviewRows: cfg.PreviewRows,
		PageLimit:   cfg.PageLimit,
	})

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("listening addr=%s", cfg.ListenAddr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
