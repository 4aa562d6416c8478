package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/libertymp-tools/invcrawler/internal/api"
)

const shutdownGrace = 10 * time.Second

// newServeCmd creates the 'serve' subcommand hosting the query API.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serves the HTTP query API over the cached inventory data",
		Long: `Loads the cached player data and exposes it over HTTP: player
lookups, reverse item/vehicle ownership queries, health probes,
Prometheus metrics, and an endpoint to trigger a new crawl.`,
		RunE: runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	svc, err := resolveServices(cmd.Context())
	if err != nil {
		return err
	}

	// Crawls triggered over HTTP outlive their requests but not the
	// server: cancelling this context on shutdown drains them.
	crawlCtx, stopCrawls := context.WithCancel(context.Background())
	defer stopCrawls()

	server := api.NewServer(crawlCtx, svc.cache, svc.coordinator, svc.logger)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", svc.cfg.API.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		svc.logger.Info("api listening", zap.String("addr", httpServer.Addr), zap.Int("cached_players", svc.cache.Len()))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve api: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	svc.logger.Info("shutting down api")
	stopCrawls()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown api: %w", err)
	}
	return nil
}
