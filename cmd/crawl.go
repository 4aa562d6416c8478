package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newCrawlCmd creates the 'crawl' subcommand. It runs one full crawl of
// the online roster and exits.
func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Runs one full crawl of the online player roster",
		Long: `Fetches the online roster, scrapes every player's profile with
bounded concurrency and retries, merges the results into the cache, and
persists the cache before exiting.`,
		RunE: runCrawlCommand,
	}
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	svc, err := resolveServices(cmd.Context())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, err := svc.coordinator.ScrapeAll(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			svc.logger.Warn("crawl interrupted", zap.String("crawl_id", summary.CrawlID))
			return nil
		}
		return fmt.Errorf("run crawl: %w", err)
	}

	cmd.Printf("crawl %s: %d/%d players scraped, %d failed\n",
		summary.CrawlID, summary.Processed, summary.Roster, len(summary.Failed))
	return nil
}
