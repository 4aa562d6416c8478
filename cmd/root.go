// Package cmd defines and implements the CLI commands for the invcrawler
// executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/libertymp-tools/invcrawler/internal/archive"
	"github.com/libertymp-tools/invcrawler/internal/cache"
	"github.com/libertymp-tools/invcrawler/internal/clock/system"
	"github.com/libertymp-tools/invcrawler/internal/config"
	"github.com/libertymp-tools/invcrawler/internal/fetcher/direct"
	"github.com/libertymp-tools/invcrawler/internal/fetcher/headless"
	uuidgen "github.com/libertymp-tools/invcrawler/internal/id/uuid"
	"github.com/libertymp-tools/invcrawler/internal/logging"
	"github.com/libertymp-tools/invcrawler/internal/metrics"
	"github.com/libertymp-tools/invcrawler/internal/publisher/memory"
	pspublisher "github.com/libertymp-tools/invcrawler/internal/publisher/pubsub"
	"github.com/libertymp-tools/invcrawler/internal/refdata"
	"github.com/libertymp-tools/invcrawler/internal/scraper"
	"github.com/libertymp-tools/invcrawler/internal/storage/local"
	"github.com/libertymp-tools/invcrawler/internal/storage/postgres"
)

var cfgFile string

// services bundles everything a command needs after wiring.
type services struct {
	cfg         config.Config
	logger      *zap.Logger
	cache       *cache.Cache
	coordinator *scraper.Coordinator

	closers []func()
}

// Close releases fetcher tabs, publisher connections and the logger.
func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

type servicesKeyType struct{}

var servicesKey servicesKeyType

// newServices is a variable so tests can inject a mock factory.
var newServices = buildServices

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invcrawler",
		Short: "Player inventory crawler for the Liberty multiplayer server.",
		Long: `invcrawler walks the online player roster, fetches each player's
profile from the game backend, and maintains a queryable cache of who
owns which items and vehicles.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := newServices(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("initialize services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), servicesKey, svc))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if svc, ok := cmd.Context().Value(servicesKey).(*services); ok && svc != nil {
				svc.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default uses built-in defaults and INVCRAWLER_* env vars)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newQueryCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolveServices(ctx context.Context) (*services, error) {
	svc, ok := ctx.Value(servicesKey).(*services)
	if !ok || svc == nil {
		return nil, errors.New("services not initialized")
	}
	return svc, nil
}

// buildServices loads config and wires the full object graph: snapshot
// store, cache, reference-data clients, fetch transport, coordinator.
func buildServices(ctx context.Context, cfgPath string) (*services, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	metrics.Init()

	svc := &services{cfg: cfg, logger: logger}
	svc.closers = append(svc.closers, func() { _ = logger.Sync() })

	snapshots, err := buildSnapshotStore(ctx, cfg)
	if err != nil {
		svc.Close()
		return nil, err
	}
	svc.cache = cache.New(snapshots, logger)
	svc.cache.Load(ctx)

	token := loadToken(cfg.Upstream.TokenFile, logger)

	fetcher, err := buildFetcher(cfg, token, svc)
	if err != nil {
		svc.Close()
		return nil, err
	}

	clk := system.New()
	client := refdata.NewHTTPClient(cfg.FetchTimeout())
	roster := refdata.NewRosterClient(client, cfg.OnlineURL(), cfg.Roster.DBFile, clk, logger)
	vehicles := refdata.NewVehicleCatalogClient(client, cfg.VehicleDataURL(), logger)
	items := refdata.NewItemCatalogClient(client, cfg.InventoryURL(), logger)
	seedItemCatalog(ctx, svc.cache, items, logger)

	archiver, err := buildArchiver(ctx, cfg, logger, svc)
	if err != nil {
		svc.Close()
		return nil, err
	}
	publisher, err := buildPublisher(ctx, cfg, logger, svc)
	if err != nil {
		svc.Close()
		return nil, err
	}

	retry := scraper.NewExponentialRetryPolicy(cfg.Scraper.MaxRetries, cfg.BackoffInitial(), cfg.BackoffMax())
	svc.coordinator = scraper.NewCoordinator(
		fetcher,
		svc.cache,
		roster,
		vehicles,
		items,
		retry,
		clk,
		uuidgen.New(),
		publisher,
		archiver,
		scraper.Config{
			MaxWorkers:    cfg.Scraper.MaxWorkers,
			BatchSize:     cfg.Scraper.BatchSize,
			MaxRetries:    cfg.Scraper.MaxRetries,
			FetchTimeout:  cfg.FetchTimeout(),
			ArchivePrefix: cfg.Archive.Prefix,
		},
		logger,
	)
	return svc, nil
}

func buildSnapshotStore(ctx context.Context, cfg config.Config) (scraper.SnapshotStore, error) {
	switch cfg.Storage.Provider {
	case "postgres":
		store, err := postgres.New(ctx, postgres.Config{DSN: cfg.Storage.DSN, Table: cfg.Storage.Table})
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		return store, nil
	default:
		store, err := local.New(local.Config{DBFile: cfg.Storage.DBFile})
		if err != nil {
			return nil, fmt.Errorf("init local store: %w", err)
		}
		return store, nil
	}
}

func buildFetcher(cfg config.Config, token string, svc *services) (scraper.Fetcher, error) {
	if cfg.Fetcher.Transport == "headless" {
		f, err := headless.New(headless.Config{
			UCPBaseURL:        cfg.Upstream.UCPBaseURL,
			Token:             token,
			UserAgent:         cfg.Fetcher.UserAgent,
			MaxParallel:       cfg.Fetcher.HeadlessMaxTabs,
			NavigationTimeout: time.Duration(cfg.Fetcher.HeadlessNavTimeout) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("init headless fetcher: %w", err)
		}
		svc.closers = append(svc.closers, f.Close)
		return f, nil
	}
	f, err := direct.New(direct.Config{
		BaseURL:   cfg.Upstream.BaseURL,
		Token:     token,
		UserAgent: cfg.Fetcher.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("init direct fetcher: %w", err)
	}
	return f, nil
}

func buildArchiver(ctx context.Context, cfg config.Config, logger *zap.Logger, svc *services) (scraper.Archiver, error) {
	switch cfg.Archive.Provider {
	case "local":
		a, err := archive.NewLocal(cfg.Archive.Dir)
		if err != nil {
			return nil, fmt.Errorf("init local archive: %w", err)
		}
		return a, nil
	case "gcs":
		a, err := archive.NewGCS(ctx, cfg.Archive.GCSBucket, logger)
		if err != nil {
			return nil, fmt.Errorf("init gcs archive: %w", err)
		}
		svc.closers = append(svc.closers, func() {
			if cerr := a.Close(); cerr != nil {
				logger.Warn("gcs archive close failed", zap.Error(cerr))
			}
		})
		return a, nil
	default:
		return nil, nil
	}
}

func buildPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger, svc *services) (scraper.Publisher, error) {
	switch cfg.Publisher.Provider {
	case "pubsub":
		p, err := pspublisher.New(ctx, cfg.Publisher.ProjectID, cfg.Publisher.TopicName, logger)
		if err != nil {
			return nil, fmt.Errorf("init pubsub publisher: %w", err)
		}
		svc.closers = append(svc.closers, func() {
			if cerr := p.Close(); cerr != nil {
				logger.Warn("pubsub publisher close failed", zap.Error(cerr))
			}
		})
		return p, nil
	case "memory":
		// Local runs without Pub/Sub still get an inspectable event log.
		return memory.New(), nil
	default:
		return nil, nil
	}
}

// seedItemCatalog installs the display-name to item-key mapping at
// startup so item queries resolve before the first crawl of this
// process. Failure is non-fatal: a crawl refreshes the catalog anyway.
func seedItemCatalog(ctx context.Context, c *cache.Cache, items scraper.ItemCatalogSource, logger *zap.Logger) {
	catalog, err := items.GetItemCatalog(ctx)
	if err != nil {
		logger.Warn("item catalog unavailable at startup, item queries resolve after the first crawl", zap.Error(err))
		return
	}
	c.SetItemCatalog(catalog)
}

// loadToken reads the bearer token from disk. A missing token is not
// fatal: the backend serves some endpoints anonymously, and the token
// can be provisioned later without a rebuild.
func loadToken(path string, logger *zap.Logger) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("auth token unavailable, fetching anonymously", zap.String("path", path), zap.Error(err))
		return ""
	}
	return strings.TrimSpace(string(data))
}
