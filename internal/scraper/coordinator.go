package scraper

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/libertymp-tools/invcrawler/internal/metrics"
)

// Config controls Coordinator behavior.
type Config struct {
	MaxWorkers    int
	BatchSize     int
	MaxRetries    int
	FetchTimeout  time.Duration
	ArchivePrefix string
}

// Coordinator owns the work and retry queues and drives the full crawl:
// bounded-concurrency fetches, parse, cache merge, retry bookkeeping and
// the final persist.
type Coordinator struct {
	fetcher   Fetcher
	store     PlayerStore
	roster    RosterSource
	vehicles  VehicleCatalogSource
	items     ItemCatalogSource
	retry     RetryPolicy
	clock     Clock
	idGen     IDGenerator
	publisher Publisher
	archiver  Archiver
	cfg       Config
	logger    *zap.Logger
}

// NewCoordinator constructs a Coordinator. publisher and archiver may be
// nil; everything else is required.
func NewCoordinator(
	fetcher Fetcher,
	store PlayerStore,
	roster RosterSource,
	vehicles VehicleCatalogSource,
	items ItemCatalogSource,
	retry RetryPolicy,
	clock Clock,
	idGen IDGenerator,
	publisher Publisher,
	archiver Archiver,
	cfg Config,
	logger *zap.Logger,
) *Coordinator {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 20
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.ArchivePrefix == "" {
		cfg.ArchivePrefix = "profiles"
	}
	return &Coordinator{
		fetcher:   fetcher,
		store:     store,
		roster:    roster,
		vehicles:  vehicles,
		items:     items,
		retry:     retry,
		clock:     clock,
		idGen:     idGen,
		publisher: publisher,
		archiver:  archiver,
		cfg:       cfg,
		logger:    logger,
	}
}

type fetchOutcome struct {
	player string
	err    error
}

// ScrapeAll crawls every roster player to completion and persists the
// cache exactly once at the end. Per-player failures never abort the
// crawl; only catalog or roster load failures do.
func (c *Coordinator) ScrapeAll(ctx context.Context) (Summary, error) {
	start := c.clock.Now()

	itemCatalog, err := c.items.GetItemCatalog(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("%w: item catalog: %w", ErrCatalogUnavailable, err)
	}
	vehicleCatalog, err := c.vehicles.GetVehicleCatalog(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("%w: vehicle catalog: %w", ErrCatalogUnavailable, err)
	}
	roster, err := c.roster.GetPlayers(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("%w: roster: %w", ErrCatalogUnavailable, err)
	}

	c.store.SetItemCatalog(itemCatalog)

	crawlID, err := c.idGen.NewID()
	if err != nil {
		c.logger.Warn("crawl id generation failed", zap.Error(err))
	}

	summary := Summary{CrawlID: crawlID, Roster: len(roster), Failed: []string{}}
	if len(roster) == 0 {
		c.logger.Info("roster is empty, nothing to scrape", zap.String("crawl_id", crawlID))
		return summary, nil
	}
	metrics.ObserveCrawl()
	c.logger.Info("starting scrape",
		zap.String("crawl_id", crawlID),
		zap.Int("players", len(roster)),
	)

	work := append([]string(nil), roster...)
	var retryQueue []string
	attempts := make(map[string]int, len(roster))

	for len(work)+len(retryQueue) > 0 && ctx.Err() == nil {
		batch := nextBatch(&retryQueue, &work, c.cfg.BatchSize)
		for _, outcome := range c.dispatch(ctx, batch, vehicleCatalog, attempts) {
			if outcome.err == nil {
				summary.Processed++
				metrics.ObservePlayer("success")
				continue
			}
			attempts[outcome.player]++
			metrics.ObserveRetryCandidate()
			if c.retry.ShouldRetry(outcome.err, attempts[outcome.player]) {
				c.logger.Warn("fetch failed, will retry",
					zap.String("player", outcome.player),
					zap.Int("attempt", attempts[outcome.player]),
					zap.Error(outcome.err),
				)
				retryQueue = append(retryQueue, outcome.player)
				continue
			}
			metrics.ObservePlayer("failed")
			c.logger.Error("player failed permanently",
				zap.String("player", outcome.player),
				zap.Int("attempts", attempts[outcome.player]),
				zap.Error(outcome.err),
			)
			summary.Failed = append(summary.Failed, outcome.player)
		}
	}
	sort.Strings(summary.Failed)
	summary.Duration = c.clock.Now().Sub(start)

	if ctx.Err() != nil {
		c.logger.Warn("scrape canceled", zap.String("crawl_id", crawlID), zap.Error(ctx.Err()))
		return summary, fmt.Errorf("scrape canceled: %w", ctx.Err())
	}

	if err := c.store.Save(ctx); err != nil {
		return summary, fmt.Errorf("save cache: %w", err)
	}

	c.publishSummary(ctx, summary)
	c.logResults(summary)
	return summary, nil
}

// nextBatch composes one batch, draining the retry queue before the work
// queue so retried players are not starved behind a large first pass.
// Failures within the batch re-enter the retry queue only after the whole
// batch resolves, so a player waits at least one full cycle between
// attempts.
func nextBatch(retryQueue, work *[]string, size int) []string {
	batch := make([]string, 0, size)
	for len(batch) < size && len(*retryQueue) > 0 {
		batch = append(batch, (*retryQueue)[0])
		*retryQueue = (*retryQueue)[1:]
	}
	for len(batch) < size && len(*work) > 0 {
		batch = append(batch, (*work)[0])
		*work = (*work)[1:]
	}
	return batch
}

// dispatch runs one batch with concurrency bounded by MaxWorkers and
// blocks until every dispatched fetch has resolved. A slow outlier
// extends the batch; it is never abandoned mid-flight.
func (c *Coordinator) dispatch(
	ctx context.Context,
	batch []string,
	vehicles VehicleCatalog,
	attempts map[string]int,
) []fetchOutcome {
	sem := make(chan struct{}, c.cfg.MaxWorkers)
	results := make(chan fetchOutcome, len(batch))

	var wg sync.WaitGroup
	for _, player := range batch {
		wg.Add(1)
		go func(player string, attempt int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			metrics.IncActiveWorkers()
			defer metrics.DecActiveWorkers()
			results <- fetchOutcome{player: player, err: c.processPlayer(ctx, player, attempt, vehicles)}
		}(player, attempts[player])
	}
	wg.Wait()
	close(results)

	outcomes := make([]fetchOutcome, 0, len(batch))
	for outcome := range results {
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// processPlayer runs the strictly sequential fetch, parse, upsert path
// for one player.
func (c *Coordinator) processPlayer(
	ctx context.Context,
	player string,
	attempt int,
	vehicles VehicleCatalog,
) error {
	if attempt > 0 {
		if err := c.waitBackoff(ctx, attempt); err != nil {
			return err
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()

	start := c.clock.Now()
	resp, err := c.fetcher.Fetch(fetchCtx, FetchRequest{Player: player})
	metrics.ObserveFetchDuration(c.clock.Now().Sub(start))
	if err != nil {
		return fmt.Errorf("fetch %q: %w", player, err)
	}
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Player: player, StatusCode: resp.StatusCode}
	}

	record, err := ParseProfile(resp.Body, vehicles)
	if err != nil {
		return fmt.Errorf("parse %q: %w", player, err)
	}
	record.LastUpdated = c.clock.Now()
	c.store.UpsertPlayer(player, record)

	c.archivePayload(ctx, player, resp.Body)
	return nil
}

func (c *Coordinator) waitBackoff(ctx context.Context, attempt int) error {
	wait := c.retry.Backoff(attempt)
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff wait canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func (c *Coordinator) archivePayload(ctx context.Context, player string, payload []byte) {
	if c.archiver == nil {
		return
	}
	objectName := fmt.Sprintf("%s/%s/%s.json",
		c.cfg.ArchivePrefix,
		c.clock.Now().UTC().Format("2006-01-02"),
		player,
	)
	if err := c.archiver.Save(ctx, objectName, payload); err != nil {
		c.logger.Warn("payload archive failed",
			zap.String("player", player),
			zap.String("object", objectName),
			zap.Error(err),
		)
	}
}

func (c *Coordinator) publishSummary(ctx context.Context, summary Summary) {
	if c.publisher == nil {
		return
	}
	payload := map[string]any{
		"crawl_id":    summary.CrawlID,
		"roster":      summary.Roster,
		"processed":   summary.Processed,
		"failed":      summary.Failed,
		"duration_ms": summary.Duration.Milliseconds(),
		"timestamp":   c.clock.Now().Format(time.RFC3339),
	}
	if err := c.publisher.Publish(ctx, payload); err != nil {
		c.logger.Warn("summary publish failed", zap.Error(err))
	}
}

func (c *Coordinator) logResults(summary Summary) {
	rate := float64(summary.Processed) / float64(summary.Roster) * 100
	c.logger.Info("scrape completed",
		zap.String("crawl_id", summary.CrawlID),
		zap.Int("processed", summary.Processed),
		zap.Int("roster", summary.Roster),
		zap.String("success_rate", fmt.Sprintf("%.1f%%", rate)),
		zap.Duration("duration", summary.Duration),
	)
	if len(summary.Failed) > 0 {
		c.logger.Warn("players failed permanently", zap.Strings("players", summary.Failed))
	}
}
