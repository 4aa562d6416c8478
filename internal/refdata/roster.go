package refdata

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"go.uber.org/zap"

	"github.com/libertymp-tools/invcrawler/internal/scraper"
)

// timestampLayout matches the format used in the roster file.
const timestampLayout = "2006-01-02 15:04:05"

// RosterClient implements scraper.RosterSource. The online player list
// is merged into a persisted name to last-online file so players seen on
// earlier crawls stay scrape candidates while offline.
type RosterClient struct {
	client    httpDoer
	onlineURL string
	dbFile    string
	clock     scraper.Clock
	logger    *zap.Logger
}

type rosterEntry struct {
	Name       string `json:"name"`
	LastOnline string `json:"last_online"`
}

// NewRosterClient constructs a RosterClient.
func NewRosterClient(client httpDoer, onlineURL, dbFile string, clock scraper.Clock, logger *zap.Logger) *RosterClient {
	return &RosterClient{
		client:    client,
		onlineURL: onlineURL,
		dbFile:    dbFile,
		clock:     clock,
		logger:    logger,
	}
}

// GetPlayers fetches the currently online players, merges them into the
// persisted roster file and returns the merged name set, sorted.
func (c *RosterClient) GetPlayers(ctx context.Context) ([]string, error) {
	body, err := getJSON(ctx, c.client, c.onlineURL)
	if err != nil {
		return nil, fmt.Errorf("fetch online players: %w", err)
	}

	var payload struct {
		Users []struct {
			Name string `json:"name"`
		} `json:"users"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode online players: %w", err)
	}

	entries := c.loadRosterFile()
	byName := make(map[string]rosterEntry, len(entries))
	for _, entry := range entries {
		byName[entry.Name] = entry
	}

	now := c.clock.Now().Format(timestampLayout)
	for _, user := range payload.Users {
		if user.Name == "" {
			continue
		}
		byName[user.Name] = rosterEntry{Name: user.Name, LastOnline: now}
	}

	merged := make([]rosterEntry, 0, len(byName))
	names := make([]string, 0, len(byName))
	for _, entry := range byName {
		merged = append(merged, entry)
		names = append(names, entry.Name)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Name < merged[j].Name })
	sort.Strings(names)

	c.saveRosterFile(merged)

	c.logger.Info("roster loaded",
		zap.Int("online", len(payload.Users)),
		zap.Int("total", len(names)),
	)
	return names, nil
}

func (c *RosterClient) loadRosterFile() []rosterEntry {
	data, err := os.ReadFile(c.dbFile)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("roster file unreadable, starting fresh", zap.Error(err))
		}
		return nil
	}
	var entries []rosterEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		c.logger.Warn("roster file corrupt, starting fresh", zap.Error(err))
		return nil
	}
	return entries
}

func (c *RosterClient) saveRosterFile(entries []rosterEntry) {
	data, err := json.MarshalIndent(entries, "", "    ")
	if err != nil {
		c.logger.Warn("roster file marshal failed", zap.Error(err))
		return
	}
	if err := os.WriteFile(c.dbFile, data, 0o600); err != nil {
		c.logger.Warn("roster file write failed", zap.Error(err))
	}
}
