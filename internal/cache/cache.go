// Package cache owns the durable primary store of player records and the
// derived inverted index for reverse lookups. Both structures live under
// one lock so a reader never observes a half-applied update.
package cache

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/libertymp-tools/invcrawler/internal/metrics"
	"github.com/libertymp-tools/invcrawler/internal/scraper"
)

// vehicleKeyPrefix namespaces vehicle names in the index so they cannot
// collide with item keys.
const vehicleKeyPrefix = "vehicle:"

// Cache holds the player name to record mapping and the inverted
// item/vehicle to owners index derived from it.
type Cache struct {
	mu      sync.RWMutex
	players map[string]scraper.PlayerRecord
	index   map[string]map[string]int
	items   scraper.ItemCatalog

	store  scraper.SnapshotStore
	logger *zap.Logger
}

// New constructs an empty Cache backed by the given snapshot store.
func New(store scraper.SnapshotStore, logger *zap.Logger) *Cache {
	return &Cache{
		players: make(map[string]scraper.PlayerRecord),
		index:   make(map[string]map[string]int),
		store:   store,
		logger:  logger,
	}
}

// SetItemCatalog installs the display-name to item-key mapping used to
// resolve item queries. Called once at the start of each crawl.
func (c *Cache) SetItemCatalog(items scraper.ItemCatalog) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = items
}

// UpsertPlayer atomically replaces the player's record and updates the
// inverted index: the player's old contributions are removed from every
// key they used to own before the new ones are inserted.
func (c *Cache) UpsertPlayer(name string, record scraper.PlayerRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.players[name]; ok {
		c.removeContributions(name, old)
	}
	c.players[name] = record
	c.addContributions(name, record)
}

func (c *Cache) removeContributions(name string, record scraper.PlayerRecord) {
	for itemKey := range record.Items {
		c.dropIndexEntry(itemKey, name)
	}
	for _, vehicle := range record.Vehicles {
		c.dropIndexEntry(vehicleKeyPrefix+vehicle.Name, name)
	}
}

func (c *Cache) addContributions(name string, record scraper.PlayerRecord) {
	for itemKey, item := range record.Items {
		c.putIndexEntry(itemKey, name, item.Count)
	}
	for _, vehicle := range record.Vehicles {
		c.putIndexEntry(vehicleKeyPrefix+vehicle.Name, name, 1)
	}
}

func (c *Cache) dropIndexEntry(key, name string) {
	owners, ok := c.index[key]
	if !ok {
		return
	}
	delete(owners, name)
	if len(owners) == 0 {
		delete(c.index, key)
	}
}

func (c *Cache) putIndexEntry(key, name string, quantity int) {
	owners, ok := c.index[key]
	if !ok {
		owners = make(map[string]int)
		c.index[key] = owners
	}
	owners[name] = quantity
}

// GetPlayer returns the player's record, or false when unknown.
func (c *Cache) GetPlayer(name string) (scraper.PlayerRecord, bool) {
	metrics.ObserveCacheLookup("player")
	c.mu.RLock()
	defer c.mu.RUnlock()
	record, ok := c.players[name]
	return record, ok
}

// FindPlayersWithItem resolves the item display name through the catalog
// and returns owning players with their quantities. An unknown name
// yields an empty result.
func (c *Cache) FindPlayersWithItem(itemName string) map[string]int {
	metrics.ObserveCacheLookup("item")
	c.mu.RLock()
	defer c.mu.RUnlock()

	itemKey, ok := c.items[itemName]
	if !ok {
		return map[string]int{}
	}
	return copyOwners(c.index[itemKey])
}

// FindPlayersWithVehicle returns the names of players owning the vehicle.
func (c *Cache) FindPlayersWithVehicle(vehicleName string) []string {
	metrics.ObserveCacheLookup("vehicle")
	c.mu.RLock()
	defer c.mu.RUnlock()

	owners := c.index[vehicleKeyPrefix+vehicleName]
	names := make([]string, 0, len(owners))
	for name := range owners {
		names = append(names, name)
	}
	return names
}

// Len reports the number of cached players.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.players)
}

// Save writes the primary store and the derived index to the snapshot
// store. Both files are fully rewritten.
func (c *Cache) Save(ctx context.Context) error {
	c.mu.RLock()
	players := make(map[string]scraper.PlayerRecord, len(c.players))
	for name, record := range c.players {
		players[name] = record
	}
	index := make(map[string]map[string]int, len(c.index))
	for key, owners := range c.index {
		index[key] = copyOwners(owners)
	}
	c.mu.RUnlock()

	if err := c.store.SaveSnapshot(ctx, players, index); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	c.logger.Info("cache saved", zap.Int("players", len(players)), zap.Int("index_keys", len(index)))
	return nil
}

// Load restores the primary store from the snapshot store and rebuilds
// the inverted index from it. Missing storage yields an empty cache; a
// corrupt snapshot is logged and the cache resets to empty so a crawl
// can still proceed.
func (c *Cache) Load(ctx context.Context) {
	players, err := c.store.LoadPlayers(ctx)
	if err != nil {
		c.logger.Error("cache load failed, starting empty", zap.Error(err))
		players = make(map[string]scraper.PlayerRecord)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.players = players
	c.index = make(map[string]map[string]int)
	for name, record := range players {
		c.addContributions(name, record)
	}
	c.logger.Info("cache loaded", zap.Int("players", len(players)))
}

func copyOwners(owners map[string]int) map[string]int {
	out := make(map[string]int, len(owners))
	for name, quantity := range owners {
		out[name] = quantity
	}
	return out
}
