package scraper

import (
	"context"
	"time"
)

// Fetcher retrieves one player's raw profile payload. Implementations
// must apply their configured timeout to every call and release any
// per-call resources (connections, browser tabs) on both success and
// failure paths.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// RosterSource yields the set of player names in scope for a crawl.
type RosterSource interface {
	GetPlayers(ctx context.Context) ([]string, error)
}

// VehicleCatalogSource loads the model-hash to display-name mapping.
type VehicleCatalogSource interface {
	GetVehicleCatalog(ctx context.Context) (VehicleCatalog, error)
}

// ItemCatalogSource loads the display-name to item-key mapping.
type ItemCatalogSource interface {
	GetItemCatalog(ctx context.Context) (ItemCatalog, error)
}

// PlayerStore is the write side of the cache as seen by the coordinator.
type PlayerStore interface {
	SetItemCatalog(items ItemCatalog)
	UpsertPlayer(name string, record PlayerRecord)
	Save(ctx context.Context) error
}

// SnapshotStore persists and restores the primary store and its derived
// index. LoadPlayers on missing storage returns an empty map, not an error.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, players map[string]PlayerRecord, index map[string]map[string]int) error
	LoadPlayers(ctx context.Context) (map[string]PlayerRecord, error)
}

// Publisher pushes crawl completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, payload any) error
}

// Archiver stores raw profile payloads for later inspection.
type Archiver interface {
	Save(ctx context.Context, objectName string, data []byte) error
}

// RetryPolicy decides whether a failed fetch is retried and how long to
// wait before the next attempt.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces crawl IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
