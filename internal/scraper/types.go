// Package scraper defines core types and interfaces for the inventory
// crawl pipeline: the per-player record schema, fetch request/response
// shapes, reference catalogs, and the crawl summary.
package scraper

import (
	"net/http"
	"time"
)

// UnknownVehicleName is the fallback display name for a vehicle whose
// model hash has no catalog entry.
const UnknownVehicleName = "Unknown Vehicle"

// PlayerItem is one inventory item with its aggregated count.
type PlayerItem struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// PlayerVehicle is one owned vehicle with its resolved display name.
type PlayerVehicle struct {
	ModelHash int64  `json:"model_hash"`
	Name      string `json:"name"`
}

// PlayerRecord is the normalized snapshot of one player's inventory and
// vehicle ownership. A record is always replaced whole on update, never
// merged field-by-field.
type PlayerRecord struct {
	Items       map[string]PlayerItem `json:"items"`
	Vehicles    []PlayerVehicle       `json:"vehicles"`
	LastUpdated time.Time             `json:"last_updated"`
}

// VehicleCatalog maps a vehicle model hash to its display name.
type VehicleCatalog map[int64]string

// ItemCatalog maps an item display name to its internal item key.
type ItemCatalog map[string]string

// FetchRequest identifies one player profile fetch.
type FetchRequest struct {
	Player  string
	Headers http.Header
}

// FetchResponse is the raw result returned by a Fetcher implementation.
type FetchResponse struct {
	Player     string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// Summary reports the outcome of one full crawl.
type Summary struct {
	CrawlID   string        `json:"crawl_id"`
	Roster    int           `json:"roster"`
	Processed int           `json:"processed"`
	Failed    []string      `json:"failed"`
	Duration  time.Duration `json:"duration"`
}
