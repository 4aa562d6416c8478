package refdata

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/libertymp-tools/invcrawler/internal/scraper"
)

// ItemCatalogClient implements scraper.ItemCatalogSource against the
// backend inventory endpoint.
type ItemCatalogClient struct {
	client     httpDoer
	catalogURL string
	logger     *zap.Logger
}

// NewItemCatalogClient constructs an ItemCatalogClient.
func NewItemCatalogClient(client httpDoer, catalogURL string, logger *zap.Logger) *ItemCatalogClient {
	return &ItemCatalogClient{
		client:     client,
		catalogURL: catalogURL,
		logger:     logger,
	}
}

// GetItemCatalog fetches the key to metadata mapping and inverts it to
// display-name to item-key, the direction queries resolve in.
func (c *ItemCatalogClient) GetItemCatalog(ctx context.Context) (scraper.ItemCatalog, error) {
	body, err := getJSON(ctx, c.client, c.catalogURL)
	if err != nil {
		return nil, fmt.Errorf("fetch item catalog: %w", err)
	}

	var payload map[string]struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode item catalog: %w", err)
	}

	catalog := make(scraper.ItemCatalog, len(payload))
	for key, value := range payload {
		if value.Name == "" {
			continue
		}
		catalog[value.Name] = key
	}
	c.logger.Info("item catalog loaded", zap.Int("items", len(catalog)))
	return catalog, nil
}
