package refdata

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/libertymp-tools/invcrawler/internal/scraper"
)

// VehicleCatalogClient implements scraper.VehicleCatalogSource against
// the UCP vehicle data endpoint.
type VehicleCatalogClient struct {
	client     httpDoer
	catalogURL string
	logger     *zap.Logger
}

// NewVehicleCatalogClient constructs a VehicleCatalogClient.
func NewVehicleCatalogClient(client httpDoer, catalogURL string, logger *zap.Logger) *VehicleCatalogClient {
	return &VehicleCatalogClient{
		client:     client,
		catalogURL: catalogURL,
		logger:     logger,
	}
}

// GetVehicleCatalog fetches and decodes the model-hash to display-name
// mapping. Entries with unparsable hash keys are skipped.
func (c *VehicleCatalogClient) GetVehicleCatalog(ctx context.Context) (scraper.VehicleCatalog, error) {
	body, err := getJSON(ctx, c.client, c.catalogURL)
	if err != nil {
		return nil, fmt.Errorf("fetch vehicle catalog: %w", err)
	}

	var payload map[string]struct {
		DisplayName string `json:"DisplayName"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode vehicle catalog: %w", err)
	}

	catalog := make(scraper.VehicleCatalog, len(payload))
	for key, value := range payload {
		hash, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			c.logger.Warn("skipping vehicle with bad hash key", zap.String("key", key))
			continue
		}
		catalog[hash] = value.DisplayName
	}
	c.logger.Info("vehicle catalog loaded", zap.Int("vehicles", len(catalog)))
	return catalog, nil
}
