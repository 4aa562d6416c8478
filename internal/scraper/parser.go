package scraper

import (
	"encoding/json"
	"fmt"
)

// profileEnvelope mirrors the upstream profile endpoint response.
type profileEnvelope struct {
	User *profileUser `json:"user"`
}

type profileUser struct {
	Inventory struct {
		Items []rawItem `json:"Items"`
	} `json:"Inventory"`
	PostOfficeItems  []rawItem    `json:"PostOfficeItems"`
	PersonalVehicles []rawVehicle `json:"personal_vehicles"`
}

type rawItem struct {
	ItemKey string `json:"item_key"`
}

type rawVehicle struct {
	ModelHash int64 `json:"ModelHash"`
}

// ParseProfile turns a raw profile payload into a PlayerRecord using the
// vehicle catalog for display-name resolution. The result carries a zero
// LastUpdated stamp; the caller assigns it on merge.
//
// Item counts aggregate across the main inventory and the mailbox list:
// every raw occurrence of an item key adds one to its count. Entries
// without a key are skipped. An unresolved vehicle hash falls back to
// UnknownVehicleName instead of failing the record.
func ParseProfile(payload []byte, vehicles VehicleCatalog) (PlayerRecord, error) {
	var envelope profileEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return PlayerRecord{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if envelope.User == nil {
		return PlayerRecord{}, fmt.Errorf("%w: missing user object", ErrMalformedPayload)
	}

	items := make(map[string]PlayerItem)
	addItems(envelope.User.Inventory.Items, items)
	addItems(envelope.User.PostOfficeItems, items)

	owned := make([]PlayerVehicle, 0, len(envelope.User.PersonalVehicles))
	for _, vehicle := range envelope.User.PersonalVehicles {
		name, ok := vehicles[vehicle.ModelHash]
		if !ok {
			name = UnknownVehicleName
		}
		owned = append(owned, PlayerVehicle{
			ModelHash: vehicle.ModelHash,
			Name:      name,
		})
	}

	return PlayerRecord{
		Items:    items,
		Vehicles: owned,
	}, nil
}

func addItems(source []rawItem, items map[string]PlayerItem) {
	for _, item := range source {
		if item.ItemKey == "" {
			continue
		}
		entry, ok := items[item.ItemKey]
		if !ok {
			entry = PlayerItem{Name: item.ItemKey}
		}
		entry.Count++
		items[item.ItemKey] = entry
	}
}
