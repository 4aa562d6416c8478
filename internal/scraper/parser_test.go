package scraper

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseProfile_AggregatesItemCounts(t *testing.T) {
	t.Parallel()

	payload := []byte(`{
		"user": {
			"Inventory": {
				"Items": [
					{"item_key": "weapon_pistol"},
					{"item_key": "weapon_pistol"},
					{"item_key": "food_burger"}
				]
			},
			"PostOfficeItems": [
				{"item_key": "weapon_pistol"}
			]
		}
	}`)

	record, err := ParseProfile(payload, VehicleCatalog{})
	require.NoError(t, err)
	require.Equal(t, 3, record.Items["weapon_pistol"].Count)
	require.Equal(t, 1, record.Items["food_burger"].Count)
	require.Empty(t, record.Vehicles)
}

func TestParseProfile_ResolvesVehicleNames(t *testing.T) {
	t.Parallel()

	payload := []byte(`{
		"user": {
			"personal_vehicles": [
				{"ModelHash": 1234},
				{"ModelHash": 999}
			]
		}
	}`)
	catalog := VehicleCatalog{1234: "Banshee"}

	record, err := ParseProfile(payload, catalog)
	require.NoError(t, err)
	require.Len(t, record.Vehicles, 2)
	require.Equal(t, "Banshee", record.Vehicles[0].Name)
	require.Equal(t, UnknownVehicleName, record.Vehicles[1].Name)
	require.Equal(t, int64(999), record.Vehicles[1].ModelHash)
}

func TestParseProfile_SkipsItemsWithoutKey(t *testing.T) {
	t.Parallel()

	payload := []byte(`{
		"user": {
			"Inventory": {
				"Items": [
					{"item_key": ""},
					{"item_key": "drug_weed"}
				]
			}
		}
	}`)

	record, err := ParseProfile(payload, nil)
	require.NoError(t, err)
	require.Len(t, record.Items, 1)
	require.Equal(t, 1, record.Items["drug_weed"].Count)
}

func TestParseProfile_MissingUserIsMalformed(t *testing.T) {
	t.Parallel()

	_, err := ParseProfile([]byte(`{"status": "ok"}`), nil)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrMalformedPayload)
}

func TestParseProfile_InvalidJSONIsMalformed(t *testing.T) {
	t.Parallel()

	_, err := ParseProfile([]byte(`<html>login required</html>`), nil)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrMalformedPayload)
}

func TestParseProfile_LastUpdatedLeftZero(t *testing.T) {
	t.Parallel()

	record, err := ParseProfile([]byte(`{"user": {}}`), nil)
	require.NoError(t, err)
	require.True(t, record.LastUpdated.IsZero())
}
