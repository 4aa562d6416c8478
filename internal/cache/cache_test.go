package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/libertymp-tools/invcrawler/internal/scraper"
)

type fakeSnapshotStore struct {
	mu      sync.Mutex
	players map[string]scraper.PlayerRecord
	index   map[string]map[string]int
	saveErr error
	loadErr error
}

func (s *fakeSnapshotStore) SaveSnapshot(_ context.Context, players map[string]scraper.PlayerRecord, index map[string]map[string]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.players = players
	s.index = index
	return nil
}

func (s *fakeSnapshotStore) LoadPlayers(context.Context) (map[string]scraper.PlayerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	if s.players == nil {
		return map[string]scraper.PlayerRecord{}, nil
	}
	return s.players, nil
}

func pistolRecord(count int) scraper.PlayerRecord {
	return scraper.PlayerRecord{
		Items: map[string]scraper.PlayerItem{
			"weapon_pistol": {Name: "weapon_pistol", Count: count},
		},
		Vehicles: []scraper.PlayerVehicle{
			{ModelHash: 1234, Name: "Banshee"},
		},
		LastUpdated: time.Unix(1000, 0),
	}
}

func newTestCache(store scraper.SnapshotStore) *Cache {
	c := New(store, zap.NewNop())
	c.SetItemCatalog(scraper.ItemCatalog{"Pistol": "weapon_pistol"})
	return c
}

func TestCache_UpsertAndLookups(t *testing.T) {
	t.Parallel()

	c := newTestCache(&fakeSnapshotStore{})
	c.UpsertPlayer("Alice", pistolRecord(3))

	record, ok := c.GetPlayer("Alice")
	require.True(t, ok)
	require.Equal(t, 3, record.Items["weapon_pistol"].Count)

	owners := c.FindPlayersWithItem("Pistol")
	require.Equal(t, map[string]int{"Alice": 3}, owners)

	require.Equal(t, []string{"Alice"}, c.FindPlayersWithVehicle("Banshee"))
	require.Equal(t, 1, c.Len())
}

func TestCache_UnknownLookupsAreEmpty(t *testing.T) {
	t.Parallel()

	c := newTestCache(&fakeSnapshotStore{})
	c.UpsertPlayer("Alice", pistolRecord(1))

	_, ok := c.GetPlayer("Nobody")
	require.False(t, ok)
	require.Empty(t, c.FindPlayersWithItem("Jetpack"))
	require.Empty(t, c.FindPlayersWithVehicle("Hydra"))
}

func TestCache_ReupsertRemovesStaleIndexEntries(t *testing.T) {
	t.Parallel()

	c := newTestCache(&fakeSnapshotStore{})
	c.UpsertPlayer("Alice", pistolRecord(2))

	// Alice sold the pistol and the Banshee, bought a burger.
	c.UpsertPlayer("Alice", scraper.PlayerRecord{
		Items: map[string]scraper.PlayerItem{
			"food_burger": {Name: "food_burger", Count: 1},
		},
	})

	require.Empty(t, c.FindPlayersWithItem("Pistol"))
	require.Empty(t, c.FindPlayersWithVehicle("Banshee"))

	record, ok := c.GetPlayer("Alice")
	require.True(t, ok)
	require.Equal(t, 1, record.Items["food_burger"].Count)
	require.Equal(t, 1, c.Len())
}

func TestCache_UnknownVehicleSentinelIsQueryable(t *testing.T) {
	t.Parallel()

	c := newTestCache(&fakeSnapshotStore{})
	c.UpsertPlayer("Alice", scraper.PlayerRecord{
		Vehicles: []scraper.PlayerVehicle{
			{ModelHash: 999, Name: scraper.UnknownVehicleName},
		},
	})

	require.Equal(t, []string{"Alice"}, c.FindPlayersWithVehicle(scraper.UnknownVehicleName))
}

func TestCache_SaveAndLoadRoundTrip(t *testing.T) {
	t.Parallel()

	store := &fakeSnapshotStore{}
	c := newTestCache(store)
	c.UpsertPlayer("Alice", pistolRecord(3))
	c.UpsertPlayer("Bob", pistolRecord(1))
	require.NoError(t, c.Save(context.Background()))

	restored := newTestCache(store)
	restored.Load(context.Background())

	require.Equal(t, 2, restored.Len())
	owners := restored.FindPlayersWithItem("Pistol")
	require.Equal(t, map[string]int{"Alice": 3, "Bob": 1}, owners)
	require.ElementsMatch(t, []string{"Alice", "Bob"}, restored.FindPlayersWithVehicle("Banshee"))
}

func TestCache_LoadFailureStartsEmpty(t *testing.T) {
	t.Parallel()

	c := newTestCache(&fakeSnapshotStore{loadErr: errors.New("corrupt snapshot")})
	c.Load(context.Background())
	require.Equal(t, 0, c.Len())
}

func TestCache_SaveErrorIsWrapped(t *testing.T) {
	t.Parallel()

	c := newTestCache(&fakeSnapshotStore{saveErr: errors.New("disk full")})
	err := c.Save(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "save snapshot")
}

func TestCache_ConcurrentUpsertsAndReads(t *testing.T) {
	t.Parallel()

	c := newTestCache(&fakeSnapshotStore{})
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("player-%d", i%4)
			for j := 0; j < 50; j++ {
				c.UpsertPlayer(name, pistolRecord(j+1))
				c.GetPlayer(name)
				c.FindPlayersWithItem("Pistol")
				c.FindPlayersWithVehicle("Banshee")
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, 4, c.Len())
	require.Len(t, c.FindPlayersWithItem("Pistol"), 4)
}
