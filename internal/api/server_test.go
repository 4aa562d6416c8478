package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/libertymp-tools/invcrawler/internal/cache"
	"github.com/libertymp-tools/invcrawler/internal/scraper"
)

type nopSnapshotStore struct{}

func (nopSnapshotStore) SaveSnapshot(context.Context, map[string]scraper.PlayerRecord, map[string]map[string]int) error {
	return nil
}

func (nopSnapshotStore) LoadPlayers(context.Context) (map[string]scraper.PlayerRecord, error) {
	return map[string]scraper.PlayerRecord{}, nil
}

type stubFetcher struct{}

func (stubFetcher) Fetch(_ context.Context, request scraper.FetchRequest) (scraper.FetchResponse, error) {
	return scraper.FetchResponse{Player: request.Player, StatusCode: http.StatusOK, Body: []byte(`{"user": {}}`)}, nil
}

type stubRoster struct {
	players []string
	release chan struct{}
}

func (r *stubRoster) GetPlayers(context.Context) ([]string, error) {
	if r.release != nil {
		<-r.release
	}
	return r.players, nil
}

type stubVehicles struct{}

func (stubVehicles) GetVehicleCatalog(context.Context) (scraper.VehicleCatalog, error) {
	return scraper.VehicleCatalog{}, nil
}

type stubItems struct{}

func (stubItems) GetItemCatalog(context.Context) (scraper.ItemCatalog, error) {
	return scraper.ItemCatalog{}, nil
}

type stubClock struct{}

func (stubClock) Now() time.Time { return time.Unix(2000, 0).UTC() }

type stubIDGen struct{}

func (stubIDGen) NewID() (string, error) { return "crawl-test", nil }

func newTestServer(t *testing.T, roster scraper.RosterSource) (*Server, *cache.Cache) {
	t.Helper()
	return newTestServerContext(t, context.Background(), roster, zap.NewNop())
}

func newTestServerContext(t *testing.T, ctx context.Context, roster scraper.RosterSource, logger *zap.Logger) (*Server, *cache.Cache) {
	t.Helper()
	c := cache.New(nopSnapshotStore{}, zap.NewNop())
	c.SetItemCatalog(scraper.ItemCatalog{"Pistol": "weapon_pistol"})

	coordinator := scraper.NewCoordinator(
		stubFetcher{},
		c,
		roster,
		stubVehicles{},
		stubItems{},
		scraper.NewExponentialRetryPolicy(1, time.Millisecond, time.Millisecond),
		stubClock{},
		stubIDGen{},
		nil,
		nil,
		scraper.Config{MaxWorkers: 1, BatchSize: 1, MaxRetries: 1, FetchTimeout: time.Second},
		zap.NewNop(),
	)
	return NewServer(ctx, c, coordinator, logger), c
}

func doRequest(t *testing.T, server *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t, &stubRoster{})
	rec := doRequest(t, server, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status": "ok"}`, rec.Body.String())
}

func TestServer_GetPlayer(t *testing.T) {
	t.Parallel()

	server, c := newTestServer(t, &stubRoster{})
	c.UpsertPlayer("Alice", scraper.PlayerRecord{
		Items: map[string]scraper.PlayerItem{
			"weapon_pistol": {Name: "weapon_pistol", Count: 3},
		},
	})

	rec := doRequest(t, server, http.MethodGet, "/v1/players/Alice")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Name   string               `json:"name"`
		Record scraper.PlayerRecord `json:"record"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, "Alice", payload.Name)
	require.Equal(t, 3, payload.Record.Items["weapon_pistol"].Count)
}

func TestServer_GetPlayer_NotFound(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t, &stubRoster{})
	rec := doRequest(t, server, http.MethodGet, "/v1/players/Nobody")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_FindItemOwners(t *testing.T) {
	t.Parallel()

	server, c := newTestServer(t, &stubRoster{})
	c.UpsertPlayer("Alice", scraper.PlayerRecord{
		Items: map[string]scraper.PlayerItem{
			"weapon_pistol": {Name: "weapon_pistol", Count: 2},
		},
	})

	rec := doRequest(t, server, http.MethodGet, "/v1/items/Pistol/players")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Item   string         `json:"item"`
		Owners map[string]int `json:"owners"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, map[string]int{"Alice": 2}, payload.Owners)
}

func TestServer_FindVehicleOwners_EscapedName(t *testing.T) {
	t.Parallel()

	server, c := newTestServer(t, &stubRoster{})
	c.UpsertPlayer("Alice", scraper.PlayerRecord{
		Vehicles: []scraper.PlayerVehicle{
			{ModelHash: 999, Name: scraper.UnknownVehicleName},
		},
	})

	rec := doRequest(t, server, http.MethodGet, "/v1/vehicles/Unknown%20Vehicle/players")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Vehicle string   `json:"vehicle"`
		Owners  []string `json:"owners"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, scraper.UnknownVehicleName, payload.Vehicle)
	require.Equal(t, []string{"Alice"}, payload.Owners)
}

func TestServer_TriggerScrape(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t, &stubRoster{players: []string{"Alice"}})
	rec := doRequest(t, server, http.MethodPost, "/v1/scrape")
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		return !server.crawling.Load()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServer_TriggerScrape_ConflictWhileRunning(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server, _ := newTestServer(t, &stubRoster{release: release})

	first := doRequest(t, server, http.MethodPost, "/v1/scrape")
	require.Equal(t, http.StatusAccepted, first.Code)

	second := doRequest(t, server, http.MethodPost, "/v1/scrape")
	require.Equal(t, http.StatusConflict, second.Code)

	close(release)
	require.Eventually(t, func() bool {
		return !server.crawling.Load()
	}, 2*time.Second, 10*time.Millisecond)
}

// stalledRoster blocks until the crawl context is cancelled.
type stalledRoster struct{}

func (stalledRoster) GetPlayers(ctx context.Context) ([]string, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestServer_ShutdownContextStopsBackgroundCrawl(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	server, _ := newTestServerContext(t, ctx, stalledRoster{}, zap.NewNop())

	rec := doRequest(t, server, http.MethodPost, "/v1/scrape")
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.True(t, server.crawling.Load())

	cancel()
	require.Eventually(t, func() bool {
		return !server.crawling.Load()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServer_LogsThroughInjectedLogger(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	server, _ := newTestServerContext(t, context.Background(), &stubRoster{}, zap.New(core))

	rec := doRequest(t, server, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, logs.FilterMessage("request completed").Len())
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t, &stubRoster{})
	rec := doRequest(t, server, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
}
