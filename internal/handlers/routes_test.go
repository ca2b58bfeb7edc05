package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsewatch/internal/database"
	"pulsewatch/internal/models"
)

// fakeStore serves one owner and one monitor, enough to drive the routes.
type fakeStore struct {
	owner   *models.Owner
	monitor *models.Monitor
	updated *database.MonitorParams
}

func (s *fakeStore) CreateOwner(_ context.Context, name string) (*models.Owner, error) {
	return &models.Owner{ID: 1, Name: name, APIKey: "6a1f0e62-9f3b-4c5d-8e7a-2b4c6d8e0f1a"}, nil
}

func (s *fakeStore) OwnerByAPIKey(_ context.Context, apiKey string) (*models.Owner, error) {
	if s.owner != nil && apiKey == s.owner.APIKey {
		return s.owner, nil
	}
	return nil, database.ErrNotFound
}

func (s *fakeStore) CreateMonitor(_ context.Context, ownerID int64, p database.MonitorParams) (*models.Monitor, error) {
	return &models.Monitor{ID: 99, OwnerID: ownerID, Name: p.Name, IsActive: p.IsActive}, nil
}

func (s *fakeStore) MonitorsByOwner(context.Context, int64) ([]*models.Monitor, error) {
	if s.monitor == nil {
		return nil, nil
	}
	return []*models.Monitor{s.monitor}, nil
}

func (s *fakeStore) MonitorByID(_ context.Context, ownerID, id int64) (*models.Monitor, error) {
	if s.monitor != nil && s.monitor.OwnerID == ownerID && s.monitor.ID == id {
		return s.monitor, nil
	}
	return nil, database.ErrNotFound
}

func (s *fakeStore) UpdateMonitor(_ context.Context, ownerID, id int64, p database.MonitorParams) (*models.Monitor, error) {
	if s.monitor == nil || s.monitor.OwnerID != ownerID || s.monitor.ID != id {
		return nil, database.ErrNotFound
	}
	s.updated = &p
	s.monitor.Name = p.Name
	s.monitor.IsActive = p.IsActive
	return s.monitor, nil
}

func (s *fakeStore) DeleteMonitor(_ context.Context, ownerID, id int64) error {
	if s.monitor == nil || s.monitor.OwnerID != ownerID || s.monitor.ID != id {
		return database.ErrNotFound
	}
	s.monitor = nil
	return nil
}

func (s *fakeStore) LogsByMonitor(context.Context, int64, int) ([]*models.PingLog, error) {
	return nil, nil
}

func (s *fakeStore) LogsInRange(context.Context, int64, time.Time, time.Time) ([]*models.PingLog, error) {
	return nil, nil
}

func (s *fakeStore) LogsSince(context.Context, int64, int64, time.Time) ([]*models.PingLog, error) {
	return nil, nil
}

func (s *fakeStore) FailuresByMonitor(context.Context, int64, int) ([]*models.FailureEpisode, error) {
	return nil, nil
}

func (s *fakeStore) RecentFailures(context.Context, int64, int) ([]*models.FailureEpisode, error) {
	return nil, nil
}

func (s *fakeStore) Summary(context.Context, int64) (database.SummaryCounts, error) {
	return database.SummaryCounts{}, nil
}

func (s *fakeStore) OwnerResponseStats(context.Context, int64) (float64, float64, float64, bool, error) {
	return 0, 0, 0, false, nil
}

// fakeCache misses every read and records invalidations.
type fakeCache struct {
	invalidated []int64
}

func (c *fakeCache) GetSummary(context.Context, int64) ([]byte, bool, error) { return nil, false, nil }
func (c *fakeCache) SetSummary(context.Context, int64, []byte) error        { return nil }

func (c *fakeCache) InvalidateSummary(_ context.Context, ownerID int64) error {
	c.invalidated = append(c.invalidated, ownerID)
	return nil
}

type fakeIngestor struct {
	monitors map[string]*models.Monitor
}

func (i *fakeIngestor) Ingest(_ context.Context, token string, _ *float64, _ json.RawMessage) (*models.Monitor, error) {
	m, ok := i.monitors[token]
	if !ok {
		return nil, database.ErrNotFound
	}
	return m, nil
}

const testAPIKey = "2f0c4b6e-1d3a-4f5b-9c8d-7e6f5a4b3c2d"

func newTestApp() (*fiber.App, *fakeStore, *fakeCache, *fakeIngestor) {
	store := &fakeStore{
		owner: &models.Owner{ID: 1, Name: "acme", APIKey: testAPIKey},
		monitor: &models.Monitor{
			ID: 5, OwnerID: 1, Name: "api-health",
			IntervalMinutes: 5, GraceMinutes: 5, IsActive: true,
		},
	}
	cache := &fakeCache{}
	ing := &fakeIngestor{monitors: make(map[string]*models.Monitor)}

	app := fiber.New()
	h := &Handlers{DB: store, Cache: cache, Heartbeat: ing}
	h.RegisterRoutes(app.Group("/api"))
	return app, store, cache, ing
}

func TestPingUnknownTokenIs404(t *testing.T) {
	app, _, _, _ := newTestApp()

	// A well-formed but unknown token and outright garbage both come back as
	// not-found, never as a server error.
	for _, token := range []string{"b9e2a6c4-0d1f-4e3a-8b7c-6d5e4f3a2b1c", "garbage"} {
		resp, err := app.Test(httptest.NewRequest("GET", "/api/ping/"+token, nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode, "token %q", token)
	}
}

func TestPingKnownToken(t *testing.T) {
	app, _, _, ing := newTestApp()
	ing.monitors["tok"] = &models.Monitor{ID: 5, Name: "api-health", IsUp: true}

	resp, err := app.Test(httptest.NewRequest("GET", "/api/ping/tok", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestAuthRejectsBadKey(t *testing.T) {
	app, _, _, _ := newTestApp()

	for _, key := range []string{"", "not-a-key", "b9e2a6c4-0d1f-4e3a-8b7c-6d5e4f3a2b1c"} {
		req := httptest.NewRequest("GET", "/api/monitors", nil)
		if key != "" {
			req.Header.Set("X-API-Key", key)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, "key %q", key)
	}
}

func TestUpdateMonitorInvalidatesSummary(t *testing.T) {
	app, store, cache, _ := newTestApp()

	body := `{"name": "api-health", "interval_minutes": 10, "is_active": false}`
	req := httptest.NewRequest("PUT", "/api/monitors/5", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", testAPIKey)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	require.NotNil(t, store.updated)
	assert.False(t, store.updated.IsActive)
	assert.Equal(t, []int64{1}, cache.invalidated, "update must drop the cached summary")
}

func TestDeleteMonitorInvalidatesSummary(t *testing.T) {
	app, store, cache, _ := newTestApp()

	req := httptest.NewRequest("DELETE", "/api/monitors/5", nil)
	req.Header.Set("X-API-Key", testAPIKey)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.Nil(t, store.monitor)
	assert.Equal(t, []int64{1}, cache.invalidated)
}

func TestCreateMonitorZeroIntervalIs422(t *testing.T) {
	app, _, cache, _ := newTestApp()

	body := `{"name": "api-health"}`
	req := httptest.NewRequest("POST", "/api/monitors", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", testAPIKey)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	assert.Empty(t, cache.invalidated, "rejected create leaves the cache alone")
}
