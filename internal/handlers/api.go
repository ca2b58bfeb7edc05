package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"pulsewatch/internal/cache"
	"pulsewatch/internal/database"
	"pulsewatch/internal/heartbeat"
	"pulsewatch/internal/models"
)

const (
	// LogsLimit caps the per-monitor log listing.
	LogsLimit = 50
	// FailuresLimit caps the per-monitor failure listing.
	FailuresLimit = 20
)

// Store is the persistence surface the handlers go through. Narrowing it to
// an interface lets the routes run against an in-memory store in tests.
type Store interface {
	CreateOwner(ctx context.Context, name string) (*models.Owner, error)
	OwnerByAPIKey(ctx context.Context, apiKey string) (*models.Owner, error)
	CreateMonitor(ctx context.Context, ownerID int64, p database.MonitorParams) (*models.Monitor, error)
	MonitorsByOwner(ctx context.Context, ownerID int64) ([]*models.Monitor, error)
	MonitorByID(ctx context.Context, ownerID, id int64) (*models.Monitor, error)
	UpdateMonitor(ctx context.Context, ownerID, id int64, p database.MonitorParams) (*models.Monitor, error)
	DeleteMonitor(ctx context.Context, ownerID, id int64) error
	LogsByMonitor(ctx context.Context, monitorID int64, limit int) ([]*models.PingLog, error)
	LogsInRange(ctx context.Context, monitorID int64, from, to time.Time) ([]*models.PingLog, error)
	LogsSince(ctx context.Context, ownerID, monitorID int64, since time.Time) ([]*models.PingLog, error)
	FailuresByMonitor(ctx context.Context, monitorID int64, limit int) ([]*models.FailureEpisode, error)
	RecentFailures(ctx context.Context, ownerID int64, limit int) ([]*models.FailureEpisode, error)
	Summary(ctx context.Context, ownerID int64) (database.SummaryCounts, error)
	OwnerResponseStats(ctx context.Context, ownerID int64) (avg, min, max float64, ok bool, err error)
}

// SummaryCache holds the per-owner summary between recomputations.
type SummaryCache interface {
	GetSummary(ctx context.Context, ownerID int64) ([]byte, bool, error)
	SetSummary(ctx context.Context, ownerID int64, data []byte) error
	InvalidateSummary(ctx context.Context, ownerID int64) error
}

// Ingestor processes one liveness signal for a ping token.
type Ingestor interface {
	Ingest(ctx context.Context, token string, responseMs *float64, payload json.RawMessage) (*models.Monitor, error)
}

var (
	_ Store        = (*database.DB)(nil)
	_ SummaryCache = (*cache.Cache)(nil)
	_ Ingestor     = (*heartbeat.Service)(nil)
)

type Handlers struct {
	DB        Store
	Cache     SummaryCache
	Heartbeat Ingestor
}

// RegisterRoutes mounts all API routes on the group.
func (h *Handlers) RegisterRoutes(api fiber.Router) {
	api.Get("/ping/:token", h.Ping)
	api.Post("/ping/:token", h.Ping)

	api.Post("/owners", h.CreateOwner)

	// Everything below is owner-scoped.
	api.Use("/monitors", h.requireOwner)
	api.Use("/reports", h.requireOwner)
	api.Use("/export", h.requireOwner)

	api.Post("/monitors", h.CreateMonitor)
	api.Get("/monitors", h.ListMonitors)
	api.Get("/monitors/summary", h.Summary)
	api.Get("/monitors/:id", h.GetMonitor)
	api.Put("/monitors/:id", h.UpdateMonitor)
	api.Delete("/monitors/:id", h.DeleteMonitor)
	api.Get("/monitors/:id/logs", h.GetLogs)
	api.Get("/monitors/:id/failures", h.GetFailures)
	api.Get("/reports", h.Reports)
	api.Get("/export", h.Export)
}

// Ping handles GET|POST /api/ping/:token -- the public ingestion endpoint.
// The token is the credential; no other authentication applies.
func (h *Handlers) Ping(c *fiber.Ctx) error {
	start := time.Now()

	token := c.Params("token")
	if token == "" {
		return c.SendStatus(fiber.StatusBadRequest)
	}

	// Caller-supplied response time wins; otherwise we use the time this
	// handler spends processing the ping.
	var responseMs *float64
	if v := c.Query("response_time_ms"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			responseMs = &f
		}
	}

	// A POST body is stored verbatim as the log payload, as long as it is
	// valid JSON (the payload column is JSONB).
	var payload json.RawMessage
	if c.Method() == fiber.MethodPost && len(c.Body()) > 0 && json.Valid(c.Body()) {
		payload = append(payload, c.Body()...)
	}

	if responseMs == nil {
		elapsed := float64(time.Since(start).Microseconds()) / 1000
		responseMs = &elapsed
	}

	ctx := context.Background()
	m, err := h.Heartbeat.Ingest(ctx, token, responseMs, payload)
	if errors.Is(err, database.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown token"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to process ping"})
	}

	return c.JSON(fiber.Map{
		"status":           "ok",
		"message":          "monitor " + m.Name + " pinged successfully",
		"response_time_ms": *responseMs,
	})
}

// CreateOwner registers a new owning principal and returns its API key.
func (h *Handlers) CreateOwner(c *fiber.Ctx) error {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.BodyParser(&req); err != nil || req.Name == "" {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "name is required"})
	}

	owner, err := h.DB.CreateOwner(context.Background(), req.Name)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create owner"})
	}
	return c.Status(fiber.StatusCreated).JSON(owner)
}

// requireOwner resolves the X-API-Key header and stashes the owner in locals.
func (h *Handlers) requireOwner(c *fiber.Ctx) error {
	key := c.Get("X-API-Key")
	if key == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing API key"})
	}
	owner, err := h.DB.OwnerByAPIKey(context.Background(), key)
	if errors.Is(err, database.ErrNotFound) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid API key"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "auth lookup failed"})
	}
	c.Locals("owner", owner)
	return c.Next()
}

func owner(c *fiber.Ctx) *models.Owner {
	return c.Locals("owner").(*models.Owner)
}

// monitorRequest is the JSON body for creating or updating a monitor.
type monitorRequest struct {
	Name                  string `json:"name"`
	Description           string `json:"description"`
	URL                   string `json:"url"`
	IntervalDays          int    `json:"interval_days"`
	IntervalHours         int    `json:"interval_hours"`
	IntervalMinutes       int    `json:"interval_minutes"`
	GraceDays             int    `json:"grace_days"`
	GraceHours            int    `json:"grace_hours"`
	GraceMinutes          int    `json:"grace_minutes"`
	NotifyEmail           string `json:"notify_email"`
	NotifyWebhook         string `json:"notify_webhook"`
	NotifyTelegram        int64  `json:"notify_telegram"`
	ResponseTimeThreshold int    `json:"response_time_threshold"`
	IsActive              *bool  `json:"is_active"`
}

// validate maps the request to store params, rejecting zero-total intervals
// and negative components.
func (r *monitorRequest) validate() (database.MonitorParams, string) {
	if r.Name == "" {
		return database.MonitorParams{}, "name is required"
	}
	for _, v := range []int{r.IntervalDays, r.IntervalHours, r.IntervalMinutes, r.GraceDays, r.GraceHours, r.GraceMinutes} {
		if v < 0 {
			return database.MonitorParams{}, "interval and grace components must not be negative"
		}
	}
	if r.IntervalDays == 0 && r.IntervalHours == 0 && r.IntervalMinutes == 0 {
		return database.MonitorParams{}, "at least one interval component (days, hours, or minutes) must be greater than 0"
	}

	threshold := r.ResponseTimeThreshold
	if threshold <= 0 {
		threshold = 1000
	}
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}

	return database.MonitorParams{
		Name:                  r.Name,
		Description:           r.Description,
		URL:                   r.URL,
		IntervalDays:          r.IntervalDays,
		IntervalHours:         r.IntervalHours,
		IntervalMinutes:       r.IntervalMinutes,
		GraceDays:             r.GraceDays,
		GraceHours:            r.GraceHours,
		GraceMinutes:          r.GraceMinutes,
		NotifyEmail:           r.NotifyEmail,
		NotifyWebhook:         r.NotifyWebhook,
		NotifyTelegram:        r.NotifyTelegram,
		ResponseTimeThreshold: threshold,
		IsActive:              active,
	}, ""
}

// CreateMonitor handles POST /api/monitors.
func (h *Handlers) CreateMonitor(c *fiber.Ctx) error {
	var req monitorRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	params, msg := req.validate()
	if msg != "" {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": msg})
	}

	ctx := context.Background()
	o := owner(c)
	m, err := h.DB.CreateMonitor(ctx, o.ID, params)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create monitor"})
	}

	// The summary counts just changed; drop the cached copy. A failed
	// delete only means the summary serves stale for at most the TTL.
	_ = h.Cache.InvalidateSummary(ctx, o.ID)

	return c.Status(fiber.StatusCreated).JSON(m)
}

// ListMonitors handles GET /api/monitors.
func (h *Handlers) ListMonitors(c *fiber.Ctx) error {
	monitors, err := h.DB.MonitorsByOwner(context.Background(), owner(c).ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load monitors"})
	}
	if monitors == nil {
		monitors = make([]*models.Monitor, 0)
	}
	return c.JSON(monitors)
}

// monitorFromParams loads the :id monitor scoped to the requesting owner.
func (h *Handlers) monitorFromParams(c *fiber.Ctx) (*models.Monitor, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return nil, database.ErrNotFound
	}
	return h.DB.MonitorByID(context.Background(), owner(c).ID, int64(id))
}

// GetMonitor handles GET /api/monitors/:id.
func (h *Handlers) GetMonitor(c *fiber.Ctx) error {
	m, err := h.monitorFromParams(c)
	if errors.Is(err, database.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "monitor not found"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load monitor"})
	}
	return c.JSON(m)
}

// UpdateMonitor handles PUT /api/monitors/:id. The ping token cannot change.
func (h *Handlers) UpdateMonitor(c *fiber.Ctx) error {
	m, err := h.monitorFromParams(c)
	if errors.Is(err, database.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "monitor not found"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load monitor"})
	}

	var req monitorRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	params, msg := req.validate()
	if msg != "" {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": msg})
	}

	ctx := context.Background()
	o := owner(c)
	updated, err := h.DB.UpdateMonitor(ctx, o.ID, m.ID, params)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update monitor"})
	}

	// Toggling is_active shifts the summary counts, so updates invalidate
	// the cached copy just like create and delete do.
	_ = h.Cache.InvalidateSummary(ctx, o.ID)

	return c.JSON(updated)
}

// DeleteMonitor handles DELETE /api/monitors/:id.
func (h *Handlers) DeleteMonitor(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "monitor not found"})
	}

	ctx := context.Background()
	o := owner(c)
	err = h.DB.DeleteMonitor(ctx, o.ID, int64(id))
	if errors.Is(err, database.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "monitor not found"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to delete monitor"})
	}

	_ = h.Cache.InvalidateSummary(ctx, o.ID)
	return c.SendStatus(fiber.StatusNoContent)
}

// GetLogs handles GET /api/monitors/:id/logs (newest first).
func (h *Handlers) GetLogs(c *fiber.Ctx) error {
	m, err := h.monitorFromParams(c)
	if errors.Is(err, database.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "monitor not found"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load monitor"})
	}

	logs, err := h.DB.LogsByMonitor(context.Background(), m.ID, LogsLimit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load logs"})
	}
	if logs == nil {
		logs = make([]*models.PingLog, 0)
	}
	return c.JSON(logs)
}

// GetFailures handles GET /api/monitors/:id/failures (newest first).
func (h *Handlers) GetFailures(c *fiber.Ctx) error {
	m, err := h.monitorFromParams(c)
	if errors.Is(err, database.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "monitor not found"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load monitor"})
	}

	failures, err := h.DB.FailuresByMonitor(context.Background(), m.ID, FailuresLimit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load failures"})
	}
	if failures == nil {
		failures = make([]*models.FailureEpisode, 0)
	}
	return c.JSON(failures)
}
