package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"pulsewatch/internal/database"
	"pulsewatch/internal/models"
)

const (
	// RecentFailuresLimit caps the failures shown in the summary.
	RecentFailuresLimit = 5
	// ReportSeriesLimit caps the response-time chart points in a report.
	ReportSeriesLimit = 100
	// DefaultReportDays is the report window when ?days= is absent.
	DefaultReportDays = 7
	// DefaultExportDays is the export window when ?from= is absent.
	DefaultExportDays = 30
)

// Summary handles GET /api/monitors/summary. The response is cached in Redis
// per owner for five minutes; any monitor mutation invalidates it.
func (h *Handlers) Summary(c *fiber.Ctx) error {
	ctx := context.Background()
	o := owner(c)

	if data, ok, err := h.Cache.GetSummary(ctx, o.ID); err == nil && ok {
		c.Set("Content-Type", "application/json")
		return c.Send(data)
	}

	counts, err := h.DB.Summary(ctx, o.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load summary"})
	}

	recent, err := h.DB.RecentFailures(ctx, o.ID, RecentFailuresLimit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load failures"})
	}
	if recent == nil {
		recent = make([]*models.FailureEpisode, 0)
	}

	healthPct := 0.0
	if counts.Active > 0 {
		healthPct = float64(counts.Up) / float64(counts.Active) * 100
	}

	stats := fiber.Map{"avg_response": nil, "min_response": nil, "max_response": nil}
	if avg, min, max, ok, err := h.DB.OwnerResponseStats(ctx, o.ID); err == nil && ok {
		stats = fiber.Map{"avg_response": avg, "min_response": min, "max_response": max}
	}

	summary := fiber.Map{
		"total_checks":        counts.Total,
		"active_checks":       counts.Active,
		"up_checks":           counts.Up,
		"down_checks":         counts.Down,
		"health_percentage":   healthPct,
		"recent_failures":     recent,
		"response_time_stats": stats,
	}

	data, err := json.Marshal(summary)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "marshal error"})
	}

	// A failed cache write just means the next request recomputes.
	_ = h.Cache.SetSummary(ctx, o.ID, data)

	c.Set("Content-Type", "application/json")
	return c.Send(data)
}

// Reports handles GET /api/reports?days=N&check_id=M: windowed uptime, a
// response-time series, and the count of UP→DOWN transitions observed in the
// ordered logs.
func (h *Handlers) Reports(c *fiber.Ctx) error {
	ctx := context.Background()
	o := owner(c)

	days := DefaultReportDays
	if v := c.Query("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			days = n
		}
	}
	since := time.Now().AddDate(0, 0, -days)

	var checkID int64
	counts, err := h.DB.Summary(ctx, o.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load summary"})
	}
	if v := c.Query("check_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "monitor not found"})
		}
		m, err := h.DB.MonitorByID(ctx, o.ID, id)
		if errors.Is(err, database.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "monitor not found"})
		}
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load monitor"})
		}
		checkID = m.ID

		// Narrow the counts to the one monitor under report.
		counts = database.SummaryCounts{Total: 1}
		if m.IsActive {
			counts.Active = 1
			if m.IsUp {
				counts.Up = 1
			} else {
				counts.Down = 1
			}
		}
	}

	logs, err := h.DB.LogsSince(ctx, o.ID, checkID, since)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load logs"})
	}

	uptimePct := 0.0
	if counts.Active > 0 {
		uptimePct = float64(counts.Up) / float64(counts.Active) * 100
	}

	series, stats := responseTimeSeries(logs)
	return c.JSON(fiber.Map{
		"uptime_percentage":   uptimePct,
		"response_time_data":  series,
		"response_time_stats": stats,
		"downtime_incidents":  countDownTransitions(logs),
		"total_checks":        counts.Total,
		"active_checks":       counts.Active,
		"up_checks":           counts.Up,
		"down_checks":         counts.Down,
		"period_days":         days,
	})
}

// responseTimeSeries builds the chart points (capped) and the window's
// response-time aggregate from logs ordered oldest first.
func responseTimeSeries(logs []*models.PingLog) ([]fiber.Map, fiber.Map) {
	series := make([]fiber.Map, 0, ReportSeriesLimit)
	var sum, min, max float64
	var n int

	for _, l := range logs {
		if l.ResponseTime == nil {
			continue
		}
		rt := *l.ResponseTime
		if len(series) < ReportSeriesLimit {
			series = append(series, fiber.Map{
				"name":  l.Timestamp.Format("2006-01-02 15:04"),
				"value": rt,
			})
		}
		sum += rt
		if n == 0 || rt < min {
			min = rt
		}
		if n == 0 || rt > max {
			max = rt
		}
		n++
	}

	stats := fiber.Map{"avg_response": nil, "min_response": nil, "max_response": nil}
	if n > 0 {
		stats = fiber.Map{"avg_response": sum / float64(n), "min_response": min, "max_response": max}
	}
	return series, stats
}

// countDownTransitions counts UP→DOWN status flips per monitor in logs
// ordered oldest first.
func countDownTransitions(logs []*models.PingLog) int {
	prev := make(map[int64]bool)
	incidents := 0
	for _, l := range logs {
		if was, seen := prev[l.MonitorID]; seen && was && !l.Status {
			incidents++
		}
		prev[l.MonitorID] = l.Status
	}
	return incidents
}

// Export handles GET /api/export?from=YYYY-MM-DD&to=YYYY-MM-DD: the owner's
// monitors with their logs inside the inclusive date range.
func (h *Handlers) Export(c *fiber.Ctx) error {
	ctx := context.Background()
	o := owner(c)

	now := time.Now()
	from := now.AddDate(0, 0, -DefaultExportDays)
	to := now

	if v := c.Query("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid date format, use YYYY-MM-DD"})
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid date format, use YYYY-MM-DD"})
		}
		to = t
	}

	// Make the range inclusive of the whole end day.
	from = from.Truncate(24 * time.Hour)
	to = to.Truncate(24 * time.Hour).AddDate(0, 0, 1).Add(-time.Nanosecond)

	monitors, err := h.DB.MonitorsByOwner(ctx, o.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load monitors"})
	}

	checks := make([]fiber.Map, 0, len(monitors))
	for _, m := range monitors {
		logs, err := h.DB.LogsInRange(ctx, m.ID, from, to)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load logs"})
		}
		if logs == nil {
			logs = make([]*models.PingLog, 0)
		}
		checks = append(checks, fiber.Map{
			"monitor": m,
			"logs":    logs,
		})
	}

	return c.JSON(fiber.Map{
		"monitors":    checks,
		"export_date": now.Format(time.RFC3339),
		"owner":       o.Name,
		"period": fiber.Map{
			"from": from.Format(time.RFC3339),
			"to":   to.Format(time.RFC3339),
		},
	})
}
