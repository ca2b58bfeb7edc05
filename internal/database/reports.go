package database

import (
	"context"
	"time"

	"pulsewatch/internal/models"
)

// SummaryCounts holds the per-owner monitor tallies shown on the dashboard.
type SummaryCounts struct {
	Total  int `json:"total_checks"`
	Active int `json:"active_checks"`
	Up     int `json:"up_checks"`
	Down   int `json:"down_checks"`
}

// Summary computes the owner's monitor counts in one pass.
func (db *DB) Summary(ctx context.Context, ownerID int64) (SummaryCounts, error) {
	var s SummaryCounts
	err := db.Pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE is_active),
		       COUNT(*) FILTER (WHERE is_active AND is_up),
		       COUNT(*) FILTER (WHERE is_active AND NOT is_up)
		FROM monitors WHERE owner_id = $1
	`, ownerID).Scan(&s.Total, &s.Active, &s.Up, &s.Down)
	return s, err
}

// OwnerResponseStats aggregates response-time stats across the owner's
// monitors that have recorded at least one ping. ok=false when none have.
func (db *DB) OwnerResponseStats(ctx context.Context, ownerID int64) (avg, min, max float64, ok bool, err error) {
	var avgP, minP, maxP *float64
	err = db.Pool.QueryRow(ctx, `
		SELECT AVG(avg_response_time), MIN(min_response_time), MAX(max_response_time)
		FROM monitors WHERE owner_id = $1 AND total_pings > 0
	`, ownerID).Scan(&avgP, &minP, &maxP)
	if err != nil || avgP == nil {
		return 0, 0, 0, false, err
	}
	return *avgP, *minP, *maxP, true, nil
}

// LogsSince returns ping logs for the owner's monitors from the given instant
// onward, oldest first. monitorID narrows to one monitor when non-zero.
// The ascending order is what the report's flip counter depends on.
func (db *DB) LogsSince(ctx context.Context, ownerID, monitorID int64, since time.Time) ([]*models.PingLog, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT l.id, l.monitor_id, l.status, l.timestamp, l.response_time, l.payload
		FROM ping_logs l
		JOIN monitors m ON m.id = l.monitor_id
		WHERE m.owner_id = $1
		  AND ($2 = 0 OR l.monitor_id = $2)
		  AND l.timestamp >= $3
		ORDER BY l.timestamp ASC
	`, ownerID, monitorID, since)
	if err != nil {
		return nil, err
	}
	return collectLogs(rows)
}
