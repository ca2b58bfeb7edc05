package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"pulsewatch/internal/models"
)

// RecordPing applies one successful ping atomically: the monitor's liveness
// fields and stats aggregate, a status=true log row, and removal of any
// un-notified failure episode (recovery). Episodes that were already
// notified stay behind as history.
func (db *DB) RecordPing(ctx context.Context, monitorID int64, at time.Time, responseMs *float64, payload json.RawMessage, stats models.ResponseStats) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin ping tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE monitors SET
			last_ping = $2, is_up = TRUE,
			avg_response_time = $3, min_response_time = $4,
			max_response_time = $5, total_pings = $6
		WHERE id = $1
	`, monitorID, at, stats.Avg, stats.Min, stats.Max, stats.TotalPings)
	if err != nil {
		return fmt.Errorf("update monitor: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO ping_logs (monitor_id, status, timestamp, response_time, payload)
		VALUES ($1, TRUE, $2, $3, $4)
	`, monitorID, at, responseMs, payload)
	if err != nil {
		return fmt.Errorf("insert ping log: %w", err)
	}

	_, err = tx.Exec(ctx, `
		DELETE FROM failure_episodes WHERE monitor_id = $1 AND NOT notification_sent
	`, monitorID)
	if err != nil {
		return fmt.Errorf("clear unnotified episode: %w", err)
	}

	return tx.Commit(ctx)
}

// MarkFailed transitions a monitor to down atomically. The UPDATE is guarded
// twice: on is_up, so a monitor already down (another sweep instance got
// there first) is left untouched, and on last_ping <= seenPing, so a ping
// that landed after the sweep read its snapshot wins over the stale deadline.
// transitioned=false means the guard held and nothing changed.
func (db *DB) MarkFailed(ctx context.Context, monitorID int64, at, seenPing time.Time) (int64, bool, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("begin failure tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE monitors SET is_up = FALSE
		WHERE id = $1 AND is_up AND last_ping <= $2
	`, monitorID, seenPing)
	if err != nil {
		return 0, false, fmt.Errorf("update monitor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return 0, false, nil
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO ping_logs (monitor_id, status, timestamp) VALUES ($1, FALSE, $2)
	`, monitorID, at)
	if err != nil {
		return 0, false, fmt.Errorf("insert failure log: %w", err)
	}

	var episodeID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO failure_episodes (monitor_id, failed_at) VALUES ($1, $2)
		RETURNING id
	`, monitorID, at).Scan(&episodeID)
	if err != nil {
		return 0, false, fmt.Errorf("insert failure episode: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, false, err
	}
	return episodeID, true, nil
}

func collectLogs(rows pgx.Rows) ([]*models.PingLog, error) {
	defer rows.Close()
	var logs []*models.PingLog
	for rows.Next() {
		var l models.PingLog
		if err := rows.Scan(&l.ID, &l.MonitorID, &l.Status, &l.Timestamp, &l.ResponseTime, &l.Payload); err != nil {
			return nil, err
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}

// LogsByMonitor returns the most recent ping logs for a monitor, newest first.
func (db *DB) LogsByMonitor(ctx context.Context, monitorID int64, limit int) ([]*models.PingLog, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, monitor_id, status, timestamp, response_time, payload
		FROM ping_logs WHERE monitor_id = $1
		ORDER BY timestamp DESC LIMIT $2
	`, monitorID, limit)
	if err != nil {
		return nil, err
	}
	return collectLogs(rows)
}

// LogsInRange returns a monitor's logs within [from, to], oldest first.
func (db *DB) LogsInRange(ctx context.Context, monitorID int64, from, to time.Time) ([]*models.PingLog, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, monitor_id, status, timestamp, response_time, payload
		FROM ping_logs
		WHERE monitor_id = $1 AND timestamp >= $2 AND timestamp <= $3
		ORDER BY timestamp ASC
	`, monitorID, from, to)
	if err != nil {
		return nil, err
	}
	return collectLogs(rows)
}

func collectEpisodes(rows pgx.Rows) ([]*models.FailureEpisode, error) {
	defer rows.Close()
	var episodes []*models.FailureEpisode
	for rows.Next() {
		var e models.FailureEpisode
		if err := rows.Scan(&e.ID, &e.MonitorID, &e.FailedAt, &e.NotificationSent, &e.NotificationTime); err != nil {
			return nil, err
		}
		episodes = append(episodes, &e)
	}
	return episodes, rows.Err()
}

// FailuresByMonitor returns the most recent failure episodes, newest first.
func (db *DB) FailuresByMonitor(ctx context.Context, monitorID int64, limit int) ([]*models.FailureEpisode, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, monitor_id, failed_at, notification_sent, notification_time
		FROM failure_episodes WHERE monitor_id = $1
		ORDER BY failed_at DESC LIMIT $2
	`, monitorID, limit)
	if err != nil {
		return nil, err
	}
	return collectEpisodes(rows)
}

// RecentFailures returns the newest failure episodes across all of an
// owner's monitors.
func (db *DB) RecentFailures(ctx context.Context, ownerID int64, limit int) ([]*models.FailureEpisode, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT e.id, e.monitor_id, e.failed_at, e.notification_sent, e.notification_time
		FROM failure_episodes e
		JOIN monitors m ON m.id = e.monitor_id
		WHERE m.owner_id = $1
		ORDER BY e.failed_at DESC LIMIT $2
	`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	return collectEpisodes(rows)
}

// EpisodeWithMonitor loads a failure episode together with its monitor, for
// notification dispatch.
func (db *DB) EpisodeWithMonitor(ctx context.Context, episodeID int64) (*models.FailureEpisode, *models.Monitor, error) {
	var e models.FailureEpisode
	err := db.Pool.QueryRow(ctx, `
		SELECT id, monitor_id, failed_at, notification_sent, notification_time
		FROM failure_episodes WHERE id = $1
	`, episodeID).Scan(&e.ID, &e.MonitorID, &e.FailedAt, &e.NotificationSent, &e.NotificationTime)
	if err != nil {
		return nil, nil, notFound(err)
	}

	m, err := scanMonitor(db.Pool.QueryRow(ctx, `
		SELECT `+monitorColumns+` FROM monitors WHERE id = $1
	`, e.MonitorID))
	if err != nil {
		return nil, nil, err
	}
	return &e, m, nil
}

// MarkEpisodeNotified flips the episode's sent flag. Monotonic: once set it
// is never cleared.
func (db *DB) MarkEpisodeNotified(ctx context.Context, episodeID int64, at time.Time) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE failure_episodes SET notification_sent = TRUE, notification_time = $2
		WHERE id = $1
	`, episodeID, at)
	return err
}

// PurgeOldLogs deletes ping logs older than the cutoff and reports how many
// rows went away.
func (db *DB) PurgeOldLogs(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `
		DELETE FROM ping_logs WHERE timestamp < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
