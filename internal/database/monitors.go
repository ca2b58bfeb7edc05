package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"pulsewatch/internal/models"
)

const monitorColumns = `id, owner_id, token, name, description, url,
	interval_days, interval_hours, interval_minutes,
	grace_days, grace_hours, grace_minutes,
	notify_email, notify_webhook, notify_telegram,
	is_active, is_up, last_ping,
	response_time_threshold, avg_response_time, min_response_time,
	max_response_time, total_pings, created_at`

func scanMonitor(row pgx.Row) (*models.Monitor, error) {
	var m models.Monitor
	err := row.Scan(
		&m.ID, &m.OwnerID, &m.Token, &m.Name, &m.Description, &m.URL,
		&m.IntervalDays, &m.IntervalHours, &m.IntervalMinutes,
		&m.GraceDays, &m.GraceHours, &m.GraceMinutes,
		&m.NotifyEmail, &m.NotifyWebhook, &m.NotifyTelegram,
		&m.IsActive, &m.IsUp, &m.LastPing,
		&m.ResponseTimeThreshold, &m.AvgResponseTime, &m.MinResponseTime,
		&m.MaxResponseTime, &m.TotalPings, &m.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func collectMonitors(rows pgx.Rows) ([]*models.Monitor, error) {
	defer rows.Close()
	var monitors []*models.Monitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, err
		}
		monitors = append(monitors, m)
	}
	return monitors, rows.Err()
}

// CreateOwner inserts a new owning principal and returns it with the
// generated API key.
func (db *DB) CreateOwner(ctx context.Context, name string) (*models.Owner, error) {
	var o models.Owner
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO owners (name) VALUES ($1)
		RETURNING id, api_key, name, created_at
	`, name).Scan(&o.ID, &o.APIKey, &o.Name, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// OwnerByAPIKey resolves an API key to its owner. A string that is not even
// UUID-shaped cannot match the uuid column and would only trip the codec, so
// it is treated as a miss up front.
func (db *DB) OwnerByAPIKey(ctx context.Context, apiKey string) (*models.Owner, error) {
	if uuid.Validate(apiKey) != nil {
		return nil, ErrNotFound
	}
	var o models.Owner
	err := db.Pool.QueryRow(ctx, `
		SELECT id, api_key, name, created_at FROM owners WHERE api_key = $1
	`, apiKey).Scan(&o.ID, &o.APIKey, &o.Name, &o.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &o, nil
}

// MonitorParams are the owner-editable fields of a monitor. The ping token
// is generated by the store and never updatable.
type MonitorParams struct {
	Name                  string
	Description           string
	URL                   string
	IntervalDays          int
	IntervalHours         int
	IntervalMinutes       int
	GraceDays             int
	GraceHours            int
	GraceMinutes          int
	NotifyEmail           string
	NotifyWebhook         string
	NotifyTelegram        int64
	ResponseTimeThreshold int
	IsActive              bool
}

// CreateMonitor inserts a new monitor and returns it (with generated token).
func (db *DB) CreateMonitor(ctx context.Context, ownerID int64, p MonitorParams) (*models.Monitor, error) {
	row := db.Pool.QueryRow(ctx, `
		INSERT INTO monitors (owner_id, name, description, url,
			interval_days, interval_hours, interval_minutes,
			grace_days, grace_hours, grace_minutes,
			notify_email, notify_webhook, notify_telegram,
			response_time_threshold, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING `+monitorColumns+`
	`, ownerID, p.Name, p.Description, p.URL,
		p.IntervalDays, p.IntervalHours, p.IntervalMinutes,
		p.GraceDays, p.GraceHours, p.GraceMinutes,
		p.NotifyEmail, p.NotifyWebhook, p.NotifyTelegram,
		p.ResponseTimeThreshold, p.IsActive)
	return scanMonitor(row)
}

// MonitorByToken returns a monitor by its unique ping token. Malformed
// tokens are a miss, not a query error.
func (db *DB) MonitorByToken(ctx context.Context, token string) (*models.Monitor, error) {
	if uuid.Validate(token) != nil {
		return nil, ErrNotFound
	}
	row := db.Pool.QueryRow(ctx, `
		SELECT `+monitorColumns+` FROM monitors WHERE token = $1
	`, token)
	return scanMonitor(row)
}

// MonitorByID returns one of the owner's monitors. Another owner's monitor
// yields ErrNotFound, never a leak.
func (db *DB) MonitorByID(ctx context.Context, ownerID, id int64) (*models.Monitor, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT `+monitorColumns+` FROM monitors WHERE id = $1 AND owner_id = $2
	`, id, ownerID)
	return scanMonitor(row)
}

// MonitorsByOwner returns all monitors belonging to the owner, newest first.
func (db *DB) MonitorsByOwner(ctx context.Context, ownerID int64) ([]*models.Monitor, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+monitorColumns+` FROM monitors
		WHERE owner_id = $1 ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	return collectMonitors(rows)
}

// ActiveMonitors returns every monitor with monitoring enabled, for the sweep.
func (db *DB) ActiveMonitors(ctx context.Context) ([]*models.Monitor, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+monitorColumns+` FROM monitors WHERE is_active ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	return collectMonitors(rows)
}

// MonitorsWithURL returns active monitors with a probe target configured.
func (db *DB) MonitorsWithURL(ctx context.Context) ([]*models.Monitor, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+monitorColumns+` FROM monitors
		WHERE is_active AND url != '' ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	return collectMonitors(rows)
}

// UpdateMonitor replaces the owner-editable fields of a monitor.
func (db *DB) UpdateMonitor(ctx context.Context, ownerID, id int64, p MonitorParams) (*models.Monitor, error) {
	row := db.Pool.QueryRow(ctx, `
		UPDATE monitors SET
			name = $3, description = $4, url = $5,
			interval_days = $6, interval_hours = $7, interval_minutes = $8,
			grace_days = $9, grace_hours = $10, grace_minutes = $11,
			notify_email = $12, notify_webhook = $13, notify_telegram = $14,
			response_time_threshold = $15, is_active = $16
		WHERE id = $1 AND owner_id = $2
		RETURNING `+monitorColumns+`
	`, id, ownerID, p.Name, p.Description, p.URL,
		p.IntervalDays, p.IntervalHours, p.IntervalMinutes,
		p.GraceDays, p.GraceHours, p.GraceMinutes,
		p.NotifyEmail, p.NotifyWebhook, p.NotifyTelegram,
		p.ResponseTimeThreshold, p.IsActive)
	return scanMonitor(row)
}

// DeleteMonitor removes one of the owner's monitors; logs and episodes go
// with it via ON DELETE CASCADE.
func (db *DB) DeleteMonitor(ctx context.Context, ownerID, id int64) error {
	tag, err := db.Pool.Exec(ctx, `
		DELETE FROM monitors WHERE id = $1 AND owner_id = $2
	`, id, ownerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
