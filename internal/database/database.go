package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a lookup matches no row, including lookups
// scoped to an owner that does not hold the requested monitor.
var ErrNotFound = errors.New("not found")

type DB struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &DB{Pool: pool}, nil
}

func (db *DB) Close() {
	db.Pool.Close()
}

// Migrate creates the schema if it doesn't exist.
func (db *DB) Migrate(ctx context.Context) error {
	sql := `
	CREATE TABLE IF NOT EXISTS owners (
		id         BIGSERIAL PRIMARY KEY,
		api_key    UUID UNIQUE NOT NULL DEFAULT gen_random_uuid(),
		name       TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS monitors (
		id                      BIGSERIAL PRIMARY KEY,
		owner_id                BIGINT NOT NULL REFERENCES owners(id) ON DELETE CASCADE,
		token                   UUID UNIQUE NOT NULL DEFAULT gen_random_uuid(),
		name                    TEXT NOT NULL,
		description             TEXT NOT NULL DEFAULT '',
		url                     TEXT NOT NULL DEFAULT '',
		interval_days           INT NOT NULL DEFAULT 0,
		interval_hours          INT NOT NULL DEFAULT 0,
		interval_minutes        INT NOT NULL DEFAULT 5,
		grace_days              INT NOT NULL DEFAULT 0,
		grace_hours             INT NOT NULL DEFAULT 0,
		grace_minutes           INT NOT NULL DEFAULT 5,
		notify_email            TEXT NOT NULL DEFAULT '',
		notify_webhook          TEXT NOT NULL DEFAULT '',
		notify_telegram         BIGINT NOT NULL DEFAULT 0,
		is_active               BOOLEAN NOT NULL DEFAULT TRUE,
		is_up                   BOOLEAN NOT NULL DEFAULT FALSE,
		last_ping               TIMESTAMPTZ,
		response_time_threshold INT NOT NULL DEFAULT 1000,
		avg_response_time       DOUBLE PRECISION NOT NULL DEFAULT 0,
		min_response_time       DOUBLE PRECISION NOT NULL DEFAULT 0,
		max_response_time       DOUBLE PRECISION NOT NULL DEFAULT 0,
		total_pings             BIGINT NOT NULL DEFAULT 0,
		created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_monitors_token    ON monitors(token);
	CREATE INDEX IF NOT EXISTS idx_monitors_owner_id ON monitors(owner_id);

	CREATE TABLE IF NOT EXISTS ping_logs (
		id            BIGSERIAL PRIMARY KEY,
		monitor_id    BIGINT NOT NULL REFERENCES monitors(id) ON DELETE CASCADE,
		status        BOOLEAN NOT NULL,
		timestamp     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		response_time DOUBLE PRECISION,
		payload       JSONB
	);

	CREATE INDEX IF NOT EXISTS idx_ping_logs_monitor_time
		ON ping_logs (monitor_id, timestamp DESC);

	CREATE TABLE IF NOT EXISTS failure_episodes (
		id                BIGSERIAL PRIMARY KEY,
		monitor_id        BIGINT NOT NULL REFERENCES monitors(id) ON DELETE CASCADE,
		failed_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		notification_sent BOOLEAN NOT NULL DEFAULT FALSE,
		notification_time TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_failure_episodes_monitor_time
		ON failure_episodes (monitor_id, failed_at DESC);

	-- At most one un-notified episode per monitor. RecordPing deletes the
	-- un-notified row on recovery, MarkFailed only runs on up monitors, so
	-- this index is the backstop for the de-duplication invariant.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_failure_episodes_unnotified
		ON failure_episodes (monitor_id) WHERE NOT notification_sent;
	`
	_, err := db.Pool.Exec(ctx, sql)
	return err
}

// notFound maps pgx's no-rows sentinel to the package error.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
