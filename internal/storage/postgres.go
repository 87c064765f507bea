package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS device_report (
		report_id   UUID PRIMARY KEY,
		report_name TEXT NOT NULL,
		creator_id  UUID NOT NULL,
		comment     TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL,
		device_id   INTEGER NOT NULL,
		device_type TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS report_media (
		media_id     UUID PRIMARY KEY,
		report_id    UUID NOT NULL REFERENCES device_report (report_id),
		uploaded_by  UUID NOT NULL,
		uploaded_at  TIMESTAMPTZ NOT NULL,
		file_size    INTEGER NOT NULL,
		content_type TEXT NOT NULL
	)`,
	// One artifact per report, enforced where the race actually closes.
	`CREATE UNIQUE INDEX IF NOT EXISTS report_media_report_id_key
		ON report_media (report_id)`,
}

// NewPool connects, pings and prepares the schema.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pg: %w", err)
	}
	for _, statement := range schemaStatements {
		if _, err := pool.Exec(ctx, statement); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
	}
	return pool, nil
}
