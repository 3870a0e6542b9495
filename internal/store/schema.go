package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema creation is idempotent: every statement is guarded so two
// processes racing on a cold cache both succeed.
const createScript = `
CREATE TABLE IF NOT EXISTS station (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	external_id  TEXT NOT NULL UNIQUE,
	name         TEXT,
	latitude     REAL,
	longitude    REAL,
	last_updated TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS tide_kind (
	id    INTEGER PRIMARY KEY,
	label TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS tide_event (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	station_id    INTEGER NOT NULL,
	event_time    TEXT NOT NULL,
	kind_id       INTEGER NOT NULL,
	height_inches REAL NOT NULL,
	last_updated  TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (station_id) REFERENCES station (id) ON DELETE CASCADE,
	FOREIGN KEY (kind_id) REFERENCES tide_kind (id),
	UNIQUE (station_id, event_time)
);

CREATE TABLE IF NOT EXISTS map_image (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	station_id   INTEGER NOT NULL UNIQUE,
	image_bytes  BLOB NOT NULL,
	content_id   TEXT NOT NULL,
	last_updated TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (station_id) REFERENCES station (id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_tide_event_station_id ON tide_event (station_id);
CREATE INDEX IF NOT EXISTS idx_tide_event_time ON tide_event (event_time);
CREATE INDEX IF NOT EXISTS idx_tide_event_last_updated ON tide_event (last_updated);
CREATE INDEX IF NOT EXISTS idx_map_image_station_id ON map_image (station_id);
`

const seedScript = `
INSERT OR IGNORE INTO tide_kind (id, label)
VALUES
	(1, 'High'),
	(2, 'Low');
`

func initSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, createScript); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, seedScript); err != nil {
		return fmt.Errorf("seeding tide kinds: %w", err)
	}
	return nil
}
