package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/seaward/tidereport/internal/models"
	"github.com/seaward/tidereport/internal/store"
)

// ErrNotCached is returned by lookups when no row exists for the key.
// It is a cache miss, not a failure.
var ErrNotCached = errors.New("not cached")

// ageModifier renders a freshness window as a sqlite datetime modifier,
// e.g. 3h -> "-10800 seconds".
func ageModifier(window time.Duration) string {
	return fmt.Sprintf("-%d seconds", int64(window/time.Second))
}

// CachedStation is a station metadata row read back from the store.
type CachedStation struct {
	DBID      int64
	Name      string
	Latitude  float64
	Longitude float64
}

// MetadataCache holds station identity and location. Freshness is
// global: the remote provider returns the full station list in one call,
// so all metadata goes stale together and is refreshed in bulk.
type MetadataCache struct {
	store  *store.Store
	window time.Duration
}

func NewMetadataCache(st *store.Store, window time.Duration) *MetadataCache {
	return &MetadataCache{store: st, window: window}
}

// IsFresh reports whether at least one station row was written within
// the freshness window.
func (c *MetadataCache) IsFresh(ctx context.Context) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1
			FROM station
			WHERE last_updated >= datetime('now', ?)
		);`

	var fresh bool
	err := c.store.WithConn(ctx, func(conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, query, ageModifier(c.window)).Scan(&fresh)
	})
	if err != nil {
		return false, fmt.Errorf("checking metadata freshness: %w", err)
	}
	return fresh, nil
}

// Lookup returns the cached row for one external id, regardless of the
// global freshness flag. Callers consult IsFresh separately before
// trusting the row as authoritative.
func (c *MetadataCache) Lookup(ctx context.Context, externalID string) (*CachedStation, error) {
	const query = `
		SELECT id, name, latitude, longitude
		FROM station
		WHERE external_id = ?;`

	var row CachedStation
	err := c.store.WithConn(ctx, func(conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, query, externalID).
			Scan(&row.DBID, &row.Name, &row.Latitude, &row.Longitude)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotCached
	}
	if err != nil {
		return nil, fmt.Errorf("looking up station %s: %w", externalID, err)
	}
	return &row, nil
}

// RefreshAll bulk-upserts the entire remote station list in one
// transaction. On a duplicate external id the name and coordinates are
// overwritten and the timestamp reset; the surrogate id is never touched.
func (c *MetadataCache) RefreshAll(ctx context.Context, stations []models.RemoteStation) error {
	const command = `
		INSERT INTO station (external_id, name, latitude, longitude)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (external_id) DO UPDATE SET
			name = excluded.name,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			last_updated = CURRENT_TIMESTAMP;`

	err := c.store.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, command)
		if err != nil {
			return fmt.Errorf("preparing upsert: %w", err)
		}
		defer func() {
			_ = stmt.Close()
		}()

		for _, s := range stations {
			if _, err := stmt.ExecContext(ctx, s.ExternalID, s.Name, s.Latitude, s.Longitude); err != nil {
				return fmt.Errorf("upserting station %s: %w", s.ExternalID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("refreshing station metadata: %w", err)
	}

	log.Debug().Int("station_count", len(stations)).Msg("Refreshed station metadata cache")
	return nil
}
