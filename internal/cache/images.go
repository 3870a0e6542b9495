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

// ImageCache holds at most one static map image per station. Maps rarely
// change, so the freshness window is the longest of the three caches.
type ImageCache struct {
	store  *store.Store
	window time.Duration
}

func NewImageCache(st *store.Store, window time.Duration) *ImageCache {
	return &ImageCache{store: st, window: window}
}

// Lookup returns the cached image for one station if it is within the
// freshness window, or ErrNotCached.
func (c *ImageCache) Lookup(ctx context.Context, stationDBID int64) (*models.MapImage, error) {
	const query = `
		SELECT image_bytes, content_id
		FROM map_image
		WHERE station_id = ?
			AND last_updated >= datetime('now', ?);`

	var image models.MapImage
	err := c.store.WithConn(ctx, func(conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, query, stationDBID, ageModifier(c.window)).
			Scan(&image.Bytes, &image.ContentID)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotCached
	}
	if err != nil {
		return nil, fmt.Errorf("looking up map image for station %d: %w", stationDBID, err)
	}
	return &image, nil
}

// Save upserts the image keyed on station_id, overwriting bytes,
// content id and timestamp.
func (c *ImageCache) Save(ctx context.Context, stationDBID int64, image models.MapImage) error {
	const command = `
		INSERT INTO map_image (station_id, image_bytes, content_id)
		VALUES (?, ?, ?)
		ON CONFLICT (station_id) DO UPDATE SET
			image_bytes = excluded.image_bytes,
			content_id = excluded.content_id,
			last_updated = CURRENT_TIMESTAMP;`

	err := c.store.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, command, stationDBID, image.Bytes, image.ContentID)
		return err
	})
	if err != nil {
		return fmt.Errorf("saving map image for station %d: %w", stationDBID, err)
	}

	log.Debug().Int64("station_db_id", stationDBID).Int("byte_count", len(image.Bytes)).Msg("Saved map image to cache")
	return nil
}
