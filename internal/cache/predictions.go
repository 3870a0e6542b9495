package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/seaward/tidereport/internal/models"
	"github.com/seaward/tidereport/internal/store"
)

const (
	dateLayout      = "2006-01-02"
	eventTimeLayout = "2006-01-02 15:04:05"
)

// PredictionCache holds tide events keyed per (station, calendar date).
// Freshness is per key: predictions for today can be revised, so the
// window is short and a stale row counts as a miss rather than an error.
type PredictionCache struct {
	store     *store.Store
	window    time.Duration
	retention time.Duration
}

func NewPredictionCache(st *store.Store, window, retention time.Duration) *PredictionCache {
	return &PredictionCache{store: st, window: window, retention: retention}
}

// Lookup returns cached events for one station and one calendar date.
// Rows older than the freshness window are filtered out, so an empty
// slice signals a cache miss even when rows exist.
func (c *PredictionCache) Lookup(ctx context.Context, stationDBID int64, date time.Time) ([]models.TideEvent, error) {
	const query = `
		SELECT e.event_time, k.label, e.height_inches
		FROM tide_event e
			JOIN tide_kind k ON k.id = e.kind_id
		WHERE e.station_id = ?
			AND date(e.event_time) = ?
			AND e.last_updated >= datetime('now', ?)
		ORDER BY e.event_time ASC;`

	var events []models.TideEvent
	err := c.store.WithConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, stationDBID, date.Format(dateLayout), ageModifier(c.window))
		if err != nil {
			return err
		}
		defer func() {
			_ = rows.Close()
		}()

		for rows.Next() {
			var (
				timeStr string
				label   string
				height  float64
			)
			if err := rows.Scan(&timeStr, &label, &height); err != nil {
				return err
			}

			eventTime, err := time.Parse(eventTimeLayout, timeStr)
			if err != nil {
				return fmt.Errorf("parsing event time %q: %w", timeStr, err)
			}

			events = append(events, models.TideEvent{
				EventTime:    eventTime,
				Kind:         models.TideKind(label),
				HeightInches: height,
			})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("looking up predictions for station %d: %w", stationDBID, err)
	}
	return events, nil
}

// Save upserts each event keyed on (station_id, event_time), then prunes
// rows past the retention window to bound storage growth.
func (c *PredictionCache) Save(ctx context.Context, stationDBID int64, events []models.TideEvent) error {
	const insertCommand = `
		INSERT INTO tide_event (station_id, event_time, kind_id, height_inches)
		VALUES (?, ?, (SELECT id FROM tide_kind WHERE label = ?), ?)
		ON CONFLICT (station_id, event_time) DO UPDATE SET
			kind_id = excluded.kind_id,
			height_inches = excluded.height_inches,
			last_updated = CURRENT_TIMESTAMP;`

	const pruneCommand = `
		DELETE FROM tide_event
		WHERE last_updated < datetime('now', ?);`

	err := c.store.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, insertCommand)
		if err != nil {
			return fmt.Errorf("preparing upsert: %w", err)
		}
		defer func() {
			_ = stmt.Close()
		}()

		for _, event := range events {
			_, err := stmt.ExecContext(ctx,
				stationDBID,
				event.EventTime.Format(eventTimeLayout),
				string(event.Kind),
				event.HeightInches,
			)
			if err != nil {
				return fmt.Errorf("upserting event at %s: %w", event.EventTime.Format(eventTimeLayout), err)
			}
		}

		if _, err := tx.ExecContext(ctx, pruneCommand, ageModifier(c.retention)); err != nil {
			return fmt.Errorf("pruning old events: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving predictions for station %d: %w", stationDBID, err)
	}

	log.Debug().Int64("station_db_id", stationDBID).Int("event_count", len(events)).Msg("Saved predictions to cache")
	return nil
}
