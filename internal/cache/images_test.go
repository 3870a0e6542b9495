package cache

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seaward/tidereport/internal/models"
)

func TestImageSaveAndLookup(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	images := NewImageCache(st, 14*24*time.Hour)
	ctx := context.Background()

	dbID := seedStation(t, st, "9414290")

	_, err := images.Lookup(ctx, dbID)
	assert.ErrorIs(t, err, ErrNotCached)

	want := models.MapImage{Bytes: []byte{0x89, 0x50, 0x4e, 0x47}, ContentID: "<abc@tidereport>"}
	require.NoError(t, images.Save(ctx, dbID, want))

	got, err := images.Lookup(ctx, dbID)
	require.NoError(t, err)
	assert.Equal(t, want, *got)
}

func TestImageUpsertKeepsSingleRow(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	images := NewImageCache(st, 14*24*time.Hour)
	ctx := context.Background()

	dbID := seedStation(t, st, "9414290")

	require.NoError(t, images.Save(ctx, dbID, models.MapImage{Bytes: []byte{1}, ContentID: "<one@tidereport>"}))
	require.NoError(t, images.Save(ctx, dbID, models.MapImage{Bytes: []byte{2}, ContentID: "<two@tidereport>"}))

	got, err := images.Lookup(ctx, dbID)
	require.NoError(t, err)
	assert.Equal(t, []byte{2}, got.Bytes)
	assert.Equal(t, "<two@tidereport>", got.ContentID)

	var count int
	err = st.WithConn(ctx, func(conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM map_image").Scan(&count)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestImageStaleRowIsAMiss(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	images := NewImageCache(st, 14*24*time.Hour)
	ctx := context.Background()

	dbID := seedStation(t, st, "9414290")
	require.NoError(t, images.Save(ctx, dbID, models.MapImage{Bytes: []byte{1}, ContentID: "<one@tidereport>"}))

	err := st.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"UPDATE map_image SET last_updated = datetime('now', '-14 days', '-1 second')")
		return err
	})
	require.NoError(t, err)

	_, err = images.Lookup(ctx, dbID)
	assert.ErrorIs(t, err, ErrNotCached)
}
