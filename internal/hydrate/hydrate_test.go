package hydrate

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seaward/tidereport/internal/cache"
	"github.com/seaward/tidereport/internal/models"
	"github.com/seaward/tidereport/internal/store"
)

type mockMetadataProvider struct {
	stations []models.RemoteStation
	err      error
	calls    atomic.Int32
}

func (m *mockMetadataProvider) FetchAllStations(_ context.Context) ([]models.RemoteStation, error) {
	m.calls.Add(1)
	return m.stations, m.err
}

type mockPredictionProvider struct {
	events []models.TideEvent
	err    error
	calls  atomic.Int32
}

func (m *mockPredictionProvider) FetchPredictions(_ context.Context, _ string) ([]models.TideEvent, error) {
	m.calls.Add(1)
	return m.events, m.err
}

type mockMapProvider struct {
	image []byte
	err   error
	calls atomic.Int32
}

func (m *mockMapProvider) FetchMapImage(_ context.Context, _, _ float64) ([]byte, error) {
	m.calls.Add(1)
	return m.image, m.err
}

type testEnv struct {
	store       *store.Store
	metadata    *cache.MetadataCache
	predictions *cache.PredictionService
	images      *cache.ImageCache
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st := store.New(t.TempDir())
	t.Cleanup(func() {
		_ = st.Close()
	})

	predictionCache := cache.NewPredictionCache(st, 3*time.Hour, 24*time.Hour)
	predictionService, err := cache.NewPredictionService(predictionCache, 16, 15*time.Minute)
	require.NoError(t, err)

	return &testEnv{
		store:       st,
		metadata:    cache.NewMetadataCache(st, 7*24*time.Hour),
		predictions: predictionService,
		images:      cache.NewImageCache(st, 14*24*time.Hour),
	}
}

func (e *testEnv) orchestrator(meta MetadataProvider, pred PredictionProvider, maps MapProvider, opts Options) *Orchestrator {
	o := New(e.metadata, e.predictions, e.images, meta, pred, maps, opts)
	o.newContentID = func(externalID string) string {
		return "<test." + externalID + "@tidereport>"
	}
	return o
}

// todaysEvents builds events dated today so a persistent lookup for
// today's date finds them again.
func todaysEvents() []models.TideEvent {
	now := time.Now()
	return []models.TideEvent{
		{
			EventTime:    time.Date(now.Year(), now.Month(), now.Day(), 4, 12, 0, 0, time.UTC),
			Kind:         models.TideKindHigh,
			HeightInches: 66.0,
		},
		{
			EventTime:    time.Date(now.Year(), now.Month(), now.Day(), 10, 48, 0, 0, time.UTC),
			Kind:         models.TideKindLow,
			HeightInches: -3.6,
		},
	}
}

var sanFrancisco = models.RemoteStation{
	ExternalID: "9414290",
	Name:       "San Francisco",
	Latitude:   37.806,
	Longitude:  -122.465,
}

func TestHydrateColdCache(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	meta := &mockMetadataProvider{stations: []models.RemoteStation{sanFrancisco}}
	pred := &mockPredictionProvider{events: todaysEvents()}
	maps := &mockMapProvider{image: []byte{0x89, 0x50}}

	orchestrator := env.orchestrator(meta, pred, maps, Options{PredictionsFatal: true})

	// Nothing cached for the station before hydration.
	_, err := env.metadata.Lookup(ctx, sanFrancisco.ExternalID)
	require.ErrorIs(t, err, cache.ErrNotCached)

	stations, err := orchestrator.Hydrate(ctx, []Request{{ExternalID: sanFrancisco.ExternalID}})
	require.NoError(t, err)
	require.Len(t, stations, 1)

	got := stations[0]
	assert.Positive(t, got.DBID)
	assert.Equal(t, "San Francisco", got.Name)
	assert.InDelta(t, 37.806, got.Latitude, 1e-9)
	assert.InDelta(t, -122.465, got.Longitude, 1e-9)
	assert.Len(t, got.Tides, 2)
	require.True(t, got.HasImage())
	assert.Equal(t, "<test.9414290@tidereport>", got.MapImage.ContentID)

	assert.Equal(t, int32(1), meta.calls.Load())
	assert.Equal(t, int32(1), pred.calls.Load())
	assert.Equal(t, int32(1), maps.calls.Load())

	// The cached metadata row is now visible directly.
	row, err := env.metadata.Lookup(ctx, sanFrancisco.ExternalID)
	require.NoError(t, err)
	assert.Equal(t, got.DBID, row.DBID)
}

func TestHydrateSecondRunServedFromCache(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	first := env.orchestrator(
		&mockMetadataProvider{stations: []models.RemoteStation{sanFrancisco}},
		&mockPredictionProvider{events: todaysEvents()},
		&mockMapProvider{image: []byte{1}},
		Options{PredictionsFatal: true},
	)
	_, err := first.Hydrate(ctx, []Request{{ExternalID: sanFrancisco.ExternalID}})
	require.NoError(t, err)

	// A separate orchestrator over the same store: every provider call
	// counter must stay at zero.
	meta := &mockMetadataProvider{}
	pred := &mockPredictionProvider{}
	maps := &mockMapProvider{}
	second := env.orchestrator(meta, pred, maps, Options{PredictionsFatal: true})

	stations, err := second.Hydrate(ctx, []Request{{ExternalID: sanFrancisco.ExternalID}})
	require.NoError(t, err)
	require.Len(t, stations, 1)
	assert.Len(t, stations[0].Tides, 2)
	assert.True(t, stations[0].HasImage())

	assert.Equal(t, int32(0), meta.calls.Load())
	assert.Equal(t, int32(0), pred.calls.Load())
	assert.Equal(t, int32(0), maps.calls.Load())
}

func TestHydrateBulkMetadataRefreshOnce(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	boston := models.RemoteStation{ExternalID: "8443970", Name: "Boston", Latitude: 42.354, Longitude: -71.05}
	meta := &mockMetadataProvider{stations: []models.RemoteStation{sanFrancisco, boston}}
	pred := &mockPredictionProvider{events: todaysEvents()}

	orchestrator := env.orchestrator(meta, pred, nil, Options{PredictionsFatal: true, MaxParallel: 2})

	stations, err := orchestrator.Hydrate(context.Background(), []Request{
		{ExternalID: sanFrancisco.ExternalID},
		{ExternalID: boston.ExternalID},
	})
	require.NoError(t, err)
	assert.Len(t, stations, 2)

	// One remote call services metadata for every station in the run.
	assert.Equal(t, int32(1), meta.calls.Load())
	assert.Equal(t, int32(2), pred.calls.Load())
}

func TestHydrateStationNotFound(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	orchestrator := env.orchestrator(
		&mockMetadataProvider{stations: []models.RemoteStation{sanFrancisco}},
		&mockPredictionProvider{events: todaysEvents()},
		nil,
		Options{PredictionsFatal: true},
	)

	_, err := orchestrator.Hydrate(context.Background(), []Request{{ExternalID: "0000000"}})

	var notFound *StationNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "0000000", notFound.ExternalID)
}

func TestHydrateMetadataProviderFailureIsFatal(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	orchestrator := env.orchestrator(
		&mockMetadataProvider{err: errors.New("connection refused")},
		&mockPredictionProvider{},
		nil,
		Options{PredictionsFatal: true},
	)

	_, err := orchestrator.Hydrate(context.Background(), []Request{{ExternalID: sanFrancisco.ExternalID}})

	var provider *ProviderError
	require.ErrorAs(t, err, &provider)
	assert.Equal(t, "metadata", provider.Provider)
}

func TestHydratePredictionFailurePolicy(t *testing.T) {
	t.Parallel()

	t.Run("fatal aborts the run", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		orchestrator := env.orchestrator(
			&mockMetadataProvider{stations: []models.RemoteStation{sanFrancisco}},
			&mockPredictionProvider{err: errors.New("timeout")},
			nil,
			Options{PredictionsFatal: true},
		)

		_, err := orchestrator.Hydrate(context.Background(), []Request{{ExternalID: sanFrancisco.ExternalID}})

		var provider *ProviderError
		require.ErrorAs(t, err, &provider)
		assert.Equal(t, "predictions", provider.Provider)
		assert.Equal(t, sanFrancisco.ExternalID, provider.ExternalID)
	})

	t.Run("non-fatal drops the station and continues", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		orchestrator := env.orchestrator(
			&mockMetadataProvider{stations: []models.RemoteStation{sanFrancisco}},
			&mockPredictionProvider{err: errors.New("timeout")},
			nil,
			Options{PredictionsFatal: false},
		)

		stations, err := orchestrator.Hydrate(context.Background(), []Request{{ExternalID: sanFrancisco.ExternalID}})
		require.NoError(t, err)
		assert.Empty(t, stations)
	})
}

func TestHydrateImageFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	maps := &mockMapProvider{err: errors.New("quota exceeded")}
	orchestrator := env.orchestrator(
		&mockMetadataProvider{stations: []models.RemoteStation{sanFrancisco}},
		&mockPredictionProvider{events: todaysEvents()},
		maps,
		Options{PredictionsFatal: true},
	)

	stations, err := orchestrator.Hydrate(context.Background(), []Request{{ExternalID: sanFrancisco.ExternalID}})
	require.NoError(t, err)
	require.Len(t, stations, 1)

	assert.False(t, stations[0].HasImage())
	assert.Len(t, stations[0].Tides, 2)
	assert.Equal(t, int32(1), maps.calls.Load())
}

func TestHydrateWithoutMapProvider(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	orchestrator := env.orchestrator(
		&mockMetadataProvider{stations: []models.RemoteStation{sanFrancisco}},
		&mockPredictionProvider{events: todaysEvents()},
		nil,
		Options{PredictionsFatal: true},
	)

	stations, err := orchestrator.Hydrate(context.Background(), []Request{{ExternalID: sanFrancisco.ExternalID}})
	require.NoError(t, err)
	require.Len(t, stations, 1)
	assert.False(t, stations[0].HasImage())
}

func TestHydrateNameHintOverridesProviderName(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	orchestrator := env.orchestrator(
		&mockMetadataProvider{stations: []models.RemoteStation{sanFrancisco}},
		&mockPredictionProvider{events: todaysEvents()},
		nil,
		Options{PredictionsFatal: true},
	)

	station, err := orchestrator.HydrateStation(context.Background(), sanFrancisco.ExternalID, "Home Port")
	require.NoError(t, err)
	assert.Equal(t, "Home Port", station.Name)
}

func TestStageString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "requested", StageRequested.String())
	assert.Equal(t, "metadata_resolved", StageMetadataResolved.String())
	assert.Equal(t, "predictions_resolved", StagePredictionsResolved.String())
	assert.Equal(t, "image_resolved", StageImageResolved.String())
	assert.Equal(t, "ready", StageReady.String())
	assert.Equal(t, "error", StageError.String())
}
