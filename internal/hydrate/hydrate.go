package hydrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/seaward/tidereport/internal/cache"
	"github.com/seaward/tidereport/internal/models"
)

// MetadataProvider returns the full station list in a single call.
type MetadataProvider interface {
	FetchAllStations(ctx context.Context) ([]models.RemoteStation, error)
}

// PredictionProvider returns today's tide events for one station.
type PredictionProvider interface {
	FetchPredictions(ctx context.Context, externalID string) ([]models.TideEvent, error)
}

// MapProvider returns a static map image for one coordinate pair.
type MapProvider interface {
	FetchMapImage(ctx context.Context, latitude, longitude float64) ([]byte, error)
}

// Request names one station to hydrate. NameHint, when set, overrides
// the provider's station name in the assembled record.
type Request struct {
	ExternalID string
	NameHint   string
}

// Stage tracks how far a station has progressed through hydration.
// Metadata and predictions are fatal stages; the image stage degrades to
// Ready without an image.
type Stage int

const (
	StageRequested Stage = iota
	StageMetadataResolved
	StagePredictionsResolved
	StageImageResolved
	StageReady
	StageError
)

func (s Stage) String() string {
	switch s {
	case StageRequested:
		return "requested"
	case StageMetadataResolved:
		return "metadata_resolved"
	case StagePredictionsResolved:
		return "predictions_resolved"
	case StageImageResolved:
		return "image_resolved"
	case StageReady:
		return "ready"
	default:
		return "error"
	}
}

type Options struct {
	// PredictionsFatal aborts the whole run when a prediction fetch
	// fails. When false the station is dropped and the run continues
	// with a partial report.
	PredictionsFatal bool
	// MaxParallel bounds concurrent per-station hydration to respect
	// remote provider rate limits.
	MaxParallel int
	// RemoteTimeout caps every remote call so a hung provider surfaces
	// as a failure instead of blocking the run.
	RemoteTimeout time.Duration
}

// Orchestrator resolves each requested station against the three caches,
// falling back to the remote providers on a miss. Metadata resolves
// first and in bulk; predictions and images need the durable key and
// coordinates it produces.
type Orchestrator struct {
	metadata    *cache.MetadataCache
	predictions *cache.PredictionService
	images      *cache.ImageCache

	metadataProvider   MetadataProvider
	predictionProvider PredictionProvider
	mapProvider        MapProvider

	opts Options
	now  func() time.Time

	// newContentID is swapped out in tests for deterministic ids.
	newContentID func(externalID string) string
}

func New(
	metadata *cache.MetadataCache,
	predictions *cache.PredictionService,
	images *cache.ImageCache,
	metadataProvider MetadataProvider,
	predictionProvider PredictionProvider,
	mapProvider MapProvider,
	opts Options,
) *Orchestrator {
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 4
	}
	if opts.RemoteTimeout <= 0 {
		opts.RemoteTimeout = 10 * time.Second
	}

	return &Orchestrator{
		metadata:           metadata,
		predictions:        predictions,
		images:             images,
		metadataProvider:   metadataProvider,
		predictionProvider: predictionProvider,
		mapProvider:        mapProvider,
		opts:               opts,
		now:                time.Now,
		newContentID:       newContentID,
	}
}

func newContentID(externalID string) string {
	return fmt.Sprintf("<%s.%s@tidereport>", uuid.NewString(), externalID)
}

// Hydrate resolves every requested station. Metadata is refreshed at
// most once per run; the per-station prediction and image stages run
// concurrently under the configured limit. Stations dropped by the
// non-fatal prediction policy are omitted from the result.
func (o *Orchestrator) Hydrate(ctx context.Context, requests []Request) ([]*models.Station, error) {
	if len(requests) == 0 {
		return nil, nil
	}

	if err := o.ensureMetadata(ctx); err != nil {
		return nil, err
	}

	results := make([]*models.Station, len(requests))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.MaxParallel)

	for i, req := range requests {
		i, req := i, req
		g.Go(func() error {
			station, err := o.hydrateOne(gctx, req)
			if err != nil {
				return err
			}
			results[i] = station
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	stations := make([]*models.Station, 0, len(results))
	for _, station := range results {
		if station != nil {
			stations = append(stations, station)
		}
	}
	return stations, nil
}

// HydrateStation resolves a single station.
func (o *Orchestrator) HydrateStation(ctx context.Context, externalID, nameHint string) (*models.Station, error) {
	if err := o.ensureMetadata(ctx); err != nil {
		return nil, err
	}
	return o.hydrateOne(ctx, Request{ExternalID: externalID, NameHint: nameHint})
}

// ensureMetadata refreshes the whole metadata cache from one remote call
// when the global freshness check fails. One call services every
// station in the run.
func (o *Orchestrator) ensureMetadata(ctx context.Context) error {
	fresh, err := o.metadata.IsFresh(ctx)
	if err != nil {
		return err
	}
	if fresh {
		log.Debug().Msg("Cache HIT for station metadata")
		return nil
	}
	log.Debug().Msg("Cache MISS for station metadata, refreshing from provider")

	fetchCtx, cancel := context.WithTimeout(ctx, o.opts.RemoteTimeout)
	defer cancel()

	stations, err := o.metadataProvider.FetchAllStations(fetchCtx)
	if err != nil {
		return &ProviderError{Provider: "metadata", Err: err}
	}

	return o.metadata.RefreshAll(ctx, stations)
}

func (o *Orchestrator) hydrateOne(ctx context.Context, req Request) (*models.Station, error) {
	stage := StageRequested

	station, err := o.resolveMetadata(ctx, req)
	if err != nil {
		o.logFailure(req.ExternalID, stage, err)
		return nil, err
	}
	stage = o.advance(req.ExternalID, StageMetadataResolved)

	fatal, err := o.resolvePredictions(ctx, station)
	if err != nil {
		o.logFailure(req.ExternalID, stage, err)
		if fatal {
			return nil, err
		}
		// Dropped from the report; the rest of the run proceeds.
		return nil, nil
	}
	stage = o.advance(req.ExternalID, StagePredictionsResolved)

	// The image stage never fails the station: a missing illustration
	// must not abort the report. Store write failures still do.
	if err := o.resolveImage(ctx, station); err != nil {
		o.logFailure(req.ExternalID, stage, err)
		return nil, err
	}
	o.advance(req.ExternalID, StageImageResolved)
	o.advance(req.ExternalID, StageReady)

	return station, nil
}

func (o *Orchestrator) resolveMetadata(ctx context.Context, req Request) (*models.Station, error) {
	row, err := o.metadata.Lookup(ctx, req.ExternalID)
	if errors.Is(err, cache.ErrNotCached) {
		return nil, &StationNotFoundError{ExternalID: req.ExternalID}
	}
	if err != nil {
		return nil, err
	}

	name := row.Name
	if req.NameHint != "" {
		name = req.NameHint
	}

	return &models.Station{
		DBID:       row.DBID,
		ExternalID: req.ExternalID,
		Name:       name,
		Latitude:   row.Latitude,
		Longitude:  row.Longitude,
	}, nil
}

// resolvePredictions fills station.Tides from cache or the remote
// provider. The returned bool reports whether the error must abort the
// run: store failures always do, remote failures only under the
// configured policy.
func (o *Orchestrator) resolvePredictions(ctx context.Context, station *models.Station) (bool, error) {
	today := o.now()

	events, err := o.predictions.Lookup(ctx, station.DBID, today)
	if err != nil {
		return true, err
	}

	if len(events) > 0 {
		log.Debug().Str("station_id", station.ExternalID).Msg("Cache HIT for predictions")
		station.Tides = events
		return false, nil
	}
	log.Debug().Str("station_id", station.ExternalID).Msg("Cache MISS for predictions, fetching from provider")

	fetchCtx, cancel := context.WithTimeout(ctx, o.opts.RemoteTimeout)
	defer cancel()

	fetched, err := o.predictionProvider.FetchPredictions(fetchCtx, station.ExternalID)
	if err != nil {
		perr := &ProviderError{Provider: "predictions", ExternalID: station.ExternalID, Err: err}
		return o.opts.PredictionsFatal, perr
	}

	// A cache write failure is not a miss; it surfaces as fatal so no
	// data loss goes unnoticed.
	if err := o.predictions.Save(ctx, station.DBID, today, fetched); err != nil {
		return true, err
	}

	station.Tides = fetched
	return false, nil
}

func (o *Orchestrator) resolveImage(ctx context.Context, station *models.Station) error {
	image, err := o.images.Lookup(ctx, station.DBID)
	if err == nil {
		log.Debug().Str("station_id", station.ExternalID).Msg("Cache HIT for map image")
		station.MapImage = image
		return nil
	}
	if !errors.Is(err, cache.ErrNotCached) {
		return err
	}

	if o.mapProvider == nil {
		log.Debug().Str("station_id", station.ExternalID).Msg("No map provider configured, skipping image")
		return nil
	}
	log.Debug().Str("station_id", station.ExternalID).Msg("Cache MISS for map image, fetching from provider")

	fetchCtx, cancel := context.WithTimeout(ctx, o.opts.RemoteTimeout)
	defer cancel()

	bytes, err := o.mapProvider.FetchMapImage(fetchCtx, station.Latitude, station.Longitude)
	if err != nil || len(bytes) == 0 {
		log.Warn().
			Err(err).
			Str("station_id", station.ExternalID).
			Msg("Map image unavailable, station proceeds without one")
		return nil
	}

	image = &models.MapImage{
		Bytes:     bytes,
		ContentID: o.newContentID(station.ExternalID),
	}

	if err := o.images.Save(ctx, station.DBID, *image); err != nil {
		return err
	}

	station.MapImage = image
	return nil
}

func (o *Orchestrator) advance(externalID string, to Stage) Stage {
	log.Trace().Str("station_id", externalID).Str("stage", to.String()).Msg("Hydration stage reached")
	return to
}

func (o *Orchestrator) logFailure(externalID string, at Stage, err error) {
	log.Error().
		Err(err).
		Str("station_id", externalID).
		Str("stage", at.String()).
		Msg("Hydration failed")
}
