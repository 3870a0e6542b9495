package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"
	"github.com/seaward/tidereport/internal/models"
)

// lruEntry wraps cached events with an in-process expiry.
type lruEntry struct {
	Events    []models.TideEvent
	ExpiresAt time.Time
}

// PredictionService is a two-layer read-through over the prediction
// cache: a small in-process LRU in front of the persistent store, so
// repeated lookups within one run skip the database.
type PredictionService struct {
	lru        *lru.Cache[string, *lruEntry]
	persistent *PredictionCache
	ttl        time.Duration

	lruHits     atomic.Uint64
	lruMisses   atomic.Uint64
	storeHits   atomic.Uint64
	storeMisses atomic.Uint64
}

func NewPredictionService(persistent *PredictionCache, lruSize int, ttl time.Duration) (*PredictionService, error) {
	lruCache, err := lru.New[string, *lruEntry](lruSize)
	if err != nil {
		return nil, fmt.Errorf("creating LRU cache: %w", err)
	}

	return &PredictionService{
		lru:        lruCache,
		persistent: persistent,
		ttl:        ttl,
	}, nil
}

func predictionKey(stationDBID int64, date time.Time) string {
	return fmt.Sprintf("%d:%s", stationDBID, date.Format(dateLayout))
}

// Lookup tries the LRU layer first, then the persistent cache. A hit in
// the persistent layer back-fills the LRU. An empty result is a miss in
// both layers.
func (s *PredictionService) Lookup(ctx context.Context, stationDBID int64, date time.Time) ([]models.TideEvent, error) {
	key := predictionKey(stationDBID, date)

	if entry, ok := s.lru.Get(key); ok {
		if time.Now().Before(entry.ExpiresAt) {
			s.lruHits.Add(1)
			return entry.Events, nil
		}
		s.lru.Remove(key)
	}
	s.lruMisses.Add(1)

	events, err := s.persistent.Lookup(ctx, stationDBID, date)
	if err != nil {
		return nil, err
	}

	if len(events) == 0 {
		s.storeMisses.Add(1)
		return nil, nil
	}

	s.storeHits.Add(1)
	s.lru.Add(key, &lruEntry{
		Events:    events,
		ExpiresAt: time.Now().Add(s.ttl),
	})
	return events, nil
}

// Save writes to both layers.
func (s *PredictionService) Save(ctx context.Context, stationDBID int64, date time.Time, events []models.TideEvent) error {
	if err := s.persistent.Save(ctx, stationDBID, events); err != nil {
		return err
	}

	s.lru.Add(predictionKey(stationDBID, date), &lruEntry{
		Events:    events,
		ExpiresAt: time.Now().Add(s.ttl),
	})
	return nil
}

// Stats returns hit and miss counters for both layers.
func (s *PredictionService) Stats() map[string]uint64 {
	return map[string]uint64{
		"lru_hits":     s.lruHits.Load(),
		"lru_misses":   s.lruMisses.Load(),
		"store_hits":   s.storeHits.Load(),
		"store_misses": s.storeMisses.Load(),
	}
}

// LogStats emits the counters at debug level at the end of a run.
func (s *PredictionService) LogStats() {
	stats := s.Stats()
	log.Debug().
		Uint64("lru_hits", stats["lru_hits"]).
		Uint64("lru_misses", stats["lru_misses"]).
		Uint64("store_hits", stats["store_hits"]).
		Uint64("store_misses", stats["store_misses"]).
		Msg("Prediction cache statistics")
}
