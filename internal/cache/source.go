package cache

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-bcat/internal/bcat"
	"github.com/joeblew999/plat-bcat/internal/logger"
	"github.com/joeblew999/plat-bcat/internal/metrics"
)

// Source wraps a bcat.Source with a Store.
type Source struct {
	next    bcat.Source
	store   Store
	ttl     time.Duration
	log     *zerolog.Logger
	metrics *metrics.Provider
}

func NewSource(next bcat.Source, store Store, ttl time.Duration, log *zerolog.Logger, m *metrics.Provider) *Source {
	return &Source{next: next, store: store, ttl: ttl, log: log, metrics: m}
}

// Key is stable for a dataset and normalized region.
func Key(q bcat.Query) string {
	h := xxhash.New()
	_, _ = h.WriteString(string(q.Dataset))
	_, _ = h.WriteString("|")
	_, _ = h.WriteString(q.Normalize().RegionCode)
	return "bcat:fc:" + hex.EncodeToString(h.Sum(nil))
}

func (s *Source) FeatureCollection(ctx context.Context, q bcat.Query) (*geojson.FeatureCollection, error) {
	q = q.Normalize()
	if q.BypassCache || s.store == nil {
		s.metrics.ObserveCache(s.backend(), "bypass")
		return s.next.FeatureCollection(ctx, q)
	}

	log := logger.FromContext(ctx, s.log)
	key := Key(q)

	raw, ok, err := s.store.Get(ctx, key)
	switch {
	case err != nil:
		s.metrics.ObserveCache(s.backend(), "error")
		log.Warn().Err(err).Str("key", key).Msg("cache get failed")
	case ok:
		fc, derr := geojson.UnmarshalFeatureCollection(raw)
		if derr == nil {
			s.metrics.ObserveCache(s.backend(), "hit")
			return fc, nil
		}
		log.Warn().Err(derr).Str("key", key).Msg("cached collection undecodable")
	default:
		s.metrics.ObserveCache(s.backend(), "miss")
	}

	fc, err := s.next.FeatureCollection(ctx, q)
	if err != nil {
		return nil, err
	}
	if enc, merr := fc.MarshalJSON(); merr == nil {
		if serr := s.store.Set(ctx, key, enc, s.ttl); serr != nil {
			log.Warn().Err(serr).Str("key", key).Msg("cache set failed")
		}
	}
	return fc, nil
}

func (s *Source) backend() string {
	if s.store == nil {
		return "none"
	}
	return s.store.Name()
}
