package service

import (
	"context"
	"strings"

	"github.com/andresuchdata/vendcast/internal/cache"
	"github.com/andresuchdata/vendcast/internal/pipeline"
	"github.com/rs/zerolog/log"
)

// AdviceReader reads the refill advice tables written by the last run.
type AdviceReader interface {
	ProductAdvice(ctx context.Context, location string) ([]map[string]any, error)
	LocationAdvice(ctx context.Context) ([]map[string]any, error)
}

// RunLister lists recorded forecast runs.
type RunLister interface {
	ListRecent(ctx context.Context, limit int) ([]pipeline.ForecastRun, error)
}

type AdviceService struct {
	reader AdviceReader
	runs   RunLister
	cache  cache.AdviceCache
}

func NewAdviceService(reader AdviceReader, runs RunLister, cacheImpl cache.AdviceCache) *AdviceService {
	if cacheImpl == nil {
		cacheImpl = cache.NewNoopAdviceCache()
	}
	return &AdviceService{reader: reader, runs: runs, cache: cacheImpl}
}

// ProductAdvice returns per-product advice, for one location when given.
func (s *AdviceService) ProductAdvice(ctx context.Context, location string) ([]map[string]any, error) {
	location = strings.TrimSpace(location)
	return s.cached(ctx, cache.KindProducts, location, func() ([]map[string]any, error) {
		return s.reader.ProductAdvice(ctx, location)
	})
}

// LocationAdvice returns per-location advice.
func (s *AdviceService) LocationAdvice(ctx context.Context) ([]map[string]any, error) {
	return s.cached(ctx, cache.KindLocations, "", func() ([]map[string]any, error) {
		return s.reader.LocationAdvice(ctx)
	})
}

// RecentRuns returns the latest forecast runs, newest first.
func (s *AdviceService) RecentRuns(ctx context.Context, limit int) ([]pipeline.ForecastRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.runs.ListRecent(ctx, limit)
}

func (s *AdviceService) cached(ctx context.Context, kind, location string, load func() ([]map[string]any, error)) ([]map[string]any, error) {
	if rows, ok, err := s.cache.Get(ctx, kind, location); err == nil && ok {
		return rows, nil
	} else if err != nil {
		log.Warn().Err(err).Str("kind", kind).Msg("advice: cache get failed")
	}

	rows, err := load()
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, kind, location, rows); err != nil {
		log.Warn().Err(err).Str("kind", kind).Msg("advice: cache set failed")
	}
	return rows, nil
}
