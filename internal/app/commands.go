package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"placemap/internal/adapters/observability"
	"placemap/internal/domain"
)

// listGenKey is bumped on every write so cached list pages go stale together.
const listGenKey = "locations:gen"

type ImportService struct {
	places domain.PlacesClient
	cms    domain.CMSClient
	repo   domain.LocationRepository
	cache  domain.Cache
	log    zerolog.Logger
}

// ImportResult counts what one import pass did.
type ImportResult struct {
	Seen     int
	Imported int
	Invalid  int
}

func (r *ImportResult) add(o ImportResult) {
	r.Seen += o.Seen
	r.Imported += o.Imported
	r.Invalid += o.Invalid
}

func NewImportService(p domain.PlacesClient, c domain.CMSClient, r domain.LocationRepository, cache domain.Cache, logger zerolog.Logger) *ImportService {
	return &ImportService{places: p, cms: c, repo: r, cache: cache, log: logger}
}

// ImportNearby pulls one seed area from the places API and upserts every
// record with valid coordinates. 401/403/404 are logged as misses, not errors.
func (s *ImportService) ImportNearby(ctx context.Context, seed domain.Seed) (ImportResult, error) {
	var res ImportResult
	if s.places == nil {
		return res, errors.New("places client not configured")
	}
	ref := fmt.Sprintf("%.5f,%.5f,%d,%s", seed.Lat, seed.Lng, seed.RadiusM, seed.Query)

	recs, err := s.places.Nearby(ctx, seed.Lat, seed.Lng, seed.RadiusM, seed.Query)
	if err != nil {
		if status := missStatus(err); status != 0 {
			_ = s.repo.LogMiss(ctx, domain.SourceFoursquare, ref, status, "nearby")
			observability.ObserveImport(domain.SourceFoursquare, "miss")
			return res, nil
		}
		observability.ObserveImport(domain.SourceFoursquare, "error")
		return res, err
	}

	res, err = s.upsertAll(ctx, domain.SourceFoursquare, recs)
	if err != nil {
		return res, err
	}
	s.log.Info().Str("seed", ref).
		Int("seen", res.Seen).Int("imported", res.Imported).Int("invalid", res.Invalid).
		Msg("nearby import done")
	return res, nil
}

// SyncCMS walks every CMS page and upserts the locations found.
func (s *ImportService) SyncCMS(ctx context.Context, pageSize int) (ImportResult, error) {
	var total ImportResult
	if s.cms == nil {
		return total, errors.New("cms client not configured")
	}
	if pageSize <= 0 {
		pageSize = 100
	}
	for page := 1; ; page++ {
		docs, hasNext, err := s.cms.ListLocations(ctx, page, pageSize)
		if err != nil {
			if status := missStatus(err); status != 0 {
				_ = s.repo.LogMiss(ctx, domain.SourceCMS, fmt.Sprintf("page:%d", page), status, "list")
				observability.ObserveImport(domain.SourceCMS, "miss")
				return total, nil
			}
			observability.ObserveImport(domain.SourceCMS, "error")
			return total, err
		}
		res, err := s.upsertAll(ctx, domain.SourceCMS, docs)
		total.add(res)
		if err != nil {
			return total, err
		}
		if !hasNext || len(docs) == 0 {
			break
		}
	}
	s.log.Info().Int("seen", total.Seen).Int("imported", total.Imported).Int("invalid", total.Invalid).
		Msg("cms sync done")
	return total, nil
}

func (s *ImportService) upsertAll(ctx context.Context, source string, recs []map[string]any) (ImportResult, error) {
	var res ImportResult
	for _, rec := range recs {
		res.Seen++
		l, ok := mapLocation(source, rec)
		if !ok {
			res.Invalid++
			observability.ObserveInvalidCoordinate()
			observability.ObserveImport(source, "invalid")
			s.log.Debug().Str("source", source).Interface("id", rec["id"]).
				Msg("skipping record without id or valid coordinates")
			continue
		}
		if err := s.repo.UpsertLocation(ctx, l); err != nil {
			observability.ObserveImport(source, "error")
			return res, fmt.Errorf("upsert location %s: %w", l.ID, err)
		}
		res.Imported++
		observability.ObserveImport(source, "ok")
		s.invalidateLocation(ctx, l.ID)
	}
	if res.Imported > 0 {
		s.invalidateLists(ctx)
	}
	return res, nil
}

func (s *ImportService) invalidateLocation(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Del(ctx, "location:"+id)
}

func (s *ImportService) invalidateLists(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.Incr(ctx, listGenKey); err != nil {
		s.log.Warn().Err(err).Msg("list cache generation bump failed")
	}
}

func missStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	}
	return 0
}
