package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"placemap/internal/cluster"
	"placemap/internal/domain"
	"placemap/internal/geo"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
	// viewportLimit caps how many points one map pass clusters.
	viewportLimit = 5000
)

type QueryService struct {
	repo     domain.LocationRepository
	cache    domain.Cache
	index    *Index
	cacheTTL time.Duration
	log      zerolog.Logger
}

// NewQueryService wires reads. index may be nil, in which case viewport
// reads go to the repository.
func NewQueryService(r domain.LocationRepository, c domain.Cache, ix *Index, ttl time.Duration, logger zerolog.Logger) *QueryService {
	return &QueryService{repo: r, cache: c, index: ix, cacheTTL: ttl, log: logger}
}

func (s *QueryService) GetLocation(ctx context.Context, id string) (domain.Location, error) {
	key := "location:" + id
	var l domain.Location
	if ok, _ := s.cache.Get(ctx, key, &l); ok {
		return l, nil
	}
	l, err := s.repo.GetLocation(ctx, id)
	if err != nil {
		return domain.Location{}, err
	}
	_ = s.cache.Set(ctx, key, l, int(s.cacheTTL.Seconds()))
	return l, nil
}

func (s *QueryService) ListLocations(ctx context.Context, q domain.LocationsQuery) (domain.LocationsPage, error) {
	q.Limit = clampLimit(q.Limit)
	return s.listPage(ctx, q)
}

// listPage is cache-aside over the repository. q.Limit is used as given.
func (s *QueryService) listPage(ctx context.Context, q domain.LocationsQuery) (domain.LocationsPage, error) {
	key := fmt.Sprintf("locations:%d:%s", s.listGen(ctx), listKey(q))

	var out domain.LocationsPage
	if ok, _ := s.cache.Get(ctx, key, &out); ok {
		return out, nil
	}
	page, err := s.repo.ListLocations(ctx, q)
	if err != nil {
		return domain.LocationsPage{}, err
	}
	page = copyPage(page)
	_ = s.cache.Set(ctx, key, page, int(s.cacheTTL.Seconds()))
	return page, nil
}

// Viewport returns the valid locations visible in vq, at most viewportLimit
// (or vq.Limit when smaller).
func (s *QueryService) Viewport(ctx context.Context, vq domain.ViewportQuery) ([]domain.Location, error) {
	limit := vq.Limit
	if limit <= 0 || limit > viewportLimit {
		limit = viewportLimit
	}

	var locs []domain.Location
	if s.index != nil && s.index.Ready() && vq.Bounds != nil {
		for _, l := range s.index.Search(*vq.Bounds) {
			if vq.Category != nil && !hasCategory(l, *vq.Category) {
				continue
			}
			locs = append(locs, l)
			if len(locs) == limit {
				break
			}
		}
	} else {
		// not ListLocations: its page clamp is far below a map pass
		page, err := s.listPage(ctx, domain.LocationsQuery{
			Bounds:   vq.Bounds,
			Category: vq.Category,
			Limit:    limit,
		})
		if err != nil {
			return nil, err
		}
		locs = page.Items
	}
	if len(locs) == limit {
		s.log.Debug().Int("limit", limit).Float64("zoom", vq.Zoom).Msg("viewport truncated at point cap")
	}
	return geo.FilterValid(locs, s.log), nil
}

// Clusters groups the viewport's locations for vq.Zoom.
func (s *QueryService) Clusters(ctx context.Context, vq domain.ViewportQuery) ([]cluster.Cluster, error) {
	locs, err := s.Viewport(ctx, vq)
	if err != nil {
		return nil, err
	}
	return cluster.Detect(locs, vq.Zoom), nil
}

// Spider lays out the members of clusterID around its center. A cluster id
// that no longer exists at this viewport and zoom is ErrNotFound.
func (s *QueryService) Spider(ctx context.Context, vq domain.ViewportQuery, clusterID string, radiusPx float64) (cluster.Cluster, []cluster.SpiderLeg, error) {
	cs, err := s.Clusters(ctx, vq)
	if err != nil {
		return cluster.Cluster{}, nil, err
	}
	// accept either the cluster id or its marker key
	for _, c := range cs {
		if c.ID == clusterID || "cluster-"+c.ID == clusterID {
			if radiusPx <= 0 {
				radiusPx = cluster.DefaultSpiderRadius
			}
			return c, cluster.SpiderPositions(c, vq.Zoom, radiusPx), nil
		}
	}
	return cluster.Cluster{}, nil, domain.ErrNotFound
}

func (s *QueryService) listGen(ctx context.Context) int64 {
	var gen int64
	if ok, _ := s.cache.Get(ctx, listGenKey, &gen); ok {
		return gen
	}
	return 0
}

func listKey(q domain.LocationsQuery) string {
	var b strings.Builder
	if q.Bounds != nil {
		fmt.Fprintf(&b, "%.5f,%.5f,%.5f,%.5f", q.Bounds.West, q.Bounds.South, q.Bounds.East, q.Bounds.North)
	}
	b.WriteByte('|')
	if q.Category != nil {
		b.WriteString(strings.ToLower(*q.Category))
	}
	b.WriteByte('|')
	if q.Q != nil {
		b.WriteString(strings.ToLower(*q.Q))
	}
	fmt.Fprintf(&b, "|%d", q.Limit)
	return b.String()
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return defaultListLimit
	case n > maxListLimit:
		return maxListLimit
	}
	return n
}

func hasCategory(l domain.Location, cat string) bool {
	for _, c := range l.Categories {
		if strings.EqualFold(c, cat) {
			return true
		}
	}
	return false
}

// copy slice to avoid aliasing the repo's backing array
func copyPage(in domain.LocationsPage) domain.LocationsPage {
	out := domain.LocationsPage{}
	if n := len(in.Items); n > 0 {
		out.Items = make([]domain.Location, n)
		copy(out.Items, in.Items)
	}
	return out
}
