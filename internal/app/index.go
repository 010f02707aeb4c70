package app

import (
	"context"
	"sync"
	"time"

	"github.com/asim/quadtree"
	"github.com/rs/zerolog"

	"placemap/internal/domain"
	"placemap/internal/geo"
)

// indexLoadLimit caps how many rows one refresh pulls from the repository.
const indexLoadLimit = 50_000

// Index is an in-memory quadtree over every stored location with valid
// coordinates. Refresh rebuilds it and swaps it in.
type Index struct {
	repo domain.LocationRepository
	log  zerolog.Logger

	mu    sync.RWMutex
	tree  *quadtree.QuadTree
	count int
	built time.Time
}

func NewIndex(r domain.LocationRepository, logger zerolog.Logger) *Index {
	return &Index{repo: r, log: logger}
}

func newWorldTree() *quadtree.QuadTree {
	center := quadtree.NewPoint(0, 0, nil)
	half := quadtree.NewPoint(90, 180, nil)
	return quadtree.New(quadtree.NewAABB(center, half), 0, nil)
}

// Refresh reloads all locations and rebuilds the tree.
func (ix *Index) Refresh(ctx context.Context) error {
	page, err := ix.repo.ListLocations(ctx, domain.LocationsQuery{Limit: indexLoadLimit})
	if err != nil {
		return err
	}
	ix.Load(page.Items)
	return nil
}

// Load replaces the tree contents with locs. Invalid coordinates are dropped.
func (ix *Index) Load(locs []domain.Location) {
	valid := geo.FilterValid(locs, ix.log)
	tree := newWorldTree()
	for i := range valid {
		l := valid[i]
		tree.Insert(quadtree.NewPoint(l.Latitude, l.Longitude, l))
	}
	ix.mu.Lock()
	ix.tree = tree
	ix.count = len(valid)
	ix.built = time.Now()
	ix.mu.Unlock()
	ix.log.Info().Int("locations", len(valid)).Msg("index rebuilt")
}

// Ready reports whether at least one Load has completed.
func (ix *Index) Ready() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.tree != nil
}

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.count
}

// Search returns the locations inside b. A box crossing the antimeridian
// is searched as two halves.
func (ix *Index) Search(b domain.Bounds) []domain.Location {
	ix.mu.RLock()
	tree := ix.tree
	ix.mu.RUnlock()
	if tree == nil {
		return nil
	}

	boxes := []domain.Bounds{b}
	if b.West > b.East {
		boxes = []domain.Bounds{
			{West: b.West, South: b.South, East: 180, North: b.North},
			{West: -180, South: b.South, East: b.East, North: b.North},
		}
	}

	seen := map[string]struct{}{}
	var out []domain.Location
	for _, box := range boxes {
		center := quadtree.NewPoint((box.South+box.North)/2, (box.West+box.East)/2, nil)
		half := quadtree.NewPoint((box.North-box.South)/2, (box.East-box.West)/2, nil)
		for _, pt := range tree.Search(quadtree.NewAABB(center, half)) {
			l, ok := pt.Data().(domain.Location)
			if !ok || !b.Contains(l.Latitude, l.Longitude) {
				continue
			}
			if _, dup := seen[l.ID]; dup {
				continue
			}
			seen[l.ID] = struct{}{}
			out = append(out, l)
		}
	}
	return out
}

// Run refreshes the index every interval until ctx is done.
func (ix *Index) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := ix.Refresh(ctx); err != nil && ctx.Err() == nil {
				ix.log.Warn().Err(err).Msg("index refresh failed")
			}
		}
	}
}
