package app_test

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"

	"placemap/internal/domain"
)

// ---- fakes ----

type miss struct {
	source, ref string
	status      int
}

type fakeRepo struct {
	mu       sync.Mutex
	locs     map[string]domain.Location
	order    []string
	misses   []miss
	lists    int
	upsertFn func(domain.Location) error
}

func newFakeRepo(locs ...domain.Location) *fakeRepo {
	r := &fakeRepo{locs: map[string]domain.Location{}}
	for _, l := range locs {
		_ = r.UpsertLocation(context.Background(), l)
	}
	return r
}

func (f *fakeRepo) UpsertLocation(ctx context.Context, l domain.Location) error {
	if f.upsertFn != nil {
		if err := f.upsertFn(l); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.locs[l.ID]; !ok {
		f.order = append(f.order, l.ID)
	}
	f.locs[l.ID] = l
	return nil
}

func (f *fakeRepo) LogMiss(ctx context.Context, source, ref string, status int, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.misses = append(f.misses, miss{source: source, ref: ref, status: status})
	return nil
}

func (f *fakeRepo) GetLocation(ctx context.Context, id string) (domain.Location, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.locs[id]
	if !ok {
		return domain.Location{}, domain.ErrNotFound
	}
	return l, nil
}

func (f *fakeRepo) ListLocations(ctx context.Context, q domain.LocationsQuery) (domain.LocationsPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	var out domain.LocationsPage
	for _, id := range f.order {
		l := f.locs[id]
		if q.Bounds != nil && !q.Bounds.Contains(l.Latitude, l.Longitude) {
			continue
		}
		if q.Category != nil && !strings.EqualFold(l.Category(), *q.Category) {
			continue
		}
		out.Items = append(out.Items, l)
		if q.Limit > 0 && len(out.Items) == q.Limit {
			break
		}
	}
	return out, nil
}

// fakeCache stores JSON like the redis adapter does.
type fakeCache struct {
	mu    sync.Mutex
	store map[string][]byte
	dels  []string
}

func newFakeCache() *fakeCache { return &fakeCache{store: map[string][]byte{}} }

func (c *fakeCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.store[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *fakeCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[key] = b
	return nil
}

func (c *fakeCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
	c.dels = append(c.dels, key)
	return nil
}

func (c *fakeCache) Incr(ctx context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	if b, ok := c.store[key]; ok {
		n, _ = strconv.ParseInt(string(b), 10, 64)
	}
	n++
	c.store[key] = []byte(strconv.FormatInt(n, 10))
	return n, nil
}

type fakePlaces struct {
	recs []map[string]any
	err  error
}

func (p *fakePlaces) Nearby(ctx context.Context, lat, lng float64, radiusM int, query string) ([]map[string]any, error) {
	return p.recs, p.err
}

type fakeCMS struct {
	pages [][]map[string]any
	err   error
	calls []int
}

func (c *fakeCMS) ListLocations(ctx context.Context, page, limit int) ([]map[string]any, bool, error) {
	c.calls = append(c.calls, page)
	if c.err != nil {
		return nil, false, c.err
	}
	if page < 1 || page > len(c.pages) {
		return nil, false, nil
	}
	return c.pages[page-1], page < len(c.pages), nil
}

func loc(id string, lat, lng float64, cats ...string) domain.Location {
	return domain.Location{ID: id, Name: id, Latitude: lat, Longitude: lng, Categories: cats}
}

func ptr[T any](v T) *T { return &v }
