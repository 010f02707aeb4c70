package marker

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"placemap/internal/adapters/observability"
	"placemap/internal/cluster"
)

var (
	ErrUnknownMarker = errors.New("marker: unknown key")
	ErrNotLoaded     = errors.New("marker: map not loaded")
)

type tracked struct {
	view    View
	handle  Handle
	binding Binding
}

// Manager owns the markers attached to one map. Every Render removes the
// previous pass completely before adding the new one; nothing else may
// touch the registry.
type Manager struct {
	mu        sync.Mutex
	log       zerolog.Logger
	cb        Callbacks
	longPress time.Duration

	m       Map
	closed  bool
	markers map[string]*tracked
}

type Option func(*Manager)

func WithLogger(l zerolog.Logger) Option { return func(m *Manager) { m.log = l } }

func WithLongPress(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.longPress = d
		}
	}
}

func NewManager(cb Callbacks, opts ...Option) *Manager {
	m := &Manager{
		log:       zerolog.Nop(),
		cb:        cb,
		longPress: DefaultLongPress,
		markers:   map[string]*tracked{},
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Attach binds the manager to a loaded map. Markers from a previous map are dropped.
func (mg *Manager) Attach(m Map) {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	if mg.closed {
		return
	}
	mg.removeAllLocked()
	mg.m = m
}

// Close unmounts the manager: all markers go and later renders are no-ops.
func (mg *Manager) Close() {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	mg.removeAllLocked()
	mg.closed = true
	mg.m = nil
}

// Render replaces every tracked marker with one marker per cluster and
// returns the number of live markers. When no loaded map is attached, or
// the manager was closed, it does nothing and returns 0.
func (mg *Manager) Render(clusters []cluster.Cluster, selectedID string) int {
	mg.mu.Lock()
	defer mg.mu.Unlock()

	if mg.closed || mg.m == nil || !mg.m.Loaded() {
		mg.log.Debug().Int("clusters", len(clusters)).Msg("map not ready, skipping marker render")
		return 0
	}

	mg.removeAllLocked()

	for _, c := range clusters {
		r := Build(c, selectedID)
		if err := mg.addLocked(r); err != nil {
			mg.log.Warn().Err(err).Str("cluster", c.ID).Msg("marker creation failed")
		}
	}
	return len(mg.markers)
}

func (mg *Manager) addLocked(r Renderable) (err error) {
	key := "?"
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("marker %s: panic: %v", key, p)
		}
	}()
	key = r.Key()
	v := r.Render()

	// a duplicate key replaces the earlier marker rather than leaking it
	if old, ok := mg.markers[key]; ok {
		mg.detachLocked(key, old)
	}

	h, err := mg.m.AddMarker(v)
	if err != nil {
		return fmt.Errorf("add marker %s: %w", key, err)
	}
	mg.markers[key] = &tracked{view: v, handle: h, binding: r.Bind(mg.cb, mg.longPress)}
	observability.AddLiveMarkers(1)
	return nil
}

func (mg *Manager) detachLocked(key string, t *tracked) {
	if err := t.handle.Remove(); err != nil {
		mg.log.Debug().Err(err).Str("key", key).Msg("marker remove failed")
	}
	t.binding = nil
	delete(mg.markers, key)
	observability.AddLiveMarkers(-1)
}

func (mg *Manager) removeAllLocked() {
	for k, t := range mg.markers {
		mg.detachLocked(k, t)
	}
}

// RemoveAll detaches every marker from the map.
func (mg *Manager) RemoveAll() {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	mg.removeAllLocked()
}

func (mg *Manager) HasMarker(key string) bool {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	_, ok := mg.markers[key]
	return ok
}

func (mg *Manager) Len() int {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	return len(mg.markers)
}

// Keys returns the tracked marker keys in sorted order.
func (mg *Manager) Keys() []string {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	out := make([]string, 0, len(mg.markers))
	for k := range mg.markers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Views returns the view-models of the live markers, sorted by key.
func (mg *Manager) Views() []View {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	out := make([]View, 0, len(mg.markers))
	for _, t := range mg.markers {
		out = append(out, t.view)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Dispatch routes a UI event to the marker registered under key.
// Events for markers from an earlier pass return ErrUnknownMarker.
func (mg *Manager) Dispatch(key string, ev Event) (Reaction, error) {
	mg.mu.Lock()
	t, ok := mg.markers[key]
	var b Binding
	if ok {
		b = t.binding
	}
	mg.mu.Unlock()

	if !ok || b == nil {
		return Reaction{Type: ReactNone, Key: key}, ErrUnknownMarker
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	// callbacks run outside the lock so they may call back into the manager
	return b.Handle(ev), nil
}

func (mg *Manager) MapClick(p orb.Point) {
	if mg.cb.OnMapClick != nil {
		mg.cb.OnMapClick(p)
	}
}

func (mg *Manager) MapMove(center orb.Point, zoom float64) {
	if mg.cb.OnMapMove != nil {
		mg.cb.OnMapMove(center, zoom)
	}
}

// FlyTo moves the camera of the attached map.
func (mg *Manager) FlyTo(center orb.Point, zoom float64) error {
	mg.mu.Lock()
	m := mg.m
	mg.mu.Unlock()
	if m == nil || !m.Loaded() {
		return ErrNotLoaded
	}
	return m.FlyTo(center, zoom)
}
