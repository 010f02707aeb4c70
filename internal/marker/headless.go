package marker

import (
	"context"
	"sync"

	"github.com/paulmach/orb"
)

// HeadlessMap is an in-memory Map. It keeps the views of attached markers so
// a render pass can be inspected or serialized without a browser.
type HeadlessMap struct {
	mu     sync.Mutex
	views  map[*headlessHandle]View
	Center orb.Point
	Zoom   float64
	loaded bool
}

func NewHeadlessMap() *HeadlessMap {
	return &HeadlessMap{views: map[*headlessHandle]View{}, loaded: true}
}

func (h *HeadlessMap) Loaded() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loaded
}

// SetLoaded flips the loaded signal; used to model a map that is still booting.
func (h *HeadlessMap) SetLoaded(v bool) {
	h.mu.Lock()
	h.loaded = v
	h.mu.Unlock()
}

func (h *HeadlessMap) AddMarker(v View) (Handle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	hd := &headlessHandle{m: h}
	h.views[hd] = v
	return hd, nil
}

func (h *HeadlessMap) FlyTo(center orb.Point, zoom float64) error {
	h.mu.Lock()
	h.Center, h.Zoom = center, zoom
	h.mu.Unlock()
	return nil
}

// Count is the number of markers currently attached.
func (h *HeadlessMap) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.views)
}

// Views returns the attached markers in no particular order.
func (h *HeadlessMap) Views() []View {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]View, 0, len(h.views))
	for _, v := range h.views {
		out = append(out, v)
	}
	return out
}

type headlessHandle struct{ m *HeadlessMap }

func (hd *headlessHandle) SetLngLat(p orb.Point) error {
	hd.m.mu.Lock()
	defer hd.m.mu.Unlock()
	if v, ok := hd.m.views[hd]; ok {
		v.Position = p
		hd.m.views[hd] = v
	}
	return nil
}

func (hd *headlessHandle) Remove() error {
	hd.m.mu.Lock()
	delete(hd.m.views, hd)
	hd.m.mu.Unlock()
	return nil
}

// HeadlessProvider hands out a fresh loaded HeadlessMap.
type HeadlessProvider struct{}

func (HeadlessProvider) Initialize(ctx context.Context) (Map, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return NewHeadlessMap(), nil
}
