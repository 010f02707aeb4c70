package mapsession

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"placemap/internal/marker"
)

var ErrLoadTimeout = errors.New("mapsession: map did not load in time")

// remoteMap is a marker.Map whose markers live in the browser.
type remoteMap struct {
	s *Session

	mu     sync.Mutex
	loaded bool
	done   chan struct{} // closed on the first load message
}

func newRemoteMap(s *Session) *remoteMap {
	return &remoteMap{s: s, done: make(chan struct{})}
}

func (m *remoteMap) markLoaded() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loaded {
		return
	}
	m.loaded = true
	close(m.done)
}

func (m *remoteMap) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded
}

func (m *remoteMap) AddMarker(v marker.View) (marker.Handle, error) {
	if err := m.s.send(outbound{Type: msgMarkerAdd, Marker: &v}); err != nil {
		return nil, err
	}
	return &remoteHandle{s: m.s, key: v.Key}, nil
}

func (m *remoteMap) FlyTo(center orb.Point, zoom float64) error {
	return m.s.send(outbound{Type: msgFlyTo, Center: &center, Zoom: &zoom})
}

type remoteHandle struct {
	s   *Session
	key string
}

func (h *remoteHandle) SetLngLat(p orb.Point) error {
	return h.s.send(outbound{Type: msgMarkerMove, Key: h.key, Position: &p})
}

func (h *remoteHandle) Remove() error {
	return h.s.send(outbound{Type: msgMarkerRemove, Key: h.key})
}

// remoteProvider waits for the browser's load message.
type remoteProvider struct {
	m       *remoteMap
	timeout time.Duration
}

func (p *remoteProvider) Initialize(ctx context.Context) (marker.Map, error) {
	t := time.NewTimer(p.timeout)
	defer t.Stop()
	select {
	case <-p.m.done:
		return p.m, nil
	case <-t.C:
		return nil, ErrLoadTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
