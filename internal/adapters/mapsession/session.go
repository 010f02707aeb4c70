package mapsession

import (
	"context"
	"errors"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"placemap/internal/adapters/observability"
	"placemap/internal/cluster"
	"placemap/internal/domain"
	"placemap/internal/marker"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 << 10

	DefaultLoadTimeout = 15 * time.Second
	DefaultSelectZoom  = 15.0
)

var errClosed = errors.New("mapsession: closed")

// Viewer is the read side a session needs.
type Viewer interface {
	Clusters(ctx context.Context, vq domain.ViewportQuery) ([]cluster.Cluster, error)
	GetLocation(ctx context.Context, id string) (domain.Location, error)
}

type Config struct {
	LoadTimeout time.Duration
	LongPress   time.Duration
	// SelectZoom is the minimum zoom the camera flies to on selection.
	SelectZoom float64
}

func (c Config) withDefaults() Config {
	if c.LoadTimeout <= 0 {
		c.LoadTimeout = DefaultLoadTimeout
	}
	if c.LongPress <= 0 {
		c.LongPress = marker.DefaultLongPress
	}
	if c.SelectZoom <= 0 {
		c.SelectZoom = DefaultSelectZoom
	}
	return c
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades /v1/map/ws requests and runs one Session per connection.
type Handler struct {
	v   Viewer
	cfg Config
	log zerolog.Logger
}

func NewHandler(v Viewer, cfg Config, l zerolog.Logger) *Handler {
	return &Handler{v: v, cfg: cfg.withDefaults(), log: l}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	observability.SessionOpened()
	defer observability.SessionClosed()

	s := newSession(conn, h.v, h.cfg, h.log)
	s.Run(context.Background())
}

// Session is one browser map. All marker state for that map lives here.
type Session struct {
	id   string
	conn *websocket.Conn
	v    Viewer
	cfg  Config
	log  zerolog.Logger

	writeMu sync.Mutex
	rmap    *remoteMap
	mgr     *marker.Manager

	// renderMu serializes recompute passes.
	renderMu sync.Mutex

	mu       sync.Mutex
	closed   bool
	attached bool
	booting  bool
	vq       *domain.ViewportQuery
	selected string
	rendered bool
	lastSig  string
	lastSel  string
}

func newSession(conn *websocket.Conn, v Viewer, cfg Config, l zerolog.Logger) *Session {
	id := uuid.NewString()
	s := &Session{
		id:   id,
		conn: conn,
		v:    v,
		cfg:  cfg,
		log:  l.With().Str("session", id).Logger(),
	}
	s.rmap = newRemoteMap(s)
	s.mgr = marker.NewManager(marker.Callbacks{
		OnMarkerClick: s.onMarkerClick,
		OnViewDetail:  s.onViewDetail,
		OnMapClick:    s.onMapClick,
		OnMapMove:     s.onMapMove,
	}, marker.WithLogger(s.log), marker.WithLongPress(cfg.LongPress))
	return s
}

// Run blocks until the connection closes.
func (s *Session) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.shutdown()

	s.log.Info().Msg("map session opened")
	_ = s.send(outbound{Type: msgHello, Session: s.id})

	s.startBoot(ctx)

	s.conn.SetReadLimit(maxMessageSize)
	for {
		var in inbound
		if err := s.conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn().Err(err).Msg("map session read failed")
			}
			return
		}
		s.handle(ctx, in)
	}
}

// startBoot launches boot unless the map is attached or a boot is running.
func (s *Session) startBoot(ctx context.Context) {
	s.mu.Lock()
	if s.closed || s.attached || s.booting {
		s.mu.Unlock()
		return
	}
	s.booting = true
	s.mu.Unlock()
	go s.boot(ctx)
}

// boot waits for the browser map to load, then attaches the marker manager.
// After a load timeout the next load message starts a new boot.
func (s *Session) boot(ctx context.Context) {
	p := &remoteProvider{m: s.rmap, timeout: s.cfg.LoadTimeout}
	m, err := p.Initialize(ctx)
	for err != nil {
		s.mu.Lock()
		// a load that raced the timeout is picked up here, since the
		// handler saw booting still set and did not start another boot
		retry := ctx.Err() == nil && s.rmap.Loaded()
		if !retry {
			s.booting = false
		}
		s.mu.Unlock()
		if !retry {
			if ctx.Err() == nil {
				s.log.Warn().Err(err).Msg("map never loaded")
				s.sendError("map did not load")
			}
			return
		}
		m, err = p.Initialize(ctx)
	}

	s.mu.Lock()
	s.booting = false
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.attached = true
	s.mu.Unlock()

	s.mgr.Attach(m)
	s.recompute(ctx)
}

func (s *Session) shutdown() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	// unmount: drops every marker; sends are no-ops once closed
	s.mgr.Close()
	_ = s.conn.Close()
	s.log.Info().Msg("map session closed")
}

func (s *Session) handle(ctx context.Context, in inbound) {
	switch in.Type {
	case msgLoad:
		s.rmap.markLoaded()
		s.startBoot(ctx)

	case msgMove:
		if in.Zoom == nil || in.Bounds == nil {
			s.sendError("move needs zoom and bounds")
			return
		}
		b := in.Bounds
		vq := domain.ViewportQuery{
			Bounds: &domain.Bounds{West: b[0], South: b[1], East: b[2], North: b[3]},
			Zoom:   *in.Zoom,
		}
		s.mu.Lock()
		s.vq = &vq
		s.mu.Unlock()
		lat, lng := vq.Bounds.Center()
		center := orb.Point{lng, lat}
		if in.Center != nil {
			center = *in.Center
		}
		s.mgr.MapMove(center, vq.Zoom)
		s.recompute(ctx)

	case msgSelect:
		if in.ID == "" {
			s.clearSelection(ctx)
			return
		}
		l, err := s.v.GetLocation(ctx, in.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				s.sendError("unknown location " + in.ID)
				return
			}
			s.log.Error().Err(err).Str("id", in.ID).Msg("select lookup failed")
			s.sendError("lookup failed")
			return
		}
		s.onMarkerClick(l)

	case msgMarker:
		at := time.Now()
		if in.At != nil {
			at = *in.At
		}
		r, err := s.mgr.Dispatch(in.Key, marker.Event{Type: in.Event, MemberID: in.MemberID, At: at})
		if err != nil {
			s.sendError("unknown marker " + in.Key)
			return
		}
		switch r.Type {
		case marker.ReactPreview:
			_ = s.send(outbound{Type: msgPreview, Key: r.Key, Preview: r.Preview, Members: r.Members})
		case marker.ReactHidePreview:
			_ = s.send(outbound{Type: msgPreviewHide, Key: r.Key})
		}

	case msgMapClick:
		p := orb.Point{}
		if in.LngLat != nil {
			p = *in.LngLat
		}
		s.mgr.MapClick(p)

	case msgDataChanged:
		s.recompute(ctx)

	default:
		s.sendError("unknown message type " + in.Type)
	}
}

// recompute clusters the current viewport and re-renders when the result
// or the selection differs from what is on screen.
func (s *Session) recompute(ctx context.Context) {
	s.renderMu.Lock()
	defer s.renderMu.Unlock()

	s.mu.Lock()
	vq, sel, attached, closed := s.vq, s.selected, s.attached, s.closed
	s.mu.Unlock()
	if vq == nil || !attached || closed {
		return
	}

	cs, err := s.v.Clusters(ctx, *vq)
	if err != nil {
		s.log.Error().Err(err).Msg("cluster pass failed")
		s.sendError("cluster pass failed")
		return
	}
	sig := cluster.Signature(cs)

	s.mu.Lock()
	unchanged := s.rendered && sig == s.lastSig && sel == s.lastSel
	s.mu.Unlock()
	if unchanged {
		return
	}

	n := s.mgr.Render(cs, sel)
	s.mu.Lock()
	s.rendered, s.lastSig, s.lastSel = true, sig, sel
	s.mu.Unlock()
	s.log.Debug().Int("clusters", len(cs)).Int("markers", n).Float64("zoom", vq.Zoom).Msg("markers rendered")
}

// ---- callbacks ----

func (s *Session) onMarkerClick(l domain.Location) {
	s.mu.Lock()
	s.selected = l.ID
	zoom := s.cfg.SelectZoom
	if s.vq != nil {
		zoom = math.Max(zoom, s.vq.Zoom)
	}
	s.mu.Unlock()

	_ = s.send(outbound{Type: msgSelected, Location: toOut(l)})
	if err := s.mgr.FlyTo(orb.Point{l.Longitude, l.Latitude}, zoom); err != nil && !errors.Is(err, marker.ErrNotLoaded) {
		s.log.Warn().Err(err).Msg("fly to selection failed")
	}
	s.recompute(context.Background())
}

func (s *Session) onViewDetail(l domain.Location) {
	_ = s.send(outbound{Type: msgViewDetail, Location: toOut(l)})
}

func (s *Session) onMapClick(p orb.Point) {
	s.clearSelection(context.Background())
}

func (s *Session) onMapMove(center orb.Point, zoom float64) {
	s.log.Debug().Float64("lng", center.Lon()).Float64("lat", center.Lat()).Float64("zoom", zoom).Msg("map moved")
}

func (s *Session) clearSelection(ctx context.Context) {
	s.mu.Lock()
	had := s.selected != ""
	s.selected = ""
	s.mu.Unlock()
	_ = s.send(outbound{Type: msgPreviewHide})
	if had {
		s.recompute(ctx)
	}
}

// ---- writes ----

func (s *Session) send(out outbound) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return errClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(out)
}

func (s *Session) sendError(detail string) {
	_ = s.send(outbound{Type: msgError, Detail: detail})
}

func toOut(l domain.Location) *locationOut {
	return &locationOut{
		ID: l.ID, Name: l.Name, Lat: l.Latitude, Lng: l.Longitude,
		Category: l.Category(), Rating: l.Rating, ImageURL: l.ImageURL(),
	}
}
