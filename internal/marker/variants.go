package marker

import (
	"strconv"
	"time"

	"github.com/paulmach/orb"

	"placemap/internal/cluster"
	"placemap/internal/domain"
)

type EventType string

const (
	EventClick        EventType = "click"
	EventHoverStart   EventType = "hover_start"
	EventHoverEnd     EventType = "hover_end"
	EventTouchStart   EventType = "touch_start"
	EventTouchEnd     EventType = "touch_end"
	EventDetailsClick EventType = "details"
	EventMemberClick  EventType = "member"
)

// Event is a user interaction on one marker. At is used for touch timing;
// MemberID targets a row inside a cluster list.
type Event struct {
	Type     EventType
	MemberID string
	At       time.Time
}

type ReactionType string

const (
	ReactNone        ReactionType = "none"
	ReactPreview     ReactionType = "preview"
	ReactHidePreview ReactionType = "preview_hide"
	ReactSelect      ReactionType = "select"
	ReactViewDetail  ReactionType = "view_detail"
)

// Reaction tells the UI what the marker did with an event.
type Reaction struct {
	Type     ReactionType
	Key      string
	Preview  *Preview
	Members  []MemberRow
	Location *domain.Location
}

// touchTimer classifies a touch as tap or long press.
type touchTimer struct {
	started time.Time
}

func (t *touchTimer) start(at time.Time) { t.started = at }

// end reports whether the touch that just ended was a long press.
// A touch end without a recorded start is a tap.
func (t *touchTimer) end(at time.Time, longPress time.Duration) bool {
	if t.started.IsZero() {
		return false
	}
	held := at.Sub(t.started)
	t.started = time.Time{}
	return held >= longPress
}

// ---- single pin ----

type SingleMarker struct {
	Location domain.Location
	Position orb.Point
	Selected bool
}

func (m *SingleMarker) Key() string { return m.Location.ID }

func (m *SingleMarker) Render() View {
	return View{
		Key:      m.Key(),
		Kind:     KindSingle,
		Position: m.Position,
		Selected: m.Selected,
		ZIndex:   zIndex(m.Selected),
		Count:    1,
		Label:    m.Location.Name,
		Preview:  previewOf(m.Location),
	}
}

func (m *SingleMarker) Bind(cb Callbacks, longPress time.Duration) Binding {
	return &singleBinding{m: m, cb: cb, longPress: longPress}
}

type singleBinding struct {
	m         *SingleMarker
	cb        Callbacks
	longPress time.Duration
	touch     touchTimer
}

func (b *singleBinding) Handle(ev Event) Reaction {
	key := b.m.Key()
	switch ev.Type {
	case EventHoverStart:
		return Reaction{Type: ReactPreview, Key: key, Preview: previewOf(b.m.Location)}
	case EventHoverEnd:
		return Reaction{Type: ReactHidePreview, Key: key}
	case EventClick:
		return b.selectIt()
	case EventDetailsClick:
		return b.detail()
	case EventTouchStart:
		b.touch.start(ev.At)
		return Reaction{Type: ReactNone, Key: key}
	case EventTouchEnd:
		if b.touch.end(ev.At, b.longPress) {
			return b.detail()
		}
		return b.selectIt()
	}
	return Reaction{Type: ReactNone, Key: key}
}

func (b *singleBinding) selectIt() Reaction {
	loc := b.m.Location
	b.cb.markerClick(loc)
	return Reaction{Type: ReactSelect, Key: b.m.Key(), Location: &loc}
}

func (b *singleBinding) detail() Reaction {
	loc := b.m.Location
	b.cb.viewDetail(loc)
	return Reaction{Type: ReactViewDetail, Key: b.m.Key(), Location: &loc}
}

// ---- cluster badge ----

type ClusterBadgeMarker struct {
	Cluster  cluster.Cluster
	Selected bool
}

func (m *ClusterBadgeMarker) Key() string { return "cluster-" + m.Cluster.ID }

func (m *ClusterBadgeMarker) Render() View {
	return View{
		Key:      m.Key(),
		Kind:     KindCluster,
		Position: m.Cluster.Center,
		Selected: m.Selected,
		ZIndex:   zIndex(m.Selected),
		Count:    m.Cluster.Size(),
		Label:    strconv.Itoa(m.Cluster.Size()),
		Members:  m.members(),
	}
}

func (m *ClusterBadgeMarker) members() []MemberRow {
	rows := make([]MemberRow, 0, len(m.Cluster.Locations))
	for _, l := range m.Cluster.Locations {
		rows = append(rows, MemberRow{
			ID:       l.ID,
			Name:     l.Name,
			Category: l.Category(),
			Rating:   l.Rating,
			ImageURL: l.ImageURL(),
		})
	}
	return rows
}

func (m *ClusterBadgeMarker) member(id string) (domain.Location, bool) {
	for _, l := range m.Cluster.Locations {
		if l.ID == id {
			return l, true
		}
	}
	return domain.Location{}, false
}

func (m *ClusterBadgeMarker) Bind(cb Callbacks, longPress time.Duration) Binding {
	return &clusterBinding{m: m, cb: cb, longPress: longPress}
}

type clusterBinding struct {
	m         *ClusterBadgeMarker
	cb        Callbacks
	longPress time.Duration
	touch     touchTimer
}

func (b *clusterBinding) Handle(ev Event) Reaction {
	key := b.m.Key()
	switch ev.Type {
	case EventHoverStart, EventClick:
		return b.openList()
	case EventHoverEnd:
		return Reaction{Type: ReactHidePreview, Key: key}
	case EventTouchStart:
		b.touch.start(ev.At)
		return Reaction{Type: ReactNone, Key: key}
	case EventTouchEnd:
		// tap and long press both open the member list on a badge
		b.touch.end(ev.At, b.longPress)
		return b.openList()
	case EventMemberClick:
		loc, ok := b.m.member(ev.MemberID)
		if !ok {
			return Reaction{Type: ReactNone, Key: key}
		}
		b.cb.markerClick(loc)
		return Reaction{Type: ReactSelect, Key: key, Location: &loc}
	case EventDetailsClick:
		loc, ok := b.m.member(ev.MemberID)
		if !ok {
			return Reaction{Type: ReactNone, Key: key}
		}
		b.cb.viewDetail(loc)
		return Reaction{Type: ReactViewDetail, Key: key, Location: &loc}
	}
	return Reaction{Type: ReactNone, Key: key}
}

func (b *clusterBinding) openList() Reaction {
	return Reaction{Type: ReactPreview, Key: b.m.Key(), Members: b.m.members()}
}
