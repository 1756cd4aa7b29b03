package session

import (
	"sort"

	"github.com/woo850115-hub/project-g/internal/core/ecs"
	"github.com/woo850115-hub/project-g/internal/core/space"
)

// AOITracker remembers, per session, the entity set last reported to the
// client so each tick can ship a minimal entered/moved/left delta.
type AOITracker struct {
	known  map[uint64]map[ecs.EntityID]space.Position
	radius int32
}

func NewAOITracker(radius int32) *AOITracker {
	return &AOITracker{
		known:  make(map[uint64]map[ecs.EntityID]space.Position),
		radius: radius,
	}
}

func (t *AOITracker) Radius() int32 { return t.radius }

// OnPlaying starts tracking a session with an empty reported set.
func (t *AOITracker) OnPlaying(sessionID uint64) {
	t.known[sessionID] = make(map[ecs.EntityID]space.Position)
}

// OnRemoved forgets a session.
func (t *AOITracker) OnRemoved(sessionID uint64) {
	delete(t.known, sessionID)
}

// Known exposes the reported set for tests.
func (t *AOITracker) Known(sessionID uint64) map[ecs.EntityID]space.Position {
	return t.known[sessionID]
}

// Delta computes the per-tick state delta for one session against the grid
// and updates the reported set. nameOf resolves display names for entities
// entering the visible set. Returns nil when the session is untracked or
// its entity is off the grid.
func (t *AOITracker) Delta(grid *space.Grid, self ecs.EntityID, sessionID, tick uint64,
	nameOf func(ecs.EntityID) (string, bool)) *StateDeltaMessage {

	known, tracked := t.known[sessionID]
	if !tracked {
		return nil
	}
	pos, placed := grid.PositionOf(self)
	if !placed {
		return nil
	}

	current := make(map[ecs.EntityID]space.Position)
	visible := grid.EntitiesInRadius(pos.X, pos.Y, t.radius)
	for _, e := range visible {
		if p, ok := grid.PositionOf(e); ok {
			current[e] = p
		}
	}

	msg := &StateDeltaMessage{Type: ServerStateDelta, Tick: tick}

	// Left: reported before, no longer visible. Iterate the sorted current
	// set first for entered/moved, then scan known in sorted order for
	// departures.
	for _, e := range visible {
		p := current[e]
		old, seen := known[e]
		if !seen {
			wire := EntityWire{ID: e.ToUint64(), X: p.X, Y: p.Y, IsSelf: e == self}
			if name, ok := nameOf(e); ok {
				wire.Name = &name
			}
			msg.Entered = append(msg.Entered, wire)
			continue
		}
		if old != p {
			msg.Moved = append(msg.Moved, EntityMovedWire{ID: e.ToUint64(), X: p.X, Y: p.Y})
		}
	}
	for _, e := range sortedKeys(known) {
		if _, still := current[e]; !still {
			msg.Left = append(msg.Left, e.ToUint64())
		}
	}

	t.known[sessionID] = current
	return msg
}

func sortedKeys(m map[ecs.EntityID]space.Position) []ecs.EntityID {
	out := make([]ecs.EntityID, 0, len(m))
	for e := range m {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
