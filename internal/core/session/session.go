package session

import (
	"sort"

	"github.com/woo850115-hub/project-g/internal/core/ecs"
)

// State is a session's lifecycle state. Transitions happen only on the
// simulation thread.
type State uint8

const (
	StateConnecting State = iota
	StateAuthenticating
	StateSelecting
	StatePlaying
	StateLingering
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateSelecting:
		return "selecting"
	case StatePlaying:
		return "playing"
	case StateLingering:
		return "lingering"
	default:
		return "closed"
	}
}

// Permission levels, totally ordered.
const (
	PermPlayer  = 0
	PermBuilder = 1
	PermAdmin   = 2
	PermOwner   = 3
)

// Session is one external participant.
type Session struct {
	ID         uint64
	State      State
	Entity     ecs.EntityID
	HasEntity  bool
	Name       string
	Permission int
}

// Lingering is a disconnected player's entity kept in-world for the grace
// interval, awaiting seamless reconnect.
type Lingering struct {
	Entity         ecs.EntityID
	Name           string
	Permission     int
	DisconnectTick uint64
}

// Registry tracks sessions and lingering entities. Owned by the simulation
// thread; ids are assigned monotonically when the network layer does not
// assign them itself.
type Registry struct {
	sessions  map[uint64]*Session
	byEntity  map[ecs.EntityID]uint64
	lingering map[string]Lingering
	nextID    uint64
}

func NewRegistry() *Registry {
	return &Registry{
		sessions:  make(map[uint64]*Session),
		byEntity:  make(map[ecs.EntityID]uint64),
		lingering: make(map[string]Lingering),
	}
}

// Create registers a new session under the next id.
func (r *Registry) Create() *Session {
	id := r.nextID
	r.nextID++
	s := &Session{ID: id, State: StateConnecting}
	r.sessions[id] = s
	return s
}

// CreateWithID registers a session under a network-assigned id.
func (r *Registry) CreateWithID(id uint64) *Session {
	s := &Session{ID: id, State: StateConnecting}
	r.sessions[id] = s
	if id >= r.nextID {
		r.nextID = id + 1
	}
	return s
}

func (r *Registry) Get(id uint64) (*Session, bool) {
	s, ok := r.sessions[id]
	return s, ok
}

// Bind attaches an entity to a session and moves it to playing.
func (r *Registry) Bind(id uint64, entity ecs.EntityID) {
	s, ok := r.sessions[id]
	if !ok {
		return
	}
	s.Entity = entity
	s.HasEntity = true
	s.State = StatePlaying
	r.byEntity[entity] = id
}

// Disconnect detaches the transport. A playing session's entity moves to
// the lingering set keyed by character name; the caller decides when it
// expires. Returns the entity if one was bound.
func (r *Registry) Disconnect(id uint64, tick uint64) (ecs.EntityID, bool) {
	s, ok := r.sessions[id]
	if !ok {
		return ecs.EntityID{}, false
	}
	entity, had := s.Entity, s.HasEntity
	if had {
		delete(r.byEntity, entity)
		if s.Name != "" {
			r.lingering[s.Name] = Lingering{
				Entity:         entity,
				Name:           s.Name,
				Permission:     s.Permission,
				DisconnectTick: tick,
			}
		}
	}
	delete(r.sessions, id)
	return entity, had
}

// Remove drops a session without lingering (pre-play disconnects).
func (r *Registry) Remove(id uint64) {
	if s, ok := r.sessions[id]; ok {
		if s.HasEntity {
			delete(r.byEntity, s.Entity)
		}
		delete(r.sessions, id)
	}
}

// Playing returns playing sessions sorted by id.
func (r *Registry) Playing() []*Session {
	var out []*Session
	for _, s := range r.sessions {
		if s.State == StatePlaying {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) Count() int { return len(r.sessions) }

// FindLingering looks up a lingering entity by character name.
func (r *Registry) FindLingering(name string) (Lingering, bool) {
	l, ok := r.lingering[name]
	return l, ok
}

// RebindLingering reattaches a lingering entity to a fresh session.
func (r *Registry) RebindLingering(id uint64, name string) (ecs.EntityID, bool) {
	l, ok := r.lingering[name]
	if !ok {
		return ecs.EntityID{}, false
	}
	delete(r.lingering, name)
	s, ok := r.sessions[id]
	if !ok {
		return ecs.EntityID{}, false
	}
	s.Name = name
	s.Permission = l.Permission
	r.Bind(id, l.Entity)
	return l.Entity, true
}

// ExpiredLingering returns lingering entries whose grace interval elapsed,
// sorted by character name for deterministic expiry order.
func (r *Registry) ExpiredLingering(tick, graceTicks uint64) []Lingering {
	var out []Lingering
	for _, l := range r.lingering {
		if tick-l.DisconnectTick >= graceTicks {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RemoveLingering drops an entry after expiry handling.
func (r *Registry) RemoveLingering(name string) {
	delete(r.lingering, name)
}

// LingeringCount reports how many entities are awaiting reconnect.
func (r *Registry) LingeringCount() int { return len(r.lingering) }

// script.SessionDirectory implementation.

func (r *Registry) SessionForEntity(entity ecs.EntityID) (uint64, bool) {
	id, ok := r.byEntity[entity]
	return id, ok
}

func (r *Registry) EntityForSession(id uint64) (ecs.EntityID, bool) {
	s, ok := r.sessions[id]
	if !ok || !s.HasEntity {
		return ecs.EntityID{}, false
	}
	return s.Entity, true
}

// ActiveSessions lists non-closed session ids in ascending order.
func (r *Registry) ActiveSessions() []uint64 {
	out := make([]uint64, 0, len(r.sessions))
	for id := range r.sessions {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) PermissionLevel(id uint64) int {
	if s, ok := r.sessions[id]; ok {
		return s.Permission
	}
	return PermPlayer
}
