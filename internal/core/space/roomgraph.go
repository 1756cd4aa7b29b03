package space

import (
	"fmt"
	"sort"

	"github.com/woo850115-hub/project-g/internal/core/ecs"
)

// Cardinal exit labels. Custom labels are arbitrary non-empty strings.
const (
	ExitNorth = "north"
	ExitSouth = "south"
	ExitEast  = "east"
	ExitWest  = "west"
)

// RoomGraph is the MUD spatial backend: a directed multigraph whose nodes
// are room entities and whose edges are labeled exits.
type RoomGraph struct {
	exits      map[ecs.EntityID]map[string]ecs.EntityID
	occupants  map[ecs.EntityID]map[ecs.EntityID]struct{}
	entityRoom map[ecs.EntityID]ecs.EntityID
}

func NewRoomGraph() *RoomGraph {
	return &RoomGraph{
		exits:      make(map[ecs.EntityID]map[string]ecs.EntityID),
		occupants:  make(map[ecs.EntityID]map[ecs.EntityID]struct{}),
		entityRoom: make(map[ecs.EntityID]ecs.EntityID),
	}
}

func (g *RoomGraph) Kind() Kind { return KindRoomGraph }

// RegisterRoom makes a room known to the graph. Registering twice is
// harmless and keeps existing exits.
func (g *RoomGraph) RegisterRoom(room ecs.EntityID) {
	if _, ok := g.occupants[room]; !ok {
		g.occupants[room] = make(map[ecs.EntityID]struct{})
	}
	if _, ok := g.exits[room]; !ok {
		g.exits[room] = make(map[string]ecs.EntityID)
	}
}

func (g *RoomGraph) RoomExists(room ecs.EntityID) bool {
	_, ok := g.occupants[room]
	return ok
}

func (g *RoomGraph) RoomCount() int { return len(g.occupants) }

// AllRooms returns registered rooms sorted by handle.
func (g *RoomGraph) AllRooms() []ecs.EntityID {
	rooms := make([]ecs.EntityID, 0, len(g.occupants))
	for r := range g.occupants {
		rooms = append(rooms, r)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Less(rooms[j]) })
	return rooms
}

// SetExit links from→to under the label. Both rooms must exist.
func (g *RoomGraph) SetExit(from ecs.EntityID, label string, to ecs.EntityID) error {
	if !g.RoomExists(from) {
		return fmt.Errorf("exit %q from %s: %w", label, from, ErrNoSuchRoom)
	}
	if !g.RoomExists(to) {
		return fmt.Errorf("exit %q to %s: %w", label, to, ErrNoSuchRoom)
	}
	g.exits[from][label] = to
	return nil
}

// Exit resolves a single labeled exit.
func (g *RoomGraph) Exit(room ecs.EntityID, label string) (ecs.EntityID, bool) {
	to, ok := g.exits[room][label]
	return to, ok
}

// Exits returns the room's exits sorted by label.
func (g *RoomGraph) Exits(room ecs.EntityID) []ExitSnapshot {
	byLabel := g.exits[room]
	out := make([]ExitSnapshot, 0, len(byLabel))
	for label, to := range byLabel {
		out = append(out, ExitSnapshot{Label: label, Target: to})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

func (g *RoomGraph) Place(entity, room ecs.EntityID) error {
	if _, ok := g.entityRoom[entity]; ok {
		return fmt.Errorf("place %s: %w", entity, ErrAlreadyPlaced)
	}
	if !g.RoomExists(room) {
		return fmt.Errorf("place %s in %s: %w", entity, room, ErrNoSuchRoom)
	}
	g.occupants[room][entity] = struct{}{}
	g.entityRoom[entity] = room
	return nil
}

func (g *RoomGraph) Remove(entity ecs.EntityID) error {
	room, ok := g.entityRoom[entity]
	if !ok {
		return fmt.Errorf("remove %s: %w", entity, ErrNotPlaced)
	}
	delete(g.entityRoom, entity)
	delete(g.occupants[room], entity)
	return nil
}

func (g *RoomGraph) LocationOf(entity ecs.EntityID) (ecs.EntityID, bool) {
	room, ok := g.entityRoom[entity]
	return room, ok
}

func (g *RoomGraph) Occupants(room ecs.EntityID) []ecs.EntityID {
	set := g.occupants[room]
	out := make([]ecs.EntityID, 0, len(set))
	for e := range set {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Move relocates the entity through an exit. The target must be a direct
// successor of the current room under some label; leave-old and enter-new
// happen atomically within the call.
func (g *RoomGraph) Move(entity, target ecs.EntityID) error {
	current, ok := g.entityRoom[entity]
	if !ok {
		return fmt.Errorf("move %s: %w", entity, ErrNotPlaced)
	}
	if !g.RoomExists(target) {
		return fmt.Errorf("move %s to %s: %w", entity, target, ErrNoSuchRoom)
	}
	linked := false
	for _, to := range g.exits[current] {
		if to == target {
			linked = true
			break
		}
	}
	if !linked {
		return fmt.Errorf("move %s from %s to %s: %w", entity, current, target, ErrNoExit)
	}

	delete(g.occupants[current], entity)
	g.occupants[target][entity] = struct{}{}
	g.entityRoom[entity] = target
	return nil
}

// BroadcastSet is every other occupant of the entity's current room.
func (g *RoomGraph) BroadcastSet(entity ecs.EntityID) ([]ecs.EntityID, error) {
	room, ok := g.entityRoom[entity]
	if !ok {
		return nil, fmt.Errorf("broadcast set for %s: %w", entity, ErrNotPlaced)
	}
	all := g.Occupants(room)
	out := all[:0]
	for _, e := range all {
		if e != entity {
			out = append(out, e)
		}
	}
	return out, nil
}

func (g *RoomGraph) Snapshot() Snapshot {
	rooms := make([]RoomSnapshot, 0, len(g.occupants))
	for _, room := range g.AllRooms() {
		snap := RoomSnapshot{Room: room}
		if exits := g.Exits(room); len(exits) > 0 {
			snap.Exits = exits
		}
		if occupants := g.Occupants(room); len(occupants) > 0 {
			snap.Occupants = occupants
		}
		rooms = append(rooms, snap)
	}
	if len(rooms) == 0 {
		rooms = nil
	}
	return Snapshot{Kind: KindRoomGraph, Rooms: rooms}
}

func (g *RoomGraph) Restore(snap Snapshot) error {
	if snap.Kind != KindRoomGraph {
		return wrongKind(KindRoomGraph, snap.Kind)
	}
	g.exits = make(map[ecs.EntityID]map[string]ecs.EntityID)
	g.occupants = make(map[ecs.EntityID]map[ecs.EntityID]struct{})
	g.entityRoom = make(map[ecs.EntityID]ecs.EntityID)

	for _, room := range snap.Rooms {
		g.RegisterRoom(room.Room)
		for _, exit := range room.Exits {
			g.exits[room.Room][exit.Label] = exit.Target
		}
		for _, occ := range room.Occupants {
			g.occupants[room.Room][occ] = struct{}{}
			g.entityRoom[occ] = room.Room
		}
	}
	return nil
}
