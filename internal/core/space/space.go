package space

import (
	"errors"
	"fmt"

	"github.com/woo850115-hub/project-g/internal/core/ecs"
)

// Kind discriminates the concrete spatial backends.
type Kind uint8

const (
	KindRoomGraph Kind = iota
	KindGrid
)

func (k Kind) String() string {
	if k == KindGrid {
		return "grid"
	}
	return "rooms"
}

var (
	ErrNotPlaced     = errors.New("entity is not placed anywhere")
	ErrAlreadyPlaced = errors.New("entity is already placed")
	ErrNoSuchRoom    = errors.New("room does not exist")
	ErrNoExit        = errors.New("no exit to target room")
	ErrOutOfBounds   = errors.New("position is out of bounds")
	ErrWrongBackend  = errors.New("operation not supported by this spatial backend")
)

// Model is the contract both backends satisfy. Locations are entity
// handles: real room entities in the room graph, synthetic cell handles on
// the grid.
type Model interface {
	Kind() Kind

	// Place puts an entity at a location unconditionally (initial
	// placement / teleport), subject only to the location existing and the
	// entity not being placed already.
	Place(entity, location ecs.EntityID) error

	// Remove takes the entity out of the space.
	Remove(entity ecs.EntityID) error

	// LocationOf returns the entity's current location handle.
	LocationOf(entity ecs.EntityID) (ecs.EntityID, bool)

	// Occupants lists entities at a location, sorted by handle.
	Occupants(location ecs.EntityID) []ecs.EntityID

	// Move relocates the entity, enforcing the backend's validity rule:
	// a labeled exit in the room graph, adjacency on the grid.
	Move(entity, target ecs.EntityID) error

	// BroadcastSet returns the other entities that should observe the
	// entity's actions, sorted by handle.
	BroadcastSet(entity ecs.EntityID) ([]ecs.EntityID, error)

	// Snapshot serializes the full spatial state as a tagged union.
	Snapshot() Snapshot

	// Restore replaces all state from a snapshot of the matching kind.
	Restore(Snapshot) error
}

// Snapshot is the tagged spatial payload stored inside world snapshots.
type Snapshot struct {
	Kind  Kind
	Rooms []RoomSnapshot
	Grid  *GridSnapshot
}

// RoomSnapshot captures one room: sorted exits and sorted occupants.
type RoomSnapshot struct {
	Room      ecs.EntityID
	Exits     []ExitSnapshot
	Occupants []ecs.EntityID
}

type ExitSnapshot struct {
	Label  string
	Target ecs.EntityID
}

// GridSnapshot captures grid bounds plus every occupied cell.
type GridSnapshot struct {
	Config GridConfig
	Cells  []CellSnapshot
}

type CellSnapshot struct {
	Entity ecs.EntityID
	X, Y   int32
}

func wrongKind(want, got Kind) error {
	return fmt.Errorf("restore %s snapshot into %s backend: %w", got, want, ErrWrongBackend)
}
