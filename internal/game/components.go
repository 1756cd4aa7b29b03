package game

import (
	"github.com/woo850115-hub/project-g/internal/core/ecs"
)

// Component ids are part of the snapshot schema: renumbering requires a
// snapshot version bump.
const (
	CompName         ecs.ComponentID = 1
	CompDescription  ecs.ComponentID = 2
	CompHealth       ecs.ComponentID = 3
	CompInventory    ecs.ComponentID = 4
	CompCombatTarget ecs.ComponentID = 5
	CompPlayer       ecs.ComponentID = 6
	CompNPC          ecs.ComponentID = 7
	CompItem         ecs.ComponentID = 8
	CompDead         ecs.ComponentID = 9
)

// Name is an entity's display name.
type Name string

// Description is the long-form text shown on look.
type Description string

// Health tracks hit points.
type Health struct {
	Current int `json:"current"`
	Max     int `json:"max"`
}

// Inventory holds carried item handles.
type Inventory struct {
	Items []ecs.EntityID `json:"items"`
}

// CombatTarget references the entity currently under attack.
type CombatTarget struct {
	Target ecs.EntityID `json:"target"`
}

// Tag is the payload of presence-only marker components.
type Tag struct{}
