package space

import (
	"fmt"
	"math"
	"sort"

	"github.com/woo850115-hub/project-g/internal/core/ecs"
)

// cellGeneration marks synthetic cell handles. The allocator counts
// generations up from zero, so it can never mint this value for a real
// entity.
const cellGeneration = math.MaxUint32

// GridConfig fixes the bounds of a grid at construction.
type GridConfig struct {
	Width   int32 `yaml:"width"`
	Height  int32 `yaml:"height"`
	OriginX int32 `yaml:"origin_x"`
	OriginY int32 `yaml:"origin_y"`
}

func DefaultGridConfig() GridConfig {
	return GridConfig{Width: 256, Height: 256}
}

// Position is an integer cell coordinate.
type Position struct {
	X, Y int32
}

// CellID packs a cell coordinate into a synthetic entity handle so cells
// can stand in for locations behind the Model interface. Coordinates must
// fit in int16 per axis.
func CellID(x, y int32) ecs.EntityID {
	ux := uint32(int64(x)-math.MinInt16) & 0xFFFF
	uy := uint32(int64(y)-math.MinInt16) & 0xFFFF
	return ecs.NewEntityID(uy<<16|ux, cellGeneration)
}

// CellPos unpacks a synthetic cell handle. Returns false for real entity
// handles.
func CellPos(id ecs.EntityID) (Position, bool) {
	if id.Generation != cellGeneration {
		return Position{}, false
	}
	x := int32(int64(id.Index&0xFFFF) + math.MinInt16)
	y := int32(int64(id.Index>>16&0xFFFF) + math.MinInt16)
	return Position{X: x, Y: y}, true
}

// Grid is the MMO spatial backend: entities on integer cells inside fixed
// bounds with Chebyshev-radius neighborhood queries.
type Grid struct {
	config    GridConfig
	aoiRadius int32
	positions map[ecs.EntityID]Position
	cells     map[Position]map[ecs.EntityID]struct{}
}

func NewGrid(config GridConfig, aoiRadius int32) *Grid {
	return &Grid{
		config:    config,
		aoiRadius: aoiRadius,
		positions: make(map[ecs.EntityID]Position),
		cells:     make(map[Position]map[ecs.EntityID]struct{}),
	}
}

func (g *Grid) Kind() Kind         { return KindGrid }
func (g *Grid) Config() GridConfig { return g.config }
func (g *Grid) AOIRadius() int32   { return g.aoiRadius }

func (g *Grid) InBounds(x, y int32) bool {
	return x >= g.config.OriginX && x < g.config.OriginX+g.config.Width &&
		y >= g.config.OriginY && y < g.config.OriginY+g.config.Height
}

func (g *Grid) PositionOf(entity ecs.EntityID) (Position, bool) {
	pos, ok := g.positions[entity]
	return pos, ok
}

// SetPosition teleports the entity to an arbitrary in-bounds cell, placing
// it if it was not on the grid yet.
func (g *Grid) SetPosition(entity ecs.EntityID, x, y int32) error {
	if !g.InBounds(x, y) {
		return fmt.Errorf("set position (%d, %d): %w", x, y, ErrOutOfBounds)
	}
	g.detach(entity)
	g.attach(entity, Position{X: x, Y: y})
	return nil
}

// MoveBy shifts the entity's cell by (dx, dy), failing on out-of-bounds
// targets.
func (g *Grid) MoveBy(entity ecs.EntityID, dx, dy int32) error {
	pos, ok := g.positions[entity]
	if !ok {
		return fmt.Errorf("move %s: %w", entity, ErrNotPlaced)
	}
	nx, ny := pos.X+dx, pos.Y+dy
	if !g.InBounds(nx, ny) {
		return fmt.Errorf("move %s to (%d, %d): %w", entity, nx, ny, ErrOutOfBounds)
	}
	g.detach(entity)
	g.attach(entity, Position{X: nx, Y: ny})
	return nil
}

// EntitiesInRadius lists entities within Chebyshev distance radius of
// (x, y), the square window of side 2r+1, sorted by handle.
func (g *Grid) EntitiesInRadius(x, y, radius int32) []ecs.EntityID {
	var out []ecs.EntityID
	for pos, set := range g.cells {
		if abs32(pos.X-x) > radius || abs32(pos.Y-y) > radius {
			continue
		}
		for e := range set {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// AllPositions returns every placed entity with its cell, sorted by handle.
func (g *Grid) AllPositions() []CellSnapshot {
	out := make([]CellSnapshot, 0, len(g.positions))
	for e, pos := range g.positions {
		out = append(out, CellSnapshot{Entity: e, X: pos.X, Y: pos.Y})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Entity.Less(out[j].Entity) })
	return out
}

func (g *Grid) EntityCount() int { return len(g.positions) }

// Place puts the entity at the cell encoded in the location handle. Unlike
// Move it performs no adjacency check.
func (g *Grid) Place(entity, location ecs.EntityID) error {
	pos, ok := CellPos(location)
	if !ok {
		return fmt.Errorf("place %s at %s: %w", entity, location, ErrNoSuchRoom)
	}
	if _, placed := g.positions[entity]; placed {
		return fmt.Errorf("place %s: %w", entity, ErrAlreadyPlaced)
	}
	return g.SetPosition(entity, pos.X, pos.Y)
}

func (g *Grid) Remove(entity ecs.EntityID) error {
	if _, ok := g.positions[entity]; !ok {
		return fmt.Errorf("remove %s: %w", entity, ErrNotPlaced)
	}
	g.detach(entity)
	return nil
}

func (g *Grid) LocationOf(entity ecs.EntityID) (ecs.EntityID, bool) {
	pos, ok := g.positions[entity]
	if !ok {
		return ecs.EntityID{}, false
	}
	return CellID(pos.X, pos.Y), true
}

func (g *Grid) Occupants(location ecs.EntityID) []ecs.EntityID {
	pos, ok := CellPos(location)
	if !ok {
		return nil
	}
	set := g.cells[pos]
	out := make([]ecs.EntityID, 0, len(set))
	for e := range set {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Move relocates the entity to an adjacent cell (Chebyshev distance 1).
func (g *Grid) Move(entity, target ecs.EntityID) error {
	pos, ok := CellPos(target)
	if !ok {
		return fmt.Errorf("move %s to %s: %w", entity, target, ErrNoSuchRoom)
	}
	current, placed := g.positions[entity]
	if !placed {
		return fmt.Errorf("move %s: %w", entity, ErrNotPlaced)
	}
	dx, dy := pos.X-current.X, pos.Y-current.Y
	if abs32(dx) > 1 || abs32(dy) > 1 || (dx == 0 && dy == 0) {
		return fmt.Errorf("move %s from (%d, %d) to (%d, %d): %w",
			entity, current.X, current.Y, pos.X, pos.Y, ErrNoExit)
	}
	return g.MoveBy(entity, dx, dy)
}

// BroadcastSet is the neighborhood at the configured area-of-interest
// radius, excluding the entity itself.
func (g *Grid) BroadcastSet(entity ecs.EntityID) ([]ecs.EntityID, error) {
	pos, ok := g.positions[entity]
	if !ok {
		return nil, fmt.Errorf("broadcast set for %s: %w", entity, ErrNotPlaced)
	}
	all := g.EntitiesInRadius(pos.X, pos.Y, g.aoiRadius)
	out := all[:0]
	for _, e := range all {
		if e != entity {
			out = append(out, e)
		}
	}
	return out, nil
}

func (g *Grid) Snapshot() Snapshot {
	cells := g.AllPositions()
	if len(cells) == 0 {
		cells = nil
	}
	return Snapshot{
		Kind: KindGrid,
		Grid: &GridSnapshot{Config: g.config, Cells: cells},
	}
}

func (g *Grid) Restore(snap Snapshot) error {
	if snap.Kind != KindGrid || snap.Grid == nil {
		return wrongKind(KindGrid, snap.Kind)
	}
	g.config = snap.Grid.Config
	g.positions = make(map[ecs.EntityID]Position)
	g.cells = make(map[Position]map[ecs.EntityID]struct{})
	for _, cell := range snap.Grid.Cells {
		g.attach(cell.Entity, Position{X: cell.X, Y: cell.Y})
	}
	return nil
}

func (g *Grid) attach(entity ecs.EntityID, pos Position) {
	g.positions[entity] = pos
	set := g.cells[pos]
	if set == nil {
		set = make(map[ecs.EntityID]struct{})
		g.cells[pos] = set
	}
	set[entity] = struct{}{}
}

func (g *Grid) detach(entity ecs.EntityID) {
	pos, ok := g.positions[entity]
	if !ok {
		return
	}
	delete(g.positions, entity)
	if set := g.cells[pos]; set != nil {
		delete(set, entity)
		if len(set) == 0 {
			delete(g.cells, pos)
		}
	}
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
