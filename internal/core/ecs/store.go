package ecs

import (
	"fmt"
	"sort"
)

// Schema is the startup-time directory of component types. It is write-once:
// the game layer registers every component id before the first tick and the
// engine only consults it afterwards.
type Schema struct {
	tags map[ComponentID]string
	ids  map[string]ComponentID
}

func NewSchema() *Schema {
	return &Schema{
		tags: make(map[ComponentID]string),
		ids:  make(map[string]ComponentID),
	}
}

// Define registers a component id under a tag. Redefining an id or tag is a
// programmer error.
func (s *Schema) Define(id ComponentID, tag string) {
	if existing, ok := s.tags[id]; ok {
		panic(fmt.Sprintf("ecs: component id %d already defined as %q", id, existing))
	}
	if existing, ok := s.ids[tag]; ok {
		panic(fmt.Sprintf("ecs: component tag %q already defined as id %d", tag, existing))
	}
	s.tags[id] = tag
	s.ids[tag] = id
}

func (s *Schema) Known(id ComponentID) bool {
	_, ok := s.tags[id]
	return ok
}

func (s *Schema) Tag(id ComponentID) (string, bool) {
	tag, ok := s.tags[id]
	return tag, ok
}

func (s *Schema) ID(tag string) (ComponentID, bool) {
	id, ok := s.ids[tag]
	return id, ok
}

// IDs returns every defined component id in ascending order.
func (s *Schema) IDs() []ComponentID {
	out := make([]ComponentID, 0, len(s.tags))
	for id := range s.tags {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Store is the typed component storage owned by the simulation thread.
// At most one value of a given component id is attached per entity.
type Store struct {
	alloc  *Allocator
	schema *Schema
	comps  map[ComponentID]map[EntityID]any
}

func NewStore(schema *Schema) *Store {
	return &Store{
		alloc:  NewAllocator(),
		schema: schema,
		comps:  make(map[ComponentID]map[EntityID]any),
	}
}

func (s *Store) Allocator() *Allocator { return s.alloc }
func (s *Store) Schema() *Schema      { return s.schema }

func (s *Store) Spawn() EntityID {
	return s.alloc.Allocate()
}

// Despawn frees the handle and detaches all of its components. Freeing a
// stale handle is a no-op returning false.
func (s *Store) Despawn(id EntityID) bool {
	if !s.alloc.Free(id) {
		return false
	}
	for _, byEntity := range s.comps {
		delete(byEntity, id)
	}
	return true
}

func (s *Store) Alive(id EntityID) bool {
	return s.alloc.Alive(id)
}

func (s *Store) AliveCount() int {
	return s.alloc.AliveCount()
}

// Seat re-materializes an entity at its exact (index, generation) during
// snapshot restore.
func (s *Store) Seat(id EntityID) {
	s.alloc.Seat(id)
}

func (s *Store) mustKnow(id ComponentID) {
	if !s.schema.Known(id) {
		panic(fmt.Sprintf("ecs: component id %d used without registration", id))
	}
}

// Set attaches or replaces a component value.
func (s *Store) Set(entity EntityID, id ComponentID, value any) error {
	s.mustKnow(id)
	if !s.alloc.Alive(entity) {
		return fmt.Errorf("set component %d on %s: %w", id, entity, ErrNotAlive)
	}
	byEntity := s.comps[id]
	if byEntity == nil {
		byEntity = make(map[EntityID]any)
		s.comps[id] = byEntity
	}
	byEntity[entity] = value
	return nil
}

// Get reads a component value. The second return reports presence.
func (s *Store) Get(entity EntityID, id ComponentID) (any, bool) {
	s.mustKnow(id)
	v, ok := s.comps[id][entity]
	return v, ok
}

func (s *Store) Has(entity EntityID, id ComponentID) bool {
	s.mustKnow(id)
	_, ok := s.comps[id][entity]
	return ok
}

// Remove detaches a component. Removing an absent component is idempotent.
func (s *Store) Remove(entity EntityID, id ComponentID) bool {
	s.mustKnow(id)
	byEntity := s.comps[id]
	if byEntity == nil {
		return false
	}
	if _, ok := byEntity[entity]; !ok {
		return false
	}
	delete(byEntity, entity)
	return true
}

// EntitiesWith enumerates entities carrying the component, sorted by
// (index, generation).
func (s *Store) EntitiesWith(id ComponentID) []EntityID {
	s.mustKnow(id)
	byEntity := s.comps[id]
	out := make([]EntityID, 0, len(byEntity))
	for e := range byEntity {
		out = append(out, e)
	}
	sortEntities(out)
	return out
}

// AllEntities enumerates every live entity, sorted by (index, generation).
func (s *Store) AllEntities() []EntityID {
	out := make([]EntityID, 0, s.alloc.AliveCount())
	for idx, alive := range s.alloc.alive {
		if alive {
			out = append(out, EntityID{Index: uint32(idx), Generation: s.alloc.generations[idx]})
		}
	}
	sortEntities(out)
	return out
}

// Reset clears all entities and components, keeping the schema. Used before
// a snapshot restore.
func (s *Store) Reset() {
	s.alloc = NewAllocator()
	s.comps = make(map[ComponentID]map[EntityID]any)
}

func sortEntities(ids []EntityID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
}
