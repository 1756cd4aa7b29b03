package ecs

// Allocator hands out generational entity handles. Freed indices go onto a
// LIFO free list; re-allocation bumps the slot's generation so stale handles
// never alias a live entity.
type Allocator struct {
	generations []uint32
	alive       []bool
	free        []uint32
	nextIndex   uint32
}

func NewAllocator() *Allocator {
	return &Allocator{}
}

func (a *Allocator) Allocate() EntityID {
	if n := len(a.free); n > 0 {
		index := a.free[n-1]
		a.free = a.free[:n-1]
		a.generations[index]++
		a.alive[index] = true
		return EntityID{Index: index, Generation: a.generations[index]}
	}
	index := a.nextIndex
	a.nextIndex++
	a.generations = append(a.generations, 0)
	a.alive = append(a.alive, true)
	return EntityID{Index: index, Generation: 0}
}

// Free releases a handle. Returns false for stale or unknown handles.
func (a *Allocator) Free(id EntityID) bool {
	if !a.Alive(id) {
		return false
	}
	a.alive[id.Index] = false
	a.free = append(a.free, id.Index)
	return true
}

func (a *Allocator) Alive(id EntityID) bool {
	idx := int(id.Index)
	return idx < len(a.alive) && a.alive[idx] && a.generations[idx] == id.Generation
}

func (a *Allocator) AliveCount() int {
	n := 0
	for _, ok := range a.alive {
		if ok {
			n++
		}
	}
	return n
}

// Seat places a handle at its exact (index, generation) during snapshot
// restore. The slot table grows as needed; intermediate slots stay dead
// and are not added to the free list.
func (a *Allocator) Seat(id EntityID) {
	for uint32(len(a.generations)) <= id.Index {
		a.generations = append(a.generations, 0)
		a.alive = append(a.alive, false)
	}
	a.generations[id.Index] = id.Generation
	a.alive[id.Index] = true
	if id.Index >= a.nextIndex {
		a.nextIndex = id.Index + 1
	}
}

// State exports the allocator for snapshots: per-slot generations, the free
// list, and the next unused index.
func (a *Allocator) State() (generations []uint32, free []uint32, next uint32) {
	generations = append([]uint32(nil), a.generations...)
	free = append([]uint32(nil), a.free...)
	return generations, free, a.nextIndex
}

// RestoreState reconstitutes the allocator from captured state. A slot is
// alive iff it is below next and not on the free list.
func (a *Allocator) RestoreState(generations []uint32, free []uint32, next uint32) {
	a.generations = append([]uint32(nil), generations...)
	a.free = append([]uint32(nil), free...)
	a.nextIndex = next

	onFree := make(map[uint32]struct{}, len(free))
	for _, idx := range free {
		onFree[idx] = struct{}{}
	}
	a.alive = make([]bool, len(generations))
	for i := range a.alive {
		if uint32(i) >= next {
			break
		}
		_, freed := onFree[uint32(i)]
		a.alive[i] = !freed
	}
}
