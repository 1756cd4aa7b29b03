package command

import (
	"sort"
	"strconv"

	"github.com/woo850115-hub/project-g/internal/core/ecs"
	"github.com/woo850115-hub/project-g/internal/core/observability/log"
)

// Producer describes a registered command source. Producers with larger
// priority values apply earlier in the resolved sequence, which means
// later (lower-priority) producers take last-writer-wins conflicts unless
// an exclusive owner vetoes them.
type Producer struct {
	ID        string
	Priority  int
	Exclusive []ecs.ComponentID
}

type entry struct {
	producer string
	priority int
	cmd      Command
}

// Stream collects state-change intents during a tick and resolves them
// deterministically at the commit point. Resolution is a pure function of
// the appended list and the producer registry.
type Stream struct {
	producers map[string]Producer
	owners    map[ecs.ComponentID]string
	pending   []entry
	failed    map[string]bool
	logger    log.Log
}

func NewStream(logger log.Log) *Stream {
	return &Stream{
		producers: make(map[string]Producer),
		owners:    make(map[ecs.ComponentID]string),
		failed:    make(map[string]bool),
		logger:    logger,
	}
}

// RegisterProducer records a producer and its exclusive component claims.
// A second exclusive claim on the same component id is a programmer error.
func (s *Stream) RegisterProducer(p Producer) {
	s.producers[p.ID] = p
	for _, cid := range p.Exclusive {
		if owner, ok := s.owners[cid]; ok && owner != p.ID {
			panic("command: component " + s.componentLabel(cid) + " already exclusively owned by " + owner)
		}
		s.owners[cid] = p.ID
	}
}

func (s *Stream) componentLabel(cid ecs.ComponentID) string {
	return "#" + strconv.FormatUint(uint64(cid), 10)
}

// Append records a command for the tagged producer. Commands from unknown
// producers are accepted at default priority zero.
func (s *Stream) Append(producerID string, cmd Command) {
	priority := 0
	if p, ok := s.producers[producerID]; ok {
		priority = p.Priority
	}
	s.pending = append(s.pending, entry{producer: producerID, priority: priority, cmd: cmd})
}

// MarkFailed discards the producer's whole tick contribution before
// resolution: the implicit rollback for traps and budget exhaustion.
func (s *Stream) MarkFailed(producerID string) {
	s.failed[producerID] = true
}

func (s *Stream) Len() int { return len(s.pending) }

// Resolve produces the final command sequence for this tick:
//
//  1. every command from a failed producer is dropped,
//  2. commands order by producer priority (descending), retaining append
//     order within equal priority (and therefore within one producer),
//  3. non-owner writes to exclusively owned components drop with a warning,
//  4. last writer wins per (entity, component id); the surviving write
//     keeps its position, earlier collisions vanish silently,
//  5. spawn/despawn/move/place/emit keep their resolved positions.
func (s *Stream) Resolve() []Command {
	live := make([]entry, 0, len(s.pending))
	for _, e := range s.pending {
		if s.failed[e.producer] {
			continue
		}
		live = append(live, e)
	}

	sort.SliceStable(live, func(i, j int) bool {
		return live[i].priority > live[j].priority
	})

	// Exclusive-owner veto.
	vetoed := live[:0:0]
	for _, e := range live {
		if e.cmd.targetsComponent() {
			if owner, ok := s.owners[e.cmd.Component]; ok && owner != e.producer {
				if s.logger != nil {
					s.logger.Warn("dropping write to exclusively owned component",
						log.String("producer", e.producer),
						log.String("owner", owner),
						log.Uint32("component", uint32(e.cmd.Component)),
						log.String("entity", e.cmd.Entity.String()),
					)
				}
				continue
			}
		}
		vetoed = append(vetoed, e)
	}

	// Last writer wins per (entity, component).
	type key struct {
		entity    ecs.EntityID
		component ecs.ComponentID
	}
	lastWriter := make(map[key]int)
	for i, e := range vetoed {
		if e.cmd.targetsComponent() {
			lastWriter[key{e.cmd.Entity, e.cmd.Component}] = i
		}
	}

	out := make([]Command, 0, len(vetoed))
	for i, e := range vetoed {
		if e.cmd.targetsComponent() {
			if lastWriter[key{e.cmd.Entity, e.cmd.Component}] != i {
				continue
			}
		}
		out = append(out, e.cmd)
	}
	return out
}

// Clear resets per-tick state. Producer registrations survive.
func (s *Stream) Clear() {
	s.pending = s.pending[:0]
	s.failed = make(map[string]bool)
}
