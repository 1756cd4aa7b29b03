package bus

import (
	"github.com/woo850115-hub/project-g/internal/core/ecs"
)

// Event is an in-tick notification: a type id plus an opaque payload.
type Event struct {
	ID      ecs.EventID
	Payload []byte
}

// Handler consumes one event during the drain phase.
type Handler func(Event)

type subscription struct {
	filter  map[ecs.EventID]struct{} // nil = all events
	handler Handler
}

// Bus is the per-tick event queue. Subscribers register before the first
// tick and receive matching events in registration order. Events emitted
// while the bus is draining join the same drain; events emitted after the
// drain finished carry over to the next tick. That carry-over policy is
// fixed. Loop defense against an event cycling back into its own producer
// is the subscriber's job.
type Bus struct {
	subs    []subscription
	queue   []Event
	carry   []Event
	drained bool
}

func New() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for the given event ids. An empty id list
// subscribes to everything.
func (b *Bus) Subscribe(handler Handler, ids ...ecs.EventID) {
	var filter map[ecs.EventID]struct{}
	if len(ids) > 0 {
		filter = make(map[ecs.EventID]struct{}, len(ids))
		for _, id := range ids {
			filter[id] = struct{}{}
		}
	}
	b.subs = append(b.subs, subscription{filter: filter, handler: handler})
}

// Emit queues an event for this tick, or for the next one if the current
// tick's drain already completed.
func (b *Bus) Emit(id ecs.EventID, payload []byte) {
	ev := Event{ID: id, Payload: payload}
	if b.drained {
		b.carry = append(b.carry, ev)
		return
	}
	b.queue = append(b.queue, ev)
}

// Pending reports the number of events waiting for the current tick.
func (b *Bus) Pending() int {
	return len(b.queue)
}

// Drain delivers queued events to matching subscribers in registration
// order. Emissions made by handlers extend the same drain. Once the queue
// empties the bus is marked drained until EndTick.
func (b *Bus) Drain() {
	for len(b.queue) > 0 {
		ev := b.queue[0]
		b.queue = b.queue[1:]
		for _, sub := range b.subs {
			if sub.filter != nil {
				if _, ok := sub.filter[ev.ID]; !ok {
					continue
				}
			}
			sub.handler(ev)
		}
	}
	b.drained = true
}

// EndTick rolls carried-over events into the next tick's queue.
func (b *Bus) EndTick() {
	b.queue = b.carry
	b.carry = nil
	b.drained = false
}
