package tick

import (
	"encoding/binary"

	"github.com/woo850115-hub/project-g/internal/core/ecs"
	"github.com/woo850115-hub/project-g/internal/core/events/bus"
	"github.com/woo850115-hub/project-g/internal/core/script"
)

// Engine-reserved event ids. Game content starts its numbering above
// EventUserBase.
const (
	EventEnterRoom ecs.EventID = 1

	EventUserBase ecs.EventID = 1000
)

// enterRoomPayload encodes (entity, room, optional old room) for the bus.
func enterRoomPayload(entity, room ecs.EntityID, oldRoom *ecs.EntityID) []byte {
	buf := make([]byte, 0, 25)
	buf = binary.LittleEndian.AppendUint64(buf, entity.ToUint64())
	buf = binary.LittleEndian.AppendUint64(buf, room.ToUint64())
	if oldRoom != nil {
		buf = append(buf, 1)
		buf = binary.LittleEndian.AppendUint64(buf, oldRoom.ToUint64())
	} else {
		buf = append(buf, 0)
	}
	return buf
}

func decodeEnterRoom(payload []byte) (entity, room ecs.EntityID, oldRoom *ecs.EntityID, ok bool) {
	if len(payload) < 17 {
		return entity, room, nil, false
	}
	entity = ecs.EntityIDFromUint64(binary.LittleEndian.Uint64(payload))
	room = ecs.EntityIDFromUint64(binary.LittleEndian.Uint64(payload[8:]))
	if payload[16] == 1 && len(payload) >= 25 {
		old := ecs.EntityIDFromUint64(binary.LittleEndian.Uint64(payload[17:]))
		oldRoom = &old
	}
	return entity, room, oldRoom, true
}

// wireEvents registers the loop's bus subscriptions: enter-room dispatch to
// scripts and the catch-all fanning every event into plugin on_event
// exports. Commands emitted by either join the next tick's stream.
func (l *Loop) wireEvents() {
	if l.deps.Scripts != nil {
		l.deps.Bus.Subscribe(func(ev bus.Event) {
			entity, room, oldRoom, ok := decodeEnterRoom(ev.Payload)
			if !ok {
				return
			}
			cmds, outs := l.deps.Scripts.RunEnterRoom(
				l.deps.Store, l.deps.Space, l.deps.Sessions, l.currentTick,
				entity, room, oldRoom)
			for _, cmd := range cmds {
				l.deps.Stream.Append(ProducerScript, cmd)
			}
			l.outputs = append(l.outputs, outs...)
		}, EventEnterRoom)
	}

	if l.deps.Plugins != nil {
		l.deps.Bus.Subscribe(func(ev bus.Event) {
			for _, batch := range l.deps.Plugins.RunEvent(l.currentTick, uint32(ev.ID), ev.Payload) {
				for _, cmd := range batch.Commands {
					l.deps.Stream.Append(batch.PluginID, cmd)
				}
			}
		})
	}
}

// queueOutputs adds script outputs to the tick's pending set.
func (l *Loop) queueOutputs(outs []script.Output) {
	l.outputs = append(l.outputs, outs...)
}
