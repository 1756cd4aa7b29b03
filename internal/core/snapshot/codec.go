package snapshot

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/woo850115-hub/project-g/internal/core/ecs"
	"github.com/woo850115-hub/project-g/internal/core/space"
)

// Binary container layout, all little-endian, in this order: schema
// version, tick, capture timestamp, allocator state, entity records,
// tagged spatial payload, then an xxhash64 footer over everything before
// it. A truncated or partially flushed file fails the footer check instead
// of loading silently.

// Encode writes the container.
func Encode(w *World) []byte {
	enc := encoder{}
	enc.u32(w.Version)
	enc.u64(w.Tick)
	enc.u64(uint64(w.Timestamp))

	enc.u32(uint32(len(w.AllocGenerations)))
	for _, g := range w.AllocGenerations {
		enc.u32(g)
	}
	enc.u32(uint32(len(w.AllocFree)))
	for _, f := range w.AllocFree {
		enc.u32(f)
	}
	enc.u32(w.AllocNext)

	enc.u32(uint32(len(w.Entities)))
	for _, record := range w.Entities {
		enc.u64(record.Handle.ToUint64())
		enc.u32(uint32(len(record.Components)))
		for _, comp := range record.Components {
			enc.u32(uint32(comp.ID))
			enc.bytes(comp.Payload)
		}
	}

	encodeSpace(&enc, w.Space)

	sum := xxhash.Sum64(enc.buf)
	enc.u64(sum)
	return enc.buf
}

// Decode parses and verifies a container.
func Decode(buf []byte) (*World, error) {
	if len(buf) < 8 {
		return nil, ErrCorrupt
	}
	body, footer := buf[:len(buf)-8], buf[len(buf)-8:]
	if xxhash.Sum64(body) != binary.LittleEndian.Uint64(footer) {
		return nil, ErrChecksum
	}

	dec := decoder{buf: body}
	w := &World{}
	w.Version = dec.u32()
	if dec.failed {
		return nil, ErrCorrupt
	}
	if w.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrSchemaMismatch, w.Version)
	}
	w.Tick = dec.u64()
	w.Timestamp = int64(dec.u64())

	nGens := dec.u32()
	for i := uint32(0); i < nGens && !dec.failed; i++ {
		w.AllocGenerations = append(w.AllocGenerations, dec.u32())
	}
	nFree := dec.u32()
	for i := uint32(0); i < nFree && !dec.failed; i++ {
		w.AllocFree = append(w.AllocFree, dec.u32())
	}
	w.AllocNext = dec.u32()

	nEntities := dec.u32()
	for i := uint32(0); i < nEntities && !dec.failed; i++ {
		record := EntityRecord{Handle: ecs.EntityIDFromUint64(dec.u64())}
		nComps := dec.u32()
		for j := uint32(0); j < nComps && !dec.failed; j++ {
			record.Components = append(record.Components, ComponentRecord{
				ID:      ecs.ComponentID(dec.u32()),
				Payload: dec.bytes(),
			})
		}
		w.Entities = append(w.Entities, record)
	}

	w.Space = decodeSpace(&dec)
	if dec.failed || len(dec.buf) != 0 {
		return nil, ErrCorrupt
	}
	return w, nil
}

func encodeSpace(enc *encoder, snap space.Snapshot) {
	enc.buf = append(enc.buf, byte(snap.Kind))
	switch snap.Kind {
	case space.KindRoomGraph:
		enc.u32(uint32(len(snap.Rooms)))
		for _, room := range snap.Rooms {
			enc.u64(room.Room.ToUint64())
			enc.u32(uint32(len(room.Exits)))
			for _, exit := range room.Exits {
				enc.str(exit.Label)
				enc.u64(exit.Target.ToUint64())
			}
			enc.u32(uint32(len(room.Occupants)))
			for _, occ := range room.Occupants {
				enc.u64(occ.ToUint64())
			}
		}
	case space.KindGrid:
		grid := snap.Grid
		enc.u32(uint32(grid.Config.Width))
		enc.u32(uint32(grid.Config.Height))
		enc.u32(uint32(grid.Config.OriginX))
		enc.u32(uint32(grid.Config.OriginY))
		enc.u32(uint32(len(grid.Cells)))
		for _, cell := range grid.Cells {
			enc.u64(cell.Entity.ToUint64())
			enc.u32(uint32(cell.X))
			enc.u32(uint32(cell.Y))
		}
	}
}

func decodeSpace(dec *decoder) space.Snapshot {
	if dec.failed || len(dec.buf) < 1 {
		dec.failed = true
		return space.Snapshot{}
	}
	kind := space.Kind(dec.buf[0])
	dec.buf = dec.buf[1:]

	switch kind {
	case space.KindRoomGraph:
		snap := space.Snapshot{Kind: space.KindRoomGraph}
		nRooms := dec.u32()
		for i := uint32(0); i < nRooms && !dec.failed; i++ {
			room := space.RoomSnapshot{Room: ecs.EntityIDFromUint64(dec.u64())}
			nExits := dec.u32()
			for j := uint32(0); j < nExits && !dec.failed; j++ {
				label := dec.str()
				room.Exits = append(room.Exits, space.ExitSnapshot{
					Label:  label,
					Target: ecs.EntityIDFromUint64(dec.u64()),
				})
			}
			nOccs := dec.u32()
			for j := uint32(0); j < nOccs && !dec.failed; j++ {
				room.Occupants = append(room.Occupants, ecs.EntityIDFromUint64(dec.u64()))
			}
			snap.Rooms = append(snap.Rooms, room)
		}
		return snap
	case space.KindGrid:
		grid := &space.GridSnapshot{}
		grid.Config.Width = int32(dec.u32())
		grid.Config.Height = int32(dec.u32())
		grid.Config.OriginX = int32(dec.u32())
		grid.Config.OriginY = int32(dec.u32())
		nCells := dec.u32()
		for i := uint32(0); i < nCells && !dec.failed; i++ {
			grid.Cells = append(grid.Cells, space.CellSnapshot{
				Entity: ecs.EntityIDFromUint64(dec.u64()),
				X:      int32(dec.u32()),
				Y:      int32(dec.u32()),
			})
		}
		return space.Snapshot{Kind: space.KindGrid, Grid: grid}
	default:
		dec.failed = true
		return space.Snapshot{}
	}
}

type encoder struct {
	buf []byte
}

func (e *encoder) u32(v uint32) { e.buf = binary.LittleEndian.AppendUint32(e.buf, v) }
func (e *encoder) u64(v uint64) { e.buf = binary.LittleEndian.AppendUint64(e.buf, v) }

func (e *encoder) bytes(p []byte) {
	e.u32(uint32(len(p)))
	e.buf = append(e.buf, p...)
}

func (e *encoder) str(s string) {
	e.u32(uint32(len(s)))
	e.buf = append(e.buf, s...)
}

type decoder struct {
	buf    []byte
	failed bool
}

func (d *decoder) u32() uint32 {
	if d.failed || len(d.buf) < 4 {
		d.failed = true
		return 0
	}
	v := binary.LittleEndian.Uint32(d.buf)
	d.buf = d.buf[4:]
	return v
}

func (d *decoder) u64() uint64 {
	if d.failed || len(d.buf) < 8 {
		d.failed = true
		return 0
	}
	v := binary.LittleEndian.Uint64(d.buf)
	d.buf = d.buf[8:]
	return v
}

func (d *decoder) bytes() []byte {
	n := d.u32()
	if d.failed || uint32(len(d.buf)) < n {
		d.failed = true
		return nil
	}
	out := append([]byte(nil), d.buf[:n]...)
	d.buf = d.buf[n:]
	return out
}

func (d *decoder) str() string {
	return string(d.bytes())
}
