package plugin

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/woo850115-hub/project-g/internal/core/command"
	"github.com/woo850115-hub/project-g/internal/core/ecs"
)

// ABI version. Loading rejects programs built against a different major.
const (
	ABIMajor uint16 = 1
	ABIMinor uint16 = 0
)

// Guest return codes. Zero means success; the negatives form the fixed
// failure taxonomy host calls report back into guest memory space.
const (
	ResultOK               int64 = 0
	ResultErrSerialize     int64 = -1
	ResultErrOutOfBounds   int64 = -2
	ResultErrUnknownComp   int64 = -3
	ResultErrEntityMissing int64 = -4
)

// Host call indices, referenced by the HOST instruction.
const (
	HostEmitCommand  byte = 0 // (ptr, len) -> i32
	HostLog          byte = 1 // (level, ptr, len) -> 0
	HostGetTick      byte = 2 // () -> u64
	HostRandomSeed   byte = 3 // () -> u64
	HostGetComponent byte = 4 // (entity u64, component u32, out ptr, cap) -> i32 len or error
)

// Guest log levels for HostLog.
const (
	LogDebug uint32 = 0
	LogInfo  uint32 = 1
	LogWarn  uint32 = 2
	LogError uint32 = 3
)

// Guest command kinds for the emit-command buffer.
const (
	wireSet     byte = 0
	wireRemove  byte = 1
	wireEmit    byte = 2
	wireSpawn   byte = 3
	wireDespawn byte = 4
	wireMove    byte = 5
	wirePlace   byte = 6
)

var errShortCommand = errors.New("plugin: truncated command buffer")

// decodeCommand parses the little-endian guest command wire format:
// one kind byte followed by kind-specific fields, variable payloads
// length-prefixed with u32.
func decodeCommand(buf []byte) (command.Command, error) {
	if len(buf) < 1 {
		return command.Command{}, errShortCommand
	}
	kind, rest := buf[0], buf[1:]
	r := reader{buf: rest}

	switch kind {
	case wireSet:
		entity := r.u64()
		comp := r.u32()
		payload := r.bytes()
		if r.failed {
			return command.Command{}, errShortCommand
		}
		return command.SetRaw(ecs.EntityIDFromUint64(entity), ecs.ComponentID(comp), payload), nil
	case wireRemove:
		entity := r.u64()
		comp := r.u32()
		if r.failed {
			return command.Command{}, errShortCommand
		}
		return command.Remove(ecs.EntityIDFromUint64(entity), ecs.ComponentID(comp)), nil
	case wireEmit:
		event := r.u32()
		payload := r.bytes()
		if r.failed {
			return command.Command{}, errShortCommand
		}
		return command.Emit(ecs.EventID(event), payload), nil
	case wireSpawn:
		tag := r.u64()
		if r.failed {
			return command.Command{}, errShortCommand
		}
		return command.Spawn(tag), nil
	case wireDespawn:
		entity := r.u64()
		if r.failed {
			return command.Command{}, errShortCommand
		}
		return command.Despawn(ecs.EntityIDFromUint64(entity)), nil
	case wireMove:
		entity := r.u64()
		target := r.u64()
		if r.failed {
			return command.Command{}, errShortCommand
		}
		return command.Move(ecs.EntityIDFromUint64(entity), ecs.EntityIDFromUint64(target)), nil
	case wirePlace:
		entity := r.u64()
		target := r.u64()
		if r.failed {
			return command.Command{}, errShortCommand
		}
		return command.Place(ecs.EntityIDFromUint64(entity), ecs.EntityIDFromUint64(target)), nil
	default:
		return command.Command{}, fmt.Errorf("plugin: unknown command kind %d", kind)
	}
}

// EncodeSetCommand and friends build guest command buffers. Test plugins
// bake these into their data segments; a real toolchain would emit the same
// bytes.
func EncodeSetCommand(entity uint64, component uint32, payload []byte) []byte {
	w := writer{}
	w.byte(wireSet)
	w.u64(entity)
	w.u32(component)
	w.bytes(payload)
	return w.buf
}

func EncodeRemoveCommand(entity uint64, component uint32) []byte {
	w := writer{}
	w.byte(wireRemove)
	w.u64(entity)
	w.u32(component)
	return w.buf
}

func EncodeEmitCommand(event uint32, payload []byte) []byte {
	w := writer{}
	w.byte(wireEmit)
	w.u32(event)
	w.bytes(payload)
	return w.buf
}

func EncodeSpawnCommand(tag uint64) []byte {
	w := writer{}
	w.byte(wireSpawn)
	w.u64(tag)
	return w.buf
}

func EncodeDespawnCommand(entity uint64) []byte {
	w := writer{}
	w.byte(wireDespawn)
	w.u64(entity)
	return w.buf
}

func EncodeMoveCommand(entity, target uint64) []byte {
	w := writer{}
	w.byte(wireMove)
	w.u64(entity)
	w.u64(target)
	return w.buf
}

func EncodePlaceCommand(entity, target uint64) []byte {
	w := writer{}
	w.byte(wirePlace)
	w.u64(entity)
	w.u64(target)
	return w.buf
}

type reader struct {
	buf    []byte
	failed bool
}

func (r *reader) u32() uint32 {
	if r.failed || len(r.buf) < 4 {
		r.failed = true
		return 0
	}
	v := binary.LittleEndian.Uint32(r.buf)
	r.buf = r.buf[4:]
	return v
}

func (r *reader) u64() uint64 {
	if r.failed || len(r.buf) < 8 {
		r.failed = true
		return 0
	}
	v := binary.LittleEndian.Uint64(r.buf)
	r.buf = r.buf[8:]
	return v
}

func (r *reader) bytes() []byte {
	n := r.u32()
	if r.failed || len(r.buf) < int(n) {
		r.failed = true
		return nil
	}
	out := append([]byte(nil), r.buf[:n]...)
	r.buf = r.buf[n:]
	return out
}

type writer struct {
	buf []byte
}

func (w *writer) byte(b byte) { w.buf = append(w.buf, b) }

func (w *writer) u32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *writer) u64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

func (w *writer) bytes(p []byte) {
	w.u32(uint32(len(p)))
	w.buf = append(w.buf, p...)
}

// deterministicSeed derives the per-plugin, per-tick random seed. Same tick
// and plugin id always produce the same seed.
func deterministicSeed(tick uint64, pluginID string) uint64 {
	seed := tick
	for _, b := range []byte(pluginID) {
		seed = seed*31 + uint64(b)
	}
	return seed
}
