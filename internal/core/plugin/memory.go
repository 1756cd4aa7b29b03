package plugin

import "fmt"

// MemView is the only way host code touches a plugin's linear memory. It
// re-resolves the backing slice on every access, so a grow between (or
// during) calls can never leave a stale base pointer behind.
type MemView struct {
	m *machine
}

func (v *MemView) Size() int { return len(v.m.mem) }

func (v *MemView) check(offset, length uint32) error {
	end := uint64(offset) + uint64(length)
	if end > uint64(len(v.m.mem)) {
		return fmt.Errorf("plugin: memory access [%d, %d) outside %d bytes", offset, end, len(v.m.mem))
	}
	return nil
}

// ReadBytes copies length bytes out of guest memory.
func (v *MemView) ReadBytes(offset, length uint32) ([]byte, error) {
	if err := v.check(offset, length); err != nil {
		return nil, err
	}
	return append([]byte(nil), v.m.mem[offset:offset+length]...), nil
}

// WriteBytes copies data into guest memory.
func (v *MemView) WriteBytes(offset uint32, data []byte) error {
	if err := v.check(offset, uint32(len(data))); err != nil {
		return err
	}
	copy(v.m.mem[offset:], data)
	return nil
}

func (v *MemView) ReadByte(offset uint32) (byte, error) {
	if err := v.check(offset, 1); err != nil {
		return 0, err
	}
	return v.m.mem[offset], nil
}

func (v *MemView) WriteByte(offset uint32, b byte) error {
	if err := v.check(offset, 1); err != nil {
		return err
	}
	v.m.mem[offset] = b
	return nil
}

func (v *MemView) ReadUint64(offset uint32) (uint64, error) {
	buf, err := v.ReadBytes(offset, 8)
	if err != nil {
		return 0, err
	}
	var out uint64
	for i := 7; i >= 0; i-- {
		out = out<<8 | uint64(buf[i])
	}
	return out, nil
}

func (v *MemView) WriteUint64(offset uint32, value uint64) error {
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(value >> (8 * i))
	}
	return v.WriteBytes(offset, buf[:])
}

// Grow extends memory by delta pages, returning the previous page count or
// -1 when the machine's cap would be exceeded.
func (v *MemView) Grow(delta int64) int64 {
	return v.m.grow(delta)
}
