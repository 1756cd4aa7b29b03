package plugin

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Bytecode opcodes. The VM is a little-endian stack machine over 64-bit
// values with a flat linear memory.
const (
	opHalt    byte = 0x00
	opPush    byte = 0x01 // imm i64
	opDrop    byte = 0x02
	opDup     byte = 0x03
	opAdd     byte = 0x04
	opSub     byte = 0x05
	opMul     byte = 0x06
	opDiv     byte = 0x07 // traps on divide-by-zero
	opMod     byte = 0x08
	opAnd     byte = 0x09
	opOr      byte = 0x0A
	opXor     byte = 0x0B
	opShl     byte = 0x0C
	opShr     byte = 0x0D
	opEq      byte = 0x0E
	opNe      byte = 0x0F
	opLt      byte = 0x10
	opGt      byte = 0x11
	opJmp     byte = 0x12 // imm u32 absolute code offset
	opJz      byte = 0x13 // imm u32, jumps when popped value == 0
	opJnz     byte = 0x14 // imm u32
	opLoad8   byte = 0x15 // pop addr, push zero-extended byte
	opLoad64  byte = 0x16
	opStore8  byte = 0x17 // pop value, pop addr
	opStore64 byte = 0x18
	opGrow    byte = 0x19 // pop pages, push previous size in pages
	opArg     byte = 0x1A // imm u8, push invocation argument n
	opHost    byte = 0x1B // imm u8 host call index
	opTrap    byte = 0x1C // explicit trap
	opRet     byte = 0x1D // pop result and finish
)

// PageSize is the linear-memory growth granularity.
const PageSize = 64 * 1024

const programMagic = "GBC1"

// entryAbsent marks a missing guest export in the container header.
const entryAbsent = int32(-1)

var (
	ErrBadMagic     = errors.New("plugin: bad program magic")
	ErrABIMismatch  = errors.New("plugin: ABI major version mismatch")
	ErrTruncated    = errors.New("plugin: truncated program")
	ErrNoTickExport = errors.New("plugin: program does not export on_tick")
)

// Program is a parsed plugin container: ABI version, initial memory size,
// the guest exports' entry offsets, an initial data segment, and code.
type Program struct {
	ABIMajor uint16
	ABIMinor uint16
	MemPages uint32
	OnLoad   int32
	OnTick   int32
	OnEvent  int32
	Data     []byte
	Code     []byte
}

// ParseProgram decodes the container and gates on the ABI major version.
func ParseProgram(buf []byte) (*Program, error) {
	if len(buf) < 4 || string(buf[:4]) != programMagic {
		return nil, ErrBadMagic
	}
	r := reader{buf: buf[4:]}
	p := &Program{}
	p.ABIMajor = uint16(r.u32())
	p.ABIMinor = uint16(r.u32())
	p.MemPages = r.u32()
	p.OnLoad = int32(r.u32())
	p.OnTick = int32(r.u32())
	p.OnEvent = int32(r.u32())
	p.Data = r.bytes()
	p.Code = r.bytes()
	if r.failed {
		return nil, ErrTruncated
	}
	if p.ABIMajor != ABIMajor {
		return nil, fmt.Errorf("%w: program %d.%d, host %d.%d",
			ErrABIMismatch, p.ABIMajor, p.ABIMinor, ABIMajor, ABIMinor)
	}
	if p.OnTick == entryAbsent {
		return nil, ErrNoTickExport
	}
	return p, nil
}

// Encode writes the container back out.
func (p *Program) Encode() []byte {
	w := writer{}
	w.buf = append(w.buf, programMagic...)
	w.u32(uint32(p.ABIMajor))
	w.u32(uint32(p.ABIMinor))
	w.u32(p.MemPages)
	w.u32(uint32(p.OnLoad))
	w.u32(uint32(p.OnTick))
	w.u32(uint32(p.OnEvent))
	w.bytes(p.Data)
	w.bytes(p.Code)
	return w.buf
}

// Assembler builds code fragments for plugin programs. Game modules and
// tests use it in place of an external plugin toolchain.
type Assembler struct {
	code []byte
}

func NewAssembler() *Assembler { return &Assembler{} }

func (a *Assembler) Bytes() []byte { return a.code }

// Pos returns the current code offset, usable as a jump target.
func (a *Assembler) Pos() uint32 { return uint32(len(a.code)) }

func (a *Assembler) op(b byte) *Assembler {
	a.code = append(a.code, b)
	return a
}

func (a *Assembler) Push(v int64) *Assembler {
	a.code = append(a.code, opPush)
	a.code = binary.LittleEndian.AppendUint64(a.code, uint64(v))
	return a
}

func (a *Assembler) Drop() *Assembler { return a.op(opDrop) }
func (a *Assembler) Dup() *Assembler  { return a.op(opDup) }
func (a *Assembler) Add() *Assembler  { return a.op(opAdd) }
func (a *Assembler) Sub() *Assembler  { return a.op(opSub) }
func (a *Assembler) Mul() *Assembler  { return a.op(opMul) }
func (a *Assembler) Div() *Assembler  { return a.op(opDiv) }
func (a *Assembler) Mod() *Assembler  { return a.op(opMod) }
func (a *Assembler) Eq() *Assembler   { return a.op(opEq) }
func (a *Assembler) Lt() *Assembler   { return a.op(opLt) }

func (a *Assembler) Jmp(target uint32) *Assembler {
	a.code = append(a.code, opJmp)
	a.code = binary.LittleEndian.AppendUint32(a.code, target)
	return a
}

func (a *Assembler) Jz(target uint32) *Assembler {
	a.code = append(a.code, opJz)
	a.code = binary.LittleEndian.AppendUint32(a.code, target)
	return a
}

func (a *Assembler) Jnz(target uint32) *Assembler {
	a.code = append(a.code, opJnz)
	a.code = binary.LittleEndian.AppendUint32(a.code, target)
	return a
}

func (a *Assembler) Load8() *Assembler   { return a.op(opLoad8) }
func (a *Assembler) Load64() *Assembler  { return a.op(opLoad64) }
func (a *Assembler) Store8() *Assembler  { return a.op(opStore8) }
func (a *Assembler) Store64() *Assembler { return a.op(opStore64) }
func (a *Assembler) Grow() *Assembler    { return a.op(opGrow) }

func (a *Assembler) Arg(n byte) *Assembler {
	a.code = append(a.code, opArg, n)
	return a
}

func (a *Assembler) Host(fn byte) *Assembler {
	a.code = append(a.code, opHost, fn)
	return a
}

func (a *Assembler) Trap() *Assembler { return a.op(opTrap) }
func (a *Assembler) Halt() *Assembler { return a.op(opHalt) }

// Ret pops the top of stack as the export's i32 result.
func (a *Assembler) Ret() *Assembler { return a.op(opRet) }

// RetOK is shorthand for returning success.
func (a *Assembler) RetOK() *Assembler { return a.Push(ResultOK).Ret() }

// ProgramBuilder assembles full plugin containers from per-export
// fragments. Each fragment must end in Ret (or trap deliberately).
type ProgramBuilder struct {
	MemPages uint32
	Data     []byte
	onLoad   []byte
	onTick   []byte
	onEvent  []byte
}

func NewProgramBuilder() *ProgramBuilder {
	return &ProgramBuilder{MemPages: 1}
}

func (b *ProgramBuilder) WithData(data []byte) *ProgramBuilder {
	b.Data = data
	return b
}

func (b *ProgramBuilder) WithMemPages(pages uint32) *ProgramBuilder {
	b.MemPages = pages
	return b
}

func (b *ProgramBuilder) OnLoad(code []byte) *ProgramBuilder {
	b.onLoad = code
	return b
}

func (b *ProgramBuilder) OnTick(code []byte) *ProgramBuilder {
	b.onTick = code
	return b
}

func (b *ProgramBuilder) OnEvent(code []byte) *ProgramBuilder {
	b.onEvent = code
	return b
}

func (b *ProgramBuilder) Build() *Program {
	p := &Program{
		ABIMajor: ABIMajor,
		ABIMinor: ABIMinor,
		MemPages: b.MemPages,
		OnLoad:   entryAbsent,
		OnTick:   entryAbsent,
		OnEvent:  entryAbsent,
		Data:     b.Data,
	}
	if b.onLoad != nil {
		p.OnLoad = int32(len(p.Code))
		p.Code = append(p.Code, b.onLoad...)
	}
	if b.onTick != nil {
		p.OnTick = int32(len(p.Code))
		p.Code = append(p.Code, b.onTick...)
	}
	if b.onEvent != nil {
		p.OnEvent = int32(len(p.Code))
		p.Code = append(p.Code, b.onEvent...)
	}
	return p
}
