package plugin

import (
	"encoding/binary"
	"fmt"
)

// TrapKind classifies why an execution stopped abnormally.
type TrapKind uint8

const (
	TrapNone TrapKind = iota
	TrapFuelExhausted
	TrapOutOfBounds
	TrapStack
	TrapDivideByZero
	TrapExplicit
	TrapBadOpcode
)

func (k TrapKind) String() string {
	switch k {
	case TrapFuelExhausted:
		return "fuel exhausted"
	case TrapOutOfBounds:
		return "memory out of bounds"
	case TrapStack:
		return "operand stack fault"
	case TrapDivideByZero:
		return "divide by zero"
	case TrapExplicit:
		return "explicit trap"
	case TrapBadOpcode:
		return "unknown opcode"
	default:
		return "no trap"
	}
}

// Trap carries the abnormal-stop classification out of the VM.
type Trap struct {
	Kind TrapKind
	PC   int
}

func (t *Trap) Error() string {
	return fmt.Sprintf("trap at pc %d: %s", t.PC, t.Kind)
}

// hostFuncs is the host-import surface a machine calls back into. Each
// function pops its arguments from the operand stack in reverse declaration
// order: the last argument is on top.
type hostFuncs interface {
	EmitCommand(mem *MemView, ptr, length uint32) int64
	HostLog(mem *MemView, level uint32, ptr, length uint32) int64
	CurrentTick() uint64
	RandomSeed() uint64
	GetComponent(mem *MemView, entity uint64, component uint32, out, cap uint32) int64
}

const (
	maxStackDepth  = 1024
	defaultMaxPage = 256 // 16 MiB ceiling unless configured otherwise
)

// machine executes one plugin's bytecode. Linear memory persists across
// invocations; the operand stack does not.
type machine struct {
	code     []byte
	mem      []byte
	maxPages uint32
	stack    []int64
}

func newMachine(p *Program, maxPages uint32) *machine {
	if maxPages == 0 {
		maxPages = defaultMaxPage
	}
	pages := p.MemPages
	if pages == 0 {
		pages = 1
	}
	if pages > maxPages {
		pages = maxPages
	}
	mem := make([]byte, int(pages)*PageSize)
	copy(mem, p.Data)
	return &machine{
		code:     p.Code,
		mem:      mem,
		maxPages: maxPages,
		stack:    make([]int64, 0, 64),
	}
}

// Memory returns a safe view over the machine's linear memory. The view
// holds the machine, not the slice, so growth between accesses can never
// leave it dangling.
func (m *machine) Memory() *MemView {
	return &MemView{m: m}
}

// grow extends linear memory by delta pages, returning the previous size in
// pages or -1 when the cap would be exceeded.
func (m *machine) grow(delta int64) int64 {
	prevPages := int64(len(m.mem) / PageSize)
	if delta < 0 || prevPages+delta > int64(m.maxPages) {
		return -1
	}
	next := make([]byte, (prevPages+delta)*PageSize)
	copy(next, m.mem)
	m.mem = next
	return prevPages
}

// run executes an export. Jump targets inside the fragment are relative to
// the entry offset. Every instruction burns one unit of fuel; host calls
// burn a fixed surcharge so a hot host-call loop cannot outrun the budget.
func (m *machine) run(entry int32, args []int64, host hostFuncs, fuel *uint64) (int64, *Trap) {
	const hostCallFuel = 8

	m.stack = m.stack[:0]
	base := int(entry)
	pc := base

	push := func(v int64) bool {
		if len(m.stack) >= maxStackDepth {
			return false
		}
		m.stack = append(m.stack, v)
		return true
	}
	pop := func() (int64, bool) {
		if len(m.stack) == 0 {
			return 0, false
		}
		v := m.stack[len(m.stack)-1]
		m.stack = m.stack[:len(m.stack)-1]
		return v, true
	}
	trap := func(kind TrapKind) (int64, *Trap) {
		return 0, &Trap{Kind: kind, PC: pc}
	}

	for {
		if *fuel == 0 {
			return trap(TrapFuelExhausted)
		}
		*fuel--

		if pc < 0 || pc >= len(m.code) {
			return trap(TrapOutOfBounds)
		}
		op := m.code[pc]
		pc++

		switch op {
		case opHalt:
			return ResultOK, nil

		case opPush:
			if pc+8 > len(m.code) {
				return trap(TrapOutOfBounds)
			}
			v := int64(binary.LittleEndian.Uint64(m.code[pc:]))
			pc += 8
			if !push(v) {
				return trap(TrapStack)
			}

		case opDrop:
			if _, ok := pop(); !ok {
				return trap(TrapStack)
			}

		case opDup:
			v, ok := pop()
			if !ok || !push(v) || !push(v) {
				return trap(TrapStack)
			}

		case opAdd, opSub, opMul, opDiv, opMod, opAnd, opOr, opXor, opShl, opShr, opEq, opNe, opLt, opGt:
			b, okB := pop()
			a, okA := pop()
			if !okA || !okB {
				return trap(TrapStack)
			}
			var v int64
			switch op {
			case opAdd:
				v = a + b
			case opSub:
				v = a - b
			case opMul:
				v = a * b
			case opDiv:
				if b == 0 {
					return trap(TrapDivideByZero)
				}
				v = a / b
			case opMod:
				if b == 0 {
					return trap(TrapDivideByZero)
				}
				v = a % b
			case opAnd:
				v = a & b
			case opOr:
				v = a | b
			case opXor:
				v = a ^ b
			case opShl:
				v = a << (uint64(b) & 63)
			case opShr:
				v = int64(uint64(a) >> (uint64(b) & 63))
			case opEq:
				v = b2i(a == b)
			case opNe:
				v = b2i(a != b)
			case opLt:
				v = b2i(a < b)
			case opGt:
				v = b2i(a > b)
			}
			if !push(v) {
				return trap(TrapStack)
			}

		case opJmp, opJz, opJnz:
			if pc+4 > len(m.code) {
				return trap(TrapOutOfBounds)
			}
			target := base + int(binary.LittleEndian.Uint32(m.code[pc:]))
			pc += 4
			jump := true
			if op != opJmp {
				v, ok := pop()
				if !ok {
					return trap(TrapStack)
				}
				if op == opJz {
					jump = v == 0
				} else {
					jump = v != 0
				}
			}
			if jump {
				pc = target
			}

		case opLoad8, opLoad64:
			addr, ok := pop()
			if !ok {
				return trap(TrapStack)
			}
			view := m.Memory()
			var v int64
			if op == opLoad8 {
				b, err := view.ReadByte(uint32(addr))
				if err != nil {
					return trap(TrapOutOfBounds)
				}
				v = int64(b)
			} else {
				u, err := view.ReadUint64(uint32(addr))
				if err != nil {
					return trap(TrapOutOfBounds)
				}
				v = int64(u)
			}
			if !push(v) {
				return trap(TrapStack)
			}

		case opStore8, opStore64:
			v, okV := pop()
			addr, okA := pop()
			if !okV || !okA {
				return trap(TrapStack)
			}
			view := m.Memory()
			var err error
			if op == opStore8 {
				err = view.WriteByte(uint32(addr), byte(v))
			} else {
				err = view.WriteUint64(uint32(addr), uint64(v))
			}
			if err != nil {
				return trap(TrapOutOfBounds)
			}

		case opGrow:
			pages, ok := pop()
			if !ok {
				return trap(TrapStack)
			}
			if !push(m.grow(pages)) {
				return trap(TrapStack)
			}

		case opArg:
			if pc >= len(m.code) {
				return trap(TrapOutOfBounds)
			}
			n := int(m.code[pc])
			pc++
			if n >= len(args) {
				return trap(TrapStack)
			}
			if !push(args[n]) {
				return trap(TrapStack)
			}

		case opHost:
			if pc >= len(m.code) {
				return trap(TrapOutOfBounds)
			}
			fn := m.code[pc]
			pc++
			if *fuel < hostCallFuel {
				return trap(TrapFuelExhausted)
			}
			*fuel -= hostCallFuel

			view := m.Memory()
			var result int64
			switch fn {
			case HostEmitCommand:
				length, okL := pop()
				ptr, okP := pop()
				if !okL || !okP {
					return trap(TrapStack)
				}
				result = host.EmitCommand(view, uint32(ptr), uint32(length))
			case HostLog:
				length, okL := pop()
				ptr, okP := pop()
				level, okLv := pop()
				if !okL || !okP || !okLv {
					return trap(TrapStack)
				}
				result = host.HostLog(view, uint32(level), uint32(ptr), uint32(length))
			case HostGetTick:
				result = int64(host.CurrentTick())
			case HostRandomSeed:
				result = int64(host.RandomSeed())
			case HostGetComponent:
				capacity, okC := pop()
				out, okO := pop()
				comp, okComp := pop()
				entity, okE := pop()
				if !okC || !okO || !okComp || !okE {
					return trap(TrapStack)
				}
				result = host.GetComponent(view, uint64(entity), uint32(comp), uint32(out), uint32(capacity))
			default:
				return trap(TrapBadOpcode)
			}
			if !push(result) {
				return trap(TrapStack)
			}

		case opTrap:
			return trap(TrapExplicit)

		case opRet:
			v, ok := pop()
			if !ok {
				return trap(TrapStack)
			}
			return v, nil

		default:
			return trap(TrapBadOpcode)
		}
	}
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
