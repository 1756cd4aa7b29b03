package plugin

import (
	"fmt"

	"github.com/woo850115-hub/project-g/internal/core/command"
	"github.com/woo850115-hub/project-g/internal/core/observability/log"
)

// State is a plugin's lifecycle state.
type State uint8

const (
	StateActive State = iota
	StateQuarantined
)

func (s State) String() string {
	if s == StateQuarantined {
		return "quarantined"
	}
	return "active"
}

// Config describes one plugin to load. Exclusive lists component ids this
// plugin owns: concurrent writes from other producers are vetoed.
type Config struct {
	ID        string   `yaml:"id"`
	Path      string   `yaml:"path"`
	Priority  int      `yaml:"priority"`
	FuelLimit uint64   `yaml:"fuel_limit"`
	Enabled   bool     `yaml:"enabled"`
	Exclusive []uint32 `yaml:"exclusive"`
}

// FuelConfig holds runtime-wide execution limits.
type FuelConfig struct {
	DefaultFuelLimit       uint64 `yaml:"default_fuel_limit"`
	MaxConsecutiveFailures int    `yaml:"max_consecutive_failures"`
	MaxMemPages            uint32 `yaml:"max_mem_pages"`
}

func DefaultFuelConfig() FuelConfig {
	return FuelConfig{
		DefaultFuelLimit:       1_000_000,
		MaxConsecutiveFailures: 3,
		MaxMemPages:            defaultMaxPage,
	}
}

type componentKey struct {
	Entity    uint64
	Component uint32
}

// Plugin is one loaded guest program with its execution budget and failure
// accounting.
type Plugin struct {
	ID        string
	Priority  int
	FuelLimit uint64
	Exclusive []uint32

	state       State
	failures    int
	maxFailures int

	program *Program
	mach    *machine

	tick     uint64
	seed     uint64
	pending  []command.Command
	compData map[componentKey][]byte

	logger log.Log
}

// Load parses and instantiates a plugin, then runs its on_load export under
// the fuel budget.
func Load(programBytes []byte, cfg Config, fuel FuelConfig, logger log.Log) (*Plugin, error) {
	prog, err := ParseProgram(programBytes)
	if err != nil {
		return nil, fmt.Errorf("load plugin %q: %w", cfg.ID, err)
	}

	limit := cfg.FuelLimit
	if limit == 0 {
		limit = fuel.DefaultFuelLimit
	}

	p := &Plugin{
		ID:          cfg.ID,
		Priority:    cfg.Priority,
		FuelLimit:   limit,
		Exclusive:   cfg.Exclusive,
		maxFailures: fuel.MaxConsecutiveFailures,
		program:     prog,
		mach:        newMachine(prog, fuel.MaxMemPages),
		logger:      logger,
	}

	if prog.OnLoad != entryAbsent {
		budget := limit
		result, trap := p.mach.run(prog.OnLoad, nil, p, &budget)
		if trap != nil {
			return nil, fmt.Errorf("load plugin %q: on_load %w", cfg.ID, trap)
		}
		if result != ResultOK {
			return nil, fmt.Errorf("load plugin %q: on_load returned %d", cfg.ID, result)
		}
	}
	return p, nil
}

func (p *Plugin) State() State      { return p.state }
func (p *Plugin) Quarantined() bool { return p.state == StateQuarantined }
func (p *Plugin) Failures() int     { return p.failures }

// Reenable clears quarantine and the failure counter.
func (p *Plugin) Reenable() {
	p.state = StateActive
	p.failures = 0
}

// ExecTick runs the on_tick export. On success it returns the commands the
// guest emitted; on a trap the commands are already discarded.
func (p *Plugin) ExecTick(tick uint64) ([]command.Command, *Trap) {
	return p.exec(tick, p.program.OnTick, []int64{int64(tick)})
}

// ExecEvent runs on_event with the payload staged into guest memory at the
// event scratch offset. Plugins without the export are skipped silently.
func (p *Plugin) ExecEvent(tick uint64, eventID uint32, payload []byte) ([]command.Command, *Trap) {
	if p.program.OnEvent == entryAbsent {
		return nil, nil
	}
	scratch := p.eventScratch()
	view := p.mach.Memory()
	for uint64(scratch)+uint64(len(payload)) > uint64(view.Size()) {
		if view.Grow(1) < 0 {
			return nil, &Trap{Kind: TrapOutOfBounds}
		}
	}
	if err := view.WriteBytes(scratch, payload); err != nil {
		return nil, &Trap{Kind: TrapOutOfBounds}
	}
	return p.exec(tick, p.program.OnEvent,
		[]int64{int64(eventID), int64(scratch), int64(len(payload))})
}

// eventScratch is where event payloads land in guest memory: just past the
// initial data segment, 16-byte aligned.
func (p *Plugin) eventScratch() uint32 {
	return (uint32(len(p.program.Data)) + 15) &^ 15
}

func (p *Plugin) exec(tick uint64, entry int32, args []int64) ([]command.Command, *Trap) {
	p.tick = tick
	p.seed = deterministicSeed(tick, p.ID)
	p.pending = p.pending[:0]

	budget := p.FuelLimit
	result, trap := p.mach.run(entry, args, p, &budget)
	if trap != nil {
		// Implicit rollback of the plugin's tick.
		p.pending = p.pending[:0]
		p.failures++
		p.logger.Warn("plugin failed, commands discarded",
			log.String("plugin", p.ID),
			log.Uint64("tick", tick),
			log.Int("consecutive", p.failures),
			log.String("trap", trap.Kind.String()),
		)
		if p.failures >= p.maxFailures {
			p.state = StateQuarantined
			p.logger.Error("plugin quarantined",
				log.String("plugin", p.ID),
				log.Uint64("tick", tick),
				log.Int("failures", p.failures),
			)
		}
		return nil, trap
	}

	p.failures = 0
	if result != ResultOK {
		p.logger.Warn("plugin returned error code",
			log.String("plugin", p.ID),
			log.Uint64("tick", tick),
			log.Int64("code", result),
		)
	}
	out := make([]command.Command, len(p.pending))
	copy(out, p.pending)
	return out, nil
}

// PopulateComponents installs this tick's component byte cache for
// HostGetComponent lookups.
func (p *Plugin) PopulateComponents(data map[componentKey][]byte) {
	p.compData = data
}

// Host import surface (hostFuncs).

func (p *Plugin) EmitCommand(mem *MemView, ptr, length uint32) int64 {
	buf, err := mem.ReadBytes(ptr, length)
	if err != nil {
		return ResultErrOutOfBounds
	}
	cmd, err := decodeCommand(buf)
	if err != nil {
		return ResultErrSerialize
	}
	p.pending = append(p.pending, cmd)
	return ResultOK
}

func (p *Plugin) HostLog(mem *MemView, level uint32, ptr, length uint32) int64 {
	buf, err := mem.ReadBytes(ptr, length)
	if err != nil {
		return ResultErrOutOfBounds
	}
	msg := string(buf)
	fields := []log.Field{log.String("plugin", p.ID), log.Uint64("tick", p.tick)}
	switch level {
	case LogDebug:
		p.logger.Debug(msg, fields...)
	case LogWarn:
		p.logger.Warn(msg, fields...)
	case LogError:
		p.logger.Error(msg, fields...)
	default:
		p.logger.Info(msg, fields...)
	}
	return ResultOK
}

func (p *Plugin) CurrentTick() uint64 { return p.tick }
func (p *Plugin) RandomSeed() uint64  { return p.seed }

func (p *Plugin) GetComponent(mem *MemView, entity uint64, component uint32, out, capacity uint32) int64 {
	data, ok := p.compData[componentKey{Entity: entity, Component: component}]
	if !ok {
		return ResultErrEntityMissing
	}
	if uint32(len(data)) > capacity {
		return ResultErrOutOfBounds
	}
	if err := mem.WriteBytes(out, data); err != nil {
		return ResultErrOutOfBounds
	}
	return int64(len(data))
}
