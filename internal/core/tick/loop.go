package tick

import (
	"time"

	"github.com/woo850115-hub/project-g/internal/core/command"
	"github.com/woo850115-hub/project-g/internal/core/ecs"
	"github.com/woo850115-hub/project-g/internal/core/events/bus"
	"github.com/woo850115-hub/project-g/internal/core/observability/log"
	"github.com/woo850115-hub/project-g/internal/core/plugin"
	"github.com/woo850115-hub/project-g/internal/core/script"
	"github.com/woo850115-hub/project-g/internal/core/session"
	"github.com/woo850115-hub/project-g/internal/core/snapshot"
	"github.com/woo850115-hub/project-g/internal/core/space"
)

// Producer ids and priorities for the command stream. Larger priorities
// apply earlier, so session input lands first and script writes land last.
const (
	ProducerSession = "session"
	ProducerScript  = "script"

	prioritySession = 1000
	priorityScript  = 0
)

// Config tunes the fixed-rate loop.
type Config struct {
	TPS           int    `yaml:"tps"`
	MaxTicks      uint64 `yaml:"max_ticks"`
	SnapshotEvery uint64 `yaml:"snapshot_every"`
	LingerTicks   uint64 `yaml:"linger_ticks"`
}

func DefaultConfig() Config {
	return Config{TPS: 10, SnapshotEvery: 600, LingerTicks: 300}
}

func (c Config) TickDuration() time.Duration {
	tps := c.TPS
	if tps <= 0 {
		tps = 10
	}
	return time.Second / time.Duration(tps)
}

// CharacterSaver persists a player's components when its lingering grace
// interval expires.
type CharacterSaver interface {
	SaveCharacter(name string, permission int, components map[string][]byte) error
}

// Deps wires the loop to every subsystem it drives. The loop owns all of
// them for the process lifetime; nothing else may mutate them.
type Deps struct {
	Store      *ecs.Store
	Space      space.Model
	Stream     *command.Stream
	Bus        *bus.Bus
	Plugins    *plugin.Runtime
	Scripts    *script.Engine
	Sessions   *session.Registry
	AOI        *session.AOITracker
	Snapshots  *snapshot.Manager
	PersistReg *ecs.PersistRegistry
	ScriptReg  *ecs.ScriptRegistry
	Characters CharacterSaver
	Logger     log.Log

	// NameOf resolves an entity's display name for wire envelopes; the
	// game layer supplies it so the engine stays ignorant of component
	// types.
	NameOf func(*ecs.Store, ecs.EntityID) (string, bool)

	// SpawnPlayer materializes a fresh player entity with the game's
	// standard components attached. The loop places it afterwards.
	SpawnPlayer func(*ecs.Store, string) ecs.EntityID
}

// Loop is the fixed-rate simulation driver. It is the single writer to all
// simulation state; the channels are its only contact with the network
// layer and it never blocks on either of them.
type Loop struct {
	cfg  Config
	deps Deps

	inbound  <-chan session.Inbound
	outbound chan<- session.Outbound

	currentTick uint64
	outputs     []script.Output
	work        chan func()
}

func NewLoop(cfg Config, deps Deps, inbound <-chan session.Inbound, outbound chan<- session.Outbound) *Loop {
	l := &Loop{
		cfg:      cfg,
		deps:     deps,
		inbound:  inbound,
		outbound: outbound,
		work:     make(chan func(), 64),
	}

	deps.Stream.RegisterProducer(command.Producer{ID: ProducerSession, Priority: prioritySession})
	deps.Stream.RegisterProducer(command.Producer{ID: ProducerScript, Priority: priorityScript})
	if deps.Plugins != nil {
		for _, p := range deps.Plugins.Producers() {
			deps.Stream.RegisterProducer(p)
		}
	}

	l.wireEvents()
	return l
}

func (l *Loop) CurrentTick() uint64 { return l.currentTick }

// Post schedules fn to run on the simulation thread at the top of the next
// tick. Returns false when the work queue is full.
func (l *Loop) Post(fn func()) bool {
	select {
	case l.work <- fn:
		return true
	default:
		return false
	}
}

func (l *Loop) drainWork() {
	for {
		select {
		case fn := <-l.work:
			fn()
		default:
			return
		}
	}
}

// Bootstrap restores the latest snapshot when one exists, then fires script
// on_init once either way and applies the commands it produced. Called once
// before Run.
func (l *Loop) Bootstrap() error {
	restored := false
	if l.deps.Snapshots != nil && l.deps.Snapshots.HasLatest() {
		w, err := l.deps.Snapshots.LoadLatest()
		if err != nil {
			return err
		}
		tick, err := snapshot.Restore(w, l.deps.Store, l.deps.Space, l.deps.PersistReg)
		if err != nil {
			return err
		}
		l.currentTick = tick
		restored = true
	}

	if l.deps.Scripts != nil {
		cmds, outs := l.deps.Scripts.RunInit(l.deps.Store, l.deps.Space, l.deps.Sessions, l.currentTick)
		for _, cmd := range cmds {
			l.deps.Stream.Append(ProducerScript, cmd)
		}
		l.outputs = append(l.outputs, outs...)
		for _, cmd := range l.deps.Stream.Resolve() {
			l.applyCommand(cmd)
		}
		l.deps.Stream.Clear()
	}

	l.deps.Logger.Info("world bootstrapped",
		log.Bool("restored", restored),
		log.Uint64("tick", l.currentTick),
		log.Int("entities", l.deps.Store.AliveCount()),
		log.String("mode", l.deps.Space.Kind().String()),
	)
	return nil
}

// Step runs one complete tick in the fixed order: drain inputs, run
// plugins, run script on_tick, resolve and apply the command stream, drain
// the event bus, emit per-session output, advance the counter, snapshot on
// cadence. It never blocks.
func (l *Loop) Step() Metrics {
	start := time.Now()
	tick := l.currentTick

	// Deferred work posted from other goroutines (script reloads, admin
	// re-enables) runs on the simulation thread first.
	l.drainWork()

	// 1-2. Drain the inbound channel and translate player input.
	l.drainInbound()

	// 3. Plugins, in priority order.
	pluginStart := time.Now()
	if l.deps.Plugins != nil {
		l.populatePluginComponents()
		for _, batch := range l.deps.Plugins.RunTick(tick) {
			for _, cmd := range batch.Commands {
				l.deps.Stream.Append(batch.PluginID, cmd)
			}
		}
	}
	pluginDur := time.Since(pluginStart)

	// 4. Script on_tick hooks, in registration order.
	if l.deps.Scripts != nil {
		cmds, outs := l.deps.Scripts.RunTick(l.deps.Store, l.deps.Space, l.deps.Sessions, tick)
		for _, cmd := range cmds {
			l.deps.Stream.Append(ProducerScript, cmd)
		}
		l.outputs = append(l.outputs, outs...)
	}

	// 5. Resolve and apply.
	resolved := l.deps.Stream.Resolve()
	for _, cmd := range resolved {
		l.applyCommand(cmd)
	}
	l.deps.Stream.Clear()

	// 6. Drain events; enter-room hooks fire here. Commands produced by
	// event handlers join next tick's stream.
	l.deps.Bus.Drain()
	l.deps.Bus.EndTick()

	// Lingering sessions whose grace interval elapsed leave the world.
	l.expireLingering(tick)

	// 7-8. Per-session output.
	l.flushOutputs(tick)

	// 9. Advance, record, snapshot on cadence.
	l.currentTick++
	duration := time.Since(start)
	metrics := Metrics{
		Tick:       l.currentTick,
		Duration:   duration,
		Commands:   len(resolved),
		Entities:   l.deps.Store.AliveCount(),
		PluginDur:  pluginDur,
		TickBudget: l.cfg.TickDuration(),
	}
	metrics.Log(l.deps.Logger)

	if l.cfg.SnapshotEvery > 0 && l.deps.Snapshots != nil && l.currentTick%l.cfg.SnapshotEvery == 0 {
		l.saveSnapshot()
	}
	return metrics
}

// Run drives Step at the configured rate until stop closes. Overruns are
// logged, never skipped.
func (l *Loop) Run(stop <-chan struct{}) {
	budget := l.cfg.TickDuration()
	for {
		select {
		case <-stop:
			l.deps.Logger.Info("tick loop stopping", log.Uint64("tick", l.currentTick))
			l.notifyShutdown()
			return
		default:
		}
		if l.cfg.MaxTicks > 0 && l.currentTick >= l.cfg.MaxTicks {
			return
		}

		tickStart := time.Now()
		l.Step()
		elapsed := time.Since(tickStart)
		if elapsed < budget {
			time.Sleep(budget - elapsed)
		}
	}
}

func (l *Loop) saveSnapshot() {
	w := snapshot.Capture(l.deps.Store, l.deps.Space, l.currentTick, time.Now().Unix(), l.deps.PersistReg)
	if _, err := l.deps.Snapshots.Save(w); err != nil {
		// The previous latest stays in place.
		l.deps.Logger.Error("snapshot write failed", log.Error(err))
	}
}

// populatePluginComponents caches every script-registered component's raw
// payload for host_get_component lookups this tick.
func (l *Loop) populatePluginComponents() {
	data := make(map[uint64]map[uint32][]byte)
	for _, cid := range l.deps.PersistReg.IDs() {
		adapter, _ := l.deps.PersistReg.Get(cid)
		for _, entity := range l.deps.Store.EntitiesWith(cid) {
			payload, ok := adapter.Capture(l.deps.Store, entity)
			if !ok {
				continue
			}
			byComp := data[entity.ToUint64()]
			if byComp == nil {
				byComp = make(map[uint32][]byte)
				data[entity.ToUint64()] = byComp
			}
			byComp[uint32(cid)] = payload
		}
	}
	l.deps.Plugins.PopulateComponents(data)
}

// expireLingering persists and despawns entities whose disconnected owner
// never came back.
func (l *Loop) expireLingering(tick uint64) {
	if l.cfg.LingerTicks == 0 {
		return
	}
	for _, lingering := range l.deps.Sessions.ExpiredLingering(tick, l.cfg.LingerTicks) {
		l.persistCharacter(lingering)
		if err := l.deps.Space.Remove(lingering.Entity); err != nil {
			l.deps.Logger.Debug("lingering entity had no location", log.String("entity", lingering.Entity.String()))
		}
		l.deps.Store.Despawn(lingering.Entity)
		l.deps.Sessions.RemoveLingering(lingering.Name)
		l.deps.Logger.Info("lingering entity expired",
			log.String("name", lingering.Name),
			log.String("entity", lingering.Entity.String()),
			log.Uint64("tick", tick),
		)
	}
}

func (l *Loop) persistCharacter(lingering session.Lingering) {
	if l.deps.Characters == nil {
		return
	}
	components := make(map[string][]byte)
	for _, cid := range l.deps.PersistReg.IDs() {
		adapter, _ := l.deps.PersistReg.Get(cid)
		if payload, ok := adapter.Capture(l.deps.Store, lingering.Entity); ok {
			components[adapter.Tag] = payload
		}
	}
	if err := l.deps.Characters.SaveCharacter(lingering.Name, lingering.Permission, components); err != nil {
		l.deps.Logger.Error("character save failed",
			log.String("name", lingering.Name),
			log.Error(err),
		)
	}
}

// send pushes one outbound message without ever blocking the simulation
// thread. A saturated channel drops the message with a warning.
func (l *Loop) send(msg session.Outbound) {
	select {
	case l.outbound <- msg:
	default:
		l.deps.Logger.Warn("outbound channel saturated, dropping message",
			log.Uint64("session", msg.Session),
		)
	}
}
