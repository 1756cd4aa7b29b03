package script

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"

	"github.com/woo850115-hub/project-g/internal/core/command"
	"github.com/woo850115-hub/project-g/internal/core/ecs"
	"github.com/woo850115-hub/project-g/internal/core/observability/log"
	"github.com/woo850115-hub/project-g/internal/core/space"
)

// Config bounds script execution. MaxAllocs is the deterministic work
// budget: the VM aborts once a run allocates that many objects, which keeps
// runaway scripts from eating the tick regardless of wall clock.
type Config struct {
	MaxAllocs       int64 `yaml:"max_allocs"`
	MaxConstObjects int   `yaml:"max_const_objects"`
}

func DefaultConfig() Config {
	return Config{MaxAllocs: 1_000_000, MaxConstObjects: 65536}
}

// Only side-effect-free, deterministic stdlib modules are importable. No
// os, no rand, no times.
var sandboxModules = []string{"math", "text", "fmt"}

// SessionDirectory is the read-only session view hooks get.
type SessionDirectory interface {
	SessionForEntity(entity ecs.EntityID) (uint64, bool)
	EntityForSession(id uint64) (ecs.EntityID, bool)
	ActiveSessions() []uint64
	PermissionLevel(id uint64) int
}

// Output is one queued line for a session's transport.
type Output struct {
	Session uint64
	Text    string
}

// ErrNoWorld is returned by world functions invoked outside a hook scope.
var ErrNoWorld = errors.New("script: world proxy used outside a hook")

// loadedScript is one compiled source file. The compiled program re-runs in
// full on every dispatch: top-level code re-registers its hooks into
// run-local tables and the trailing dispatch fragment routes __hook to
// them. Cross-run state lives in the host-owned __state map.
type loadedScript struct {
	name     string
	compiled *tengo.Compiled
	state    *tengo.Map
}

// Engine hosts every loaded gameplay script inside a sandboxed tengo VM.
type Engine struct {
	cfg    Config
	reg    *ecs.ScriptRegistry
	schema *ecs.Schema

	scripts []*loadedScript

	content *Content
	colors  map[string]string
	logger  log.Log

	// adminLevels is the host-side permission gate: command name to the
	// minimum level any script registered for it.
	adminLevels map[string]int64

	// ctx is non-nil only while a hook dispatch is on the stack.
	ctx *hostContext
}

// hostContext scopes one dispatch: the world proxies are valid only while
// it is installed.
type hostContext struct {
	store    *ecs.Store
	space    space.Model
	sessions SessionDirectory
	tick     uint64

	commands  []command.Command
	outputs   []Output
	randState uint64

	// queued programmatic on_enter_room firings, delivered after the
	// current dispatch unwinds (tengo programs do not re-enter).
	enterRoomQueue []enterRoomEvent
}

type enterRoomEvent struct {
	entity  ecs.EntityID
	room    ecs.EntityID
	oldRoom ecs.EntityID
	hasOld  bool
}

func NewEngine(cfg Config, schema *ecs.Schema, reg *ecs.ScriptRegistry, content *Content, logger log.Log) *Engine {
	if content == nil {
		content = NewContent()
	}
	return &Engine{
		cfg:         cfg,
		reg:         reg,
		schema:      schema,
		content:     content,
		colors:      colorTable(),
		logger:      logger,
		adminLevels: make(map[string]int64),
	}
}

func (e *Engine) ScriptCount() int { return len(e.scripts) }

// AdminLevel reports the registered minimum permission level for an admin
// command.
func (e *Engine) AdminLevel(cmd string) (int, bool) {
	lvl, ok := e.adminLevels[cmd]
	return int(lvl), ok
}

// LoadDirectory compiles every *.tengo file in the directory in sorted
// order. Load order is registration order for hook dispatch.
func (e *Engine) LoadDirectory(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("script: read dir %s: %w", dir, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".tengo") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	for _, name := range names {
		src, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("script: read %s: %w", name, err)
		}
		if err := e.LoadSource(name, string(src)); err != nil {
			return err
		}
	}
	return nil
}

// LoadSource compiles one script. The engine wraps the user source with the
// hooks prelude and the dispatch trailer, then runs it once so top-level
// registrations (admin levels in particular) become visible.
func (e *Engine) LoadSource(name, source string) error {
	compiled, state, err := e.compile(source)
	if err != nil {
		return fmt.Errorf("script: compile %s: %w", name, err)
	}
	ls := &loadedScript{name: name, compiled: compiled, state: state}
	if err := e.loadRun(ls); err != nil {
		return fmt.Errorf("script: load %s: %w", name, err)
	}
	e.scripts = append(e.scripts, ls)
	return nil
}

// Reload recompiles a previously loaded script in place, keeping its
// registration order and persistent state.
func (e *Engine) Reload(name, source string) error {
	for _, ls := range e.scripts {
		if ls.name != name {
			continue
		}
		compiled, _, err := e.compile(source)
		if err != nil {
			return fmt.Errorf("script: recompile %s: %w", name, err)
		}
		ls.compiled = compiled
		if err := e.loadRun(ls); err != nil {
			return fmt.Errorf("script: reload %s: %w", name, err)
		}
		e.logger.Info("script reloaded", log.String("script", name))
		return nil
	}
	return fmt.Errorf("script: reload unknown script %s", name)
}

func (e *Engine) compile(source string) (*tengo.Compiled, *tengo.Map, error) {
	full := hooksPrelude + "\n" + source + "\n" + dispatchTrailer
	s := tengo.NewScript([]byte(full))
	s.SetImports(stdlib.GetModuleMap(sandboxModules...))
	if e.cfg.MaxAllocs > 0 {
		s.SetMaxAllocs(e.cfg.MaxAllocs)
	}
	if e.cfg.MaxConstObjects > 0 {
		s.SetMaxConstObjects(e.cfg.MaxConstObjects)
	}

	state := &tengo.Map{Value: map[string]tengo.Object{}}
	world := e.worldModule()

	for name, value := range map[string]any{
		"__hook":     "",
		"__tick":     int64(0),
		"__action":   "",
		"__level":    int64(0),
		"__session":  int64(0),
		"__entity":   int64(0),
		"__room":     int64(0),
		"__old_room": int64(-1),
		"__consumed": false,
	} {
		if err := s.Add(name, value); err != nil {
			return nil, nil, err
		}
	}
	if err := s.Add("__state", state); err != nil {
		return nil, nil, err
	}
	if err := s.Add("__ctx", &tengo.Map{Value: map[string]tengo.Object{}}); err != nil {
		return nil, nil, err
	}
	if err := s.Add("__admin_levels", &tengo.Map{Value: map[string]tengo.Object{}}); err != nil {
		return nil, nil, err
	}
	if err := s.Add("world", world); err != nil {
		return nil, nil, err
	}

	compiled, err := s.Compile()
	if err != nil {
		return nil, nil, err
	}
	return compiled, state, nil
}

// loadRun executes the script once outside any hook so top-level code runs
// and admin registrations surface.
func (e *Engine) loadRun(ls *loadedScript) error {
	if err := e.runScript(ls, ""); err != nil {
		return err
	}
	levels := ls.compiled.Get("__admin_levels")
	for cmd, lvl := range levels.Map() {
		min, ok := lvl.(int64)
		if !ok {
			continue
		}
		if existing, seen := e.adminLevels[cmd]; !seen || min < existing {
			e.adminLevels[cmd] = min
		}
	}
	return nil
}

func (e *Engine) runScript(ls *loadedScript, hook string) error {
	if err := ls.compiled.Set("__hook", hook); err != nil {
		return err
	}
	if err := ls.compiled.Set("__state", ls.state); err != nil {
		return err
	}
	tick := int64(0)
	if e.ctx != nil {
		tick = int64(e.ctx.tick)
	}
	if err := ls.compiled.Set("__tick", tick); err != nil {
		return err
	}
	return ls.compiled.Run()
}

// Dispatch context plumbing.

// Scope installs the per-dispatch world context. The returned close func
// uninstalls it and hands back everything the hooks produced.
func (e *Engine) scope(store *ecs.Store, model space.Model, sessions SessionDirectory, tick uint64) func() ([]command.Command, []Output) {
	e.ctx = &hostContext{
		store:     store,
		space:     model,
		sessions:  sessions,
		tick:      tick,
		randState: tick*2654435761 + 1,
	}
	return func() ([]command.Command, []Output) {
		ctx := e.ctx
		e.ctx = nil
		return ctx.commands, ctx.outputs
	}
}

// drainEnterRoomQueue delivers programmatic fire_enter_room calls queued by
// hooks, including any raised transitively, without re-entering a running
// program.
func (e *Engine) drainEnterRoomQueue() {
	for e.ctx != nil && len(e.ctx.enterRoomQueue) > 0 {
		ev := e.ctx.enterRoomQueue[0]
		e.ctx.enterRoomQueue = e.ctx.enterRoomQueue[1:]
		e.fireEnterRoom(ev)
	}
}

func (e *Engine) fireEnterRoom(ev enterRoomEvent) {
	oldRoom := int64(-1)
	if ev.hasOld {
		oldRoom = int64(ev.oldRoom.ToUint64())
	}
	for _, ls := range e.scripts {
		if err := ls.compiled.Set("__entity", int64(ev.entity.ToUint64())); err != nil {
			continue
		}
		if err := ls.compiled.Set("__room", int64(ev.room.ToUint64())); err != nil {
			continue
		}
		if err := ls.compiled.Set("__old_room", oldRoom); err != nil {
			continue
		}
		if err := e.runScript(ls, "enter_room"); err != nil {
			e.scriptError(ls, "on_enter_room", err)
		}
	}
}

// RunInit fires on_init exactly once, at world construction after any
// snapshot restore.
func (e *Engine) RunInit(store *ecs.Store, model space.Model, sessions SessionDirectory, tick uint64) ([]command.Command, []Output) {
	done := e.scope(store, model, sessions, tick)
	for _, ls := range e.scripts {
		if err := e.runScript(ls, "init"); err != nil {
			e.scriptError(ls, "on_init", err)
		}
	}
	e.drainEnterRoomQueue()
	return done()
}

// RunTick fires on_tick hooks in registration order.
func (e *Engine) RunTick(store *ecs.Store, model space.Model, sessions SessionDirectory, tick uint64) ([]command.Command, []Output) {
	done := e.scope(store, model, sessions, tick)
	for _, ls := range e.scripts {
		if err := e.runScript(ls, "tick"); err != nil {
			e.scriptError(ls, "on_tick", err)
		}
	}
	e.drainEnterRoomQueue()
	return done()
}

// RunAction dispatches a named game action. The first callback returning
// true consumes the action and short-circuits the rest.
func (e *Engine) RunAction(store *ecs.Store, model space.Model, sessions SessionDirectory, tick uint64,
	action string, ctx map[string]any) (bool, []command.Command, []Output) {

	done := e.scope(store, model, sessions, tick)
	consumed := e.dispatchAction("action", action, 0, ctx)
	e.drainEnterRoomQueue()
	cmds, outs := done()
	return consumed, cmds, outs
}

// RunAdmin dispatches a privileged command. The host checks the session's
// level against the registered minimum before any script code runs; a
// failed check is a silent drop with a log entry.
func (e *Engine) RunAdmin(store *ecs.Store, model space.Model, sessions SessionDirectory, tick uint64,
	cmd string, level int, ctx map[string]any) (bool, []command.Command, []Output) {

	min, known := e.adminLevels[cmd]
	if !known {
		return false, nil, nil
	}
	if int64(level) < min {
		e.logger.Warn("admin command denied",
			log.String("command", cmd),
			log.Int("level", level),
			log.Int64("required", min),
		)
		return false, nil, nil
	}

	done := e.scope(store, model, sessions, tick)
	handled := e.dispatchAction("admin", cmd, int64(level), ctx)
	e.drainEnterRoomQueue()
	cmds, outs := done()
	return handled, cmds, outs
}

// RunConnect fires on_connect for a session that is ready for output.
func (e *Engine) RunConnect(store *ecs.Store, model space.Model, sessions SessionDirectory, tick uint64,
	sessionID uint64) ([]command.Command, []Output) {

	done := e.scope(store, model, sessions, tick)
	for _, ls := range e.scripts {
		if err := ls.compiled.Set("__session", int64(sessionID)); err != nil {
			continue
		}
		if err := e.runScript(ls, "connect"); err != nil {
			e.scriptError(ls, "on_connect", err)
		}
	}
	e.drainEnterRoomQueue()
	return done()
}

// RunEnterRoom fires on_enter_room for a completed move.
func (e *Engine) RunEnterRoom(store *ecs.Store, model space.Model, sessions SessionDirectory, tick uint64,
	entity, room ecs.EntityID, oldRoom *ecs.EntityID) ([]command.Command, []Output) {

	done := e.scope(store, model, sessions, tick)
	ev := enterRoomEvent{entity: entity, room: room}
	if oldRoom != nil {
		ev.oldRoom = *oldRoom
		ev.hasOld = true
	}
	e.fireEnterRoom(ev)
	e.drainEnterRoomQueue()
	return done()
}

func (e *Engine) dispatchAction(hook, action string, level int64, ctx map[string]any) bool {
	ctxObj, err := tengo.FromInterface(normalizeDynamic(ctx))
	if err != nil {
		ctxObj = &tengo.Map{Value: map[string]tengo.Object{}}
	}
	consumed := false
	for _, ls := range e.scripts {
		if consumed {
			break
		}
		if err := ls.compiled.Set("__action", action); err != nil {
			continue
		}
		if err := ls.compiled.Set("__level", level); err != nil {
			continue
		}
		if err := ls.compiled.Set("__ctx", ctxObj); err != nil {
			continue
		}
		if err := ls.compiled.Set("__consumed", false); err != nil {
			continue
		}
		if err := e.runScript(ls, hook); err != nil {
			e.scriptError(ls, "on_"+hook, err)
			continue
		}
		if v, ok := ls.compiled.Get("__consumed").Value().(bool); ok && v {
			consumed = true
		}
	}
	return consumed
}

// scriptError surfaces script failures to the game designer via logs, never
// to the player and never beyond the hook boundary.
func (e *Engine) scriptError(ls *loadedScript, hook string, err error) {
	e.logger.Warn("script hook failed",
		log.String("script", ls.name),
		log.String("hook", hook),
		log.Error(err),
	)
}
