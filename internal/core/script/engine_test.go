package script

import (
	"testing"

	"github.com/d5/tengo/v2"
	"github.com/stretchr/testify/require"

	"github.com/woo850115-hub/project-g/internal/core/command"
	"github.com/woo850115-hub/project-g/internal/core/ecs"
	"github.com/woo850115-hub/project-g/internal/core/observability/log"
	"github.com/woo850115-hub/project-g/internal/core/space"
)

const (
	nameID   ecs.ComponentID = 1
	healthID ecs.ComponentID = 2
)

func testSchema() *ecs.Schema {
	s := ecs.NewSchema()
	s.Define(nameID, "Name")
	s.Define(healthID, "Health")
	return s
}

func testScriptRegistry() *ecs.ScriptRegistry {
	reg := ecs.NewScriptRegistry()
	reg.Register(ecs.ScriptAdapter{
		Tag: "Name",
		ToScript: func(s *ecs.Store, e ecs.EntityID) (any, bool) {
			v, ok := s.Get(e, nameID)
			if !ok {
				return nil, false
			}
			return v.(string), true
		},
		FromScript: func(s *ecs.Store, e ecs.EntityID, value any) error {
			str, _ := value.(string)
			return s.Set(e, nameID, str)
		},
	})
	reg.Register(ecs.ScriptAdapter{
		Tag: "Health",
		ToScript: func(s *ecs.Store, e ecs.EntityID) (any, bool) {
			v, ok := s.Get(e, healthID)
			if !ok {
				return nil, false
			}
			return v, true
		},
		FromScript: func(s *ecs.Store, e ecs.EntityID, value any) error {
			return s.Set(e, healthID, value)
		},
	})
	return reg
}

type fakeSessions struct {
	byEntity map[ecs.EntityID]uint64
	byID     map[uint64]ecs.EntityID
	levels   map[uint64]int
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{
		byEntity: make(map[ecs.EntityID]uint64),
		byID:     make(map[uint64]ecs.EntityID),
		levels:   make(map[uint64]int),
	}
}

func (f *fakeSessions) bind(id uint64, e ecs.EntityID) {
	f.byEntity[e] = id
	f.byID[id] = e
}

func (f *fakeSessions) SessionForEntity(e ecs.EntityID) (uint64, bool) {
	id, ok := f.byEntity[e]
	return id, ok
}

func (f *fakeSessions) EntityForSession(id uint64) (ecs.EntityID, bool) {
	e, ok := f.byID[id]
	return e, ok
}

func (f *fakeSessions) ActiveSessions() []uint64 {
	var out []uint64
	for id := range f.byID {
		out = append(out, id)
	}
	return out
}

func (f *fakeSessions) PermissionLevel(id uint64) int { return f.levels[id] }

type testWorld struct {
	engine   *Engine
	store    *ecs.Store
	rooms    *space.RoomGraph
	sessions *fakeSessions
}

func newTestWorld(t *testing.T) *testWorld {
	t.Helper()
	schema := testSchema()
	return &testWorld{
		engine:   NewEngine(DefaultConfig(), schema, testScriptRegistry(), nil, log.Nop()),
		store:    ecs.NewStore(schema),
		rooms:    space.NewRoomGraph(),
		sessions: newFakeSessions(),
	}
}

func Test_Engine_OnTickEmitsCommands(t *testing.T) {
	w := newTestWorld(t)
	require.NoError(t, w.engine.LoadSource("tick.tengo", `
hooks.on_tick(func(world, tick) {
	e := world.spawn()
	world.set(e, "Name", "goblin")
})
`))

	cmds, _ := w.engine.RunTick(w.store, w.rooms, w.sessions, 7)
	require.Len(t, cmds, 1)
	require.Equal(t, command.KindSet, cmds[0].Kind)
	require.Equal(t, command.EncDynamic, cmds[0].Encoding)
	require.Equal(t, "goblin", cmds[0].Value)
	require.Equal(t, 1, w.store.AliveCount(), "spawn is immediate")
}

func Test_Engine_StatePersistsAcrossRuns(t *testing.T) {
	w := newTestWorld(t)
	require.NoError(t, w.engine.LoadSource("count.tengo", `
hooks.on_tick(func(world, tick) {
	n := __state.count
	if n == undefined { n = 0 }
	__state.count = n + 1
	if __state.count == 3 { world.log_info("three") }
})
`))

	for tick := uint64(1); tick <= 3; tick++ {
		w.engine.RunTick(w.store, w.rooms, w.sessions, tick)
	}
	count, ok := tengo.ToInt64(w.engine.scripts[0].state.Value["count"])
	require.True(t, ok)
	require.Equal(t, int64(3), count)
}

func Test_Engine_ActionConsumedShortCircuits(t *testing.T) {
	w := newTestWorld(t)
	require.NoError(t, w.engine.LoadSource("a.tengo", `
hooks.on_action("look", func(world, ctx) {
	world.send(ctx.session, "first handler")
	return true
})
`))
	require.NoError(t, w.engine.LoadSource("b.tengo", `
hooks.on_action("look", func(world, ctx) {
	world.send(ctx.session, "second handler")
	return true
})
`))

	consumed, _, outs := w.engine.RunAction(w.store, w.rooms, w.sessions, 1,
		"look", map[string]any{"session": uint64(5)})
	require.True(t, consumed)
	require.Len(t, outs, 1)
	require.Equal(t, Output{Session: 5, Text: "first handler"}, outs[0])
}

func Test_Engine_ActionNotConsumedRunsAll(t *testing.T) {
	w := newTestWorld(t)
	require.NoError(t, w.engine.LoadSource("a.tengo", `
hooks.on_action("wave", func(world, ctx) {
	world.send(ctx.session, "one")
	return false
})
hooks.on_action("wave", func(world, ctx) {
	world.send(ctx.session, "two")
	return false
})
`))

	consumed, _, outs := w.engine.RunAction(w.store, w.rooms, w.sessions, 1,
		"wave", map[string]any{"session": uint64(9)})
	require.False(t, consumed)
	require.Len(t, outs, 2)
}

func Test_Engine_AdminPermissionGate(t *testing.T) {
	w := newTestWorld(t)
	require.NoError(t, w.engine.LoadSource("admin.tengo", `
hooks.on_admin("shutdown", 2, func(world, ctx, level) {
	world.send(ctx.session, "granted")
})
`))

	min, known := w.engine.AdminLevel("shutdown")
	require.True(t, known)
	require.Equal(t, 2, min)

	// Below the registered minimum: silent drop, no side effects.
	handled, _, outs := w.engine.RunAdmin(w.store, w.rooms, w.sessions, 1,
		"shutdown", 1, map[string]any{"session": uint64(1)})
	require.False(t, handled)
	require.Empty(t, outs)

	handled, _, outs = w.engine.RunAdmin(w.store, w.rooms, w.sessions, 1,
		"shutdown", 2, map[string]any{"session": uint64(1)})
	require.True(t, handled)
	require.Len(t, outs, 1)
}

func Test_Engine_OnInitBuildsRooms(t *testing.T) {
	w := newTestWorld(t)
	require.NoError(t, w.engine.LoadSource("world.tengo", `
hooks.on_init(func(world) {
	r1 := world.spawn()
	r2 := world.spawn()
	world.register_room(r1)
	world.register_room(r2)
	world.set_exit(r1, "east", r2)
	world.set_exit(r2, "west", r1)
	__state.r1 = r1
	__state.r2 = r2
})
`))

	w.engine.RunInit(w.store, w.rooms, w.sessions, 0)
	require.Equal(t, 2, w.rooms.RoomCount())
	require.Equal(t, 2, w.store.AliveCount())
}

func Test_Engine_MoveFiresEnterRoomHook(t *testing.T) {
	w := newTestWorld(t)
	require.NoError(t, w.engine.LoadSource("move.tengo", `
hooks.on_enter_room(func(world, entity, room, old_room) {
	world.broadcast(entity, "someone arrives")
	__state.entered = room
})
hooks.on_action("go", func(world, ctx) {
	world.move(ctx.entity, ctx.target)
	return true
})
`))

	roomA := w.store.Spawn()
	roomB := w.store.Spawn()
	w.rooms.RegisterRoom(roomA)
	w.rooms.RegisterRoom(roomB)
	require.NoError(t, w.rooms.SetExit(roomA, "east", roomB))

	mover := w.store.Spawn()
	witness := w.store.Spawn()
	require.NoError(t, w.rooms.Place(mover, roomA))
	require.NoError(t, w.rooms.Place(witness, roomB))
	w.sessions.bind(11, witness)

	consumed, _, outs := w.engine.RunAction(w.store, w.rooms, w.sessions, 1, "go", map[string]any{
		"entity": int64(mover.ToUint64()),
		"target": int64(roomB.ToUint64()),
	})
	require.True(t, consumed)

	loc, _ := w.rooms.LocationOf(mover)
	require.Equal(t, roomB, loc)
	require.Equal(t, []Output{{Session: 11, Text: "someone arrives"}}, outs)
}

func Test_Engine_InvalidMoveSurfacesAsValueError(t *testing.T) {
	w := newTestWorld(t)
	require.NoError(t, w.engine.LoadSource("bad.tengo", `
hooks.on_action("go", func(world, ctx) {
	r := world.move(ctx.entity, ctx.target)
	if is_error(r) { __state.failed = true }
	return true
})
`))

	roomA := w.store.Spawn()
	roomB := w.store.Spawn()
	w.rooms.RegisterRoom(roomA)
	w.rooms.RegisterRoom(roomB)
	e := w.store.Spawn()
	require.NoError(t, w.rooms.Place(e, roomA))

	w.engine.RunAction(w.store, w.rooms, w.sessions, 1, "go", map[string]any{
		"entity": int64(e.ToUint64()),
		"target": int64(roomB.ToUint64()),
	})

	require.Equal(t, tengo.TrueValue, w.engine.scripts[0].state.Value["failed"])
	loc, _ := w.rooms.LocationOf(e)
	require.Equal(t, roomA, loc, "entity must not move without an exit")
}

func Test_Engine_WrongBackendOperationErrors(t *testing.T) {
	w := newTestWorld(t)
	require.NoError(t, w.engine.LoadSource("grid.tengo", `
hooks.on_tick(func(world, tick) {
	r := world.move_by(1, 1, 0)
	if is_error(r) { __state.rejected = true }
})
`))

	w.engine.RunTick(w.store, w.rooms, w.sessions, 1)
	require.NotNil(t, w.engine.scripts[0].state.Value["rejected"])
}

func Test_Engine_ComponentRoundtripThroughScript(t *testing.T) {
	w := newTestWorld(t)
	e := w.store.Spawn()
	require.NoError(t, w.store.Set(e, nameID, "Hero"))

	require.NoError(t, w.engine.LoadSource("read.tengo", `
hooks.on_tick(func(world, tick) {
	__state.name = world.get(__state.target, "Name")
})
`))
	w.engine.scripts[0].state.Value["target"] = &tengo.Int{Value: int64(e.ToUint64())}

	w.engine.RunTick(w.store, w.rooms, w.sessions, 1)
	name, ok := tengo.ToString(w.engine.scripts[0].state.Value["name"])
	require.True(t, ok)
	require.Equal(t, "Hero", name)
}

func Test_Engine_ScriptErrorDoesNotPropagate(t *testing.T) {
	w := newTestWorld(t)
	require.NoError(t, w.engine.LoadSource("ok.tengo", `
hooks.on_tick(func(world, tick) { world.log_info("fine") })
`))
	require.NoError(t, w.engine.LoadSource("boom.tengo", `
hooks.on_tick(func(world, tick) { z := tick - tick; x := 1 / z; world.log_info(string(x)) })
`))

	// The failing script is contained; the tick completes.
	require.NotPanics(t, func() {
		w.engine.RunTick(w.store, w.rooms, w.sessions, 1)
	})
}

func Test_Engine_RandIsDeterministicPerTick(t *testing.T) {
	w := newTestWorld(t)
	require.NoError(t, w.engine.LoadSource("rand.tengo", `
hooks.on_tick(func(world, tick) {
	__state.roll = world.rand(100)
})
`))

	w.engine.RunTick(w.store, w.rooms, w.sessions, 42)
	first := w.engine.scripts[0].state.Value["roll"]
	w.engine.RunTick(w.store, w.rooms, w.sessions, 42)
	second := w.engine.scripts[0].state.Value["roll"]
	require.Equal(t, first, second)
}

func Test_Engine_CompileErrorReported(t *testing.T) {
	w := newTestWorld(t)
	err := w.engine.LoadSource("broken.tengo", `this is not tengo at all {{{`)
	require.Error(t, err)
	require.Zero(t, w.engine.ScriptCount())
}
