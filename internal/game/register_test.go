package game

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/woo850115-hub/project-g/internal/core/ecs"
	"github.com/woo850115-hub/project-g/internal/core/space"
)

func Test_PersistAdapters_Roundtrip(t *testing.T) {
	schema := BuildSchema()
	reg := ecs.NewPersistRegistry()
	RegisterPersist(reg)

	store := ecs.NewStore(schema)
	e := store.Spawn()
	other := store.Spawn()
	require.NoError(t, store.Set(e, CompName, Name("Hero")))
	require.NoError(t, store.Set(e, CompHealth, Health{Current: 42, Max: 100}))
	require.NoError(t, store.Set(e, CompInventory, Inventory{Items: []ecs.EntityID{other}}))
	require.NoError(t, store.Set(e, CompCombatTarget, CombatTarget{Target: other}))
	require.NoError(t, store.Set(e, CompPlayer, Tag{}))

	restored := ecs.NewStore(schema)
	restored.Seat(e)
	restored.Seat(other)
	for _, cid := range reg.IDs() {
		adapter, _ := reg.Get(cid)
		if payload, ok := adapter.Capture(store, e); ok {
			require.NoError(t, adapter.Restore(restored, e, payload))
		}
	}

	v, _ := restored.Get(e, CompName)
	require.Equal(t, Name("Hero"), v)
	v, _ = restored.Get(e, CompHealth)
	require.Equal(t, Health{Current: 42, Max: 100}, v)
	v, _ = restored.Get(e, CompInventory)
	require.Equal(t, Inventory{Items: []ecs.EntityID{other}}, v)
	v, _ = restored.Get(e, CompCombatTarget)
	require.Equal(t, CombatTarget{Target: other}, v)
	require.True(t, restored.Has(e, CompPlayer))
}

func Test_PersistAdapters_Deterministic(t *testing.T) {
	schema := BuildSchema()
	reg := ecs.NewPersistRegistry()
	RegisterPersist(reg)

	store := ecs.NewStore(schema)
	e := store.Spawn()
	require.NoError(t, store.Set(e, CompHealth, Health{Current: 7, Max: 9}))

	adapter, _ := reg.Get(CompHealth)
	first, _ := adapter.Capture(store, e)
	second, _ := adapter.Capture(store, e)
	require.Equal(t, first, second)
}

func Test_ScriptAdapters_TagSemantics(t *testing.T) {
	schema := BuildSchema()
	reg := ecs.NewScriptRegistry()
	RegisterScript(reg)

	store := ecs.NewStore(schema)
	e := store.Spawn()

	adapter, ok := reg.Get("Player")
	require.True(t, ok)

	_, present := adapter.ToScript(store, e)
	require.False(t, present)

	require.NoError(t, adapter.FromScript(store, e, true))
	v, present := adapter.ToScript(store, e)
	require.True(t, present)
	require.Equal(t, true, v)

	require.NoError(t, adapter.FromScript(store, e, false))
	_, present = adapter.ToScript(store, e)
	require.False(t, present)
}

func Test_ScriptAdapters_HealthRecord(t *testing.T) {
	schema := BuildSchema()
	reg := ecs.NewScriptRegistry()
	RegisterScript(reg)

	store := ecs.NewStore(schema)
	e := store.Spawn()

	adapter, _ := reg.Get("Health")
	require.NoError(t, adapter.FromScript(store, e, map[string]any{
		"current": int64(60),
		"max":     int64(80),
	}))

	v, ok := store.Get(e, CompHealth)
	require.True(t, ok)
	require.Equal(t, Health{Current: 60, Max: 80}, v)

	rec, ok := adapter.ToScript(store, e)
	require.True(t, ok)
	require.Equal(t, map[string]any{"current": int64(60), "max": int64(80)}, rec)

	require.Error(t, adapter.FromScript(store, e, "not a record"))
}

func Test_ScriptAdapters_ReferenceHandles(t *testing.T) {
	schema := BuildSchema()
	reg := ecs.NewScriptRegistry()
	RegisterScript(reg)

	store := ecs.NewStore(schema)
	e := store.Spawn()
	target := ecs.NewEntityID(9, 3)

	adapter, _ := reg.Get("CombatTarget")
	require.NoError(t, adapter.FromScript(store, e, int64(target.ToUint64())))

	v, ok := adapter.ToScript(store, e)
	require.True(t, ok)
	require.Equal(t, int64(target.ToUint64()), v)
}

func Test_SpawnPlayer_StandardComponents(t *testing.T) {
	store := ecs.NewStore(BuildSchema())
	e := SpawnPlayer(store, "Alice")

	name, ok := NameOf(store, e)
	require.True(t, ok)
	require.Equal(t, "Alice", name)
	require.True(t, store.Has(e, CompPlayer))
	v, _ := store.Get(e, CompHealth)
	require.Equal(t, Health{Current: 100, Max: 100}, v)
}

func Test_FullWorld_SnapshotCycle(t *testing.T) {
	// A room graph holding a game-component world survives a spatial
	// snapshot/restore cycle unchanged.
	schema := BuildSchema()
	persist := ecs.NewPersistRegistry()
	RegisterPersist(persist)

	store := ecs.NewStore(schema)
	rooms := space.NewRoomGraph()
	room := store.Spawn()
	rooms.RegisterRoom(room)
	require.NoError(t, store.Set(room, CompName, Name("Town Square")))
	require.NoError(t, store.Set(room, CompDescription, Description("A dusty plaza.")))

	player := SpawnPlayer(store, "Bob")
	require.NoError(t, rooms.Place(player, room))

	snap := rooms.Snapshot()
	restored := space.NewRoomGraph()
	require.NoError(t, restored.Restore(snap))
	require.Equal(t, snap, restored.Snapshot())
}
