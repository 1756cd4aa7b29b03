package snapshot

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/require"

	"github.com/woo850115-hub/project-g/internal/core/ecs"
	"github.com/woo850115-hub/project-g/internal/core/observability/log"
	"github.com/woo850115-hub/project-g/internal/core/space"
)

const (
	nameID   ecs.ComponentID = 1
	healthID ecs.ComponentID = 2
)

type health struct {
	Current int `json:"current"`
	Max     int `json:"max"`
}

func testSchema() *ecs.Schema {
	s := ecs.NewSchema()
	s.Define(nameID, "Name")
	s.Define(healthID, "Health")
	return s
}

func testRegistry() *ecs.PersistRegistry {
	reg := ecs.NewPersistRegistry()
	reg.Register(nameID, ecs.PersistAdapter{
		Tag: "Name",
		Capture: func(s *ecs.Store, e ecs.EntityID) ([]byte, bool) {
			v, ok := s.Get(e, nameID)
			if !ok {
				return nil, false
			}
			buf, _ := json.Marshal(v.(string))
			return buf, true
		},
		Restore: func(s *ecs.Store, e ecs.EntityID, payload []byte) error {
			var v string
			if err := json.Unmarshal(payload, &v); err != nil {
				return err
			}
			return s.Set(e, nameID, v)
		},
	})
	reg.Register(healthID, ecs.PersistAdapter{
		Tag: "Health",
		Capture: func(s *ecs.Store, e ecs.EntityID) ([]byte, bool) {
			v, ok := s.Get(e, healthID)
			if !ok {
				return nil, false
			}
			buf, _ := json.Marshal(v.(health))
			return buf, true
		},
		Restore: func(s *ecs.Store, e ecs.EntityID, payload []byte) error {
			var v health
			if err := json.Unmarshal(payload, &v); err != nil {
				return err
			}
			return s.Set(e, healthID, v)
		},
	})
	return reg
}

func buildWorld(t *testing.T) (*ecs.Store, *space.RoomGraph) {
	t.Helper()
	store := ecs.NewStore(testSchema())
	rooms := space.NewRoomGraph()

	room := store.Spawn()
	rooms.RegisterRoom(room)

	hero := store.Spawn()
	require.NoError(t, store.Set(hero, nameID, "Hero"))
	require.NoError(t, store.Set(hero, healthID, health{Current: 80, Max: 100}))
	require.NoError(t, rooms.Place(hero, room))
	return store, rooms
}

func Test_CaptureRestore_Roundtrip(t *testing.T) {
	reg := testRegistry()
	store, rooms := buildWorld(t)

	snap := Capture(store, rooms, 42, 1700000000, reg)
	require.Equal(t, Version, snap.Version)
	require.Equal(t, uint64(42), snap.Tick)

	store2 := ecs.NewStore(testSchema())
	rooms2 := space.NewRoomGraph()
	tick, err := Restore(snap, store2, rooms2, reg)
	require.NoError(t, err)
	require.Equal(t, uint64(42), tick)

	hero := snap.Entities[1].Handle
	v, ok := store2.Get(hero, nameID)
	require.True(t, ok)
	require.Equal(t, "Hero", v)
	hp, ok := store2.Get(hero, healthID)
	require.True(t, ok)
	require.Equal(t, health{Current: 80, Max: 100}, hp)

	loc, ok := rooms2.LocationOf(hero)
	require.True(t, ok)
	require.Equal(t, snap.Entities[0].Handle, loc)
}

func Test_CaptureRestoreCapture_ByteEqual(t *testing.T) {
	reg := testRegistry()
	store, rooms := buildWorld(t)

	first := Capture(store, rooms, 10, 123, reg)
	firstBytes := Encode(first)

	store2 := ecs.NewStore(testSchema())
	rooms2 := space.NewRoomGraph()
	_, err := Restore(first, store2, rooms2, reg)
	require.NoError(t, err)

	second := Capture(store2, rooms2, 10, 123, reg)
	require.Equal(t, firstBytes, Encode(second))
}

func Test_EncodeDecode_Roundtrip(t *testing.T) {
	reg := testRegistry()
	store, rooms := buildWorld(t)
	snap := Capture(store, rooms, 7, 99, reg)

	decoded, err := Decode(Encode(snap))
	require.NoError(t, err)
	require.Equal(t, snap, decoded)
}

func Test_Decode_GridPayload(t *testing.T) {
	reg := testRegistry()
	store := ecs.NewStore(testSchema())
	grid := space.NewGrid(space.GridConfig{Width: 64, Height: 64}, 8)

	e := store.Spawn()
	require.NoError(t, grid.SetPosition(e, 32, 33))

	snap := Capture(store, grid, 3, 0, reg)
	decoded, err := Decode(Encode(snap))
	require.NoError(t, err)
	require.Equal(t, snap, decoded)

	grid2 := space.NewGrid(space.DefaultGridConfig(), 8)
	store2 := ecs.NewStore(testSchema())
	_, err = Restore(decoded, store2, grid2, reg)
	require.NoError(t, err)
	pos, ok := grid2.PositionOf(e)
	require.True(t, ok)
	require.Equal(t, space.Position{X: 32, Y: 33}, pos)
}

func Test_SchemaGate_UnknownVersionNeverLoads(t *testing.T) {
	reg := testRegistry()
	store, rooms := buildWorld(t)
	buf := Encode(Capture(store, rooms, 1, 0, reg))

	// Forge a bumped version and refresh the checksum so only the schema
	// gate can reject it.
	body := append([]byte(nil), buf[:len(buf)-8]...)
	binary.LittleEndian.PutUint32(body, Version+7)
	forged := rehash(body)

	_, err := Decode(forged)
	require.ErrorIs(t, err, ErrSchemaMismatch)

	_, err = DecodeWithMigrations(forged, nil)
	require.ErrorIs(t, err, ErrSchemaMismatch)
}

func Test_Decode_TruncatedFailsChecksum(t *testing.T) {
	reg := testRegistry()
	store, rooms := buildWorld(t)
	buf := Encode(Capture(store, rooms, 1, 0, reg))

	_, err := Decode(buf[:len(buf)-3])
	require.Error(t, err)
}

func Test_Restore_AllocatorPreservesIdentity(t *testing.T) {
	reg := testRegistry()
	store := ecs.NewStore(testSchema())
	rooms := space.NewRoomGraph()

	var ids []ecs.EntityID
	for i := 0; i < 10; i++ {
		ids = append(ids, store.Spawn())
	}
	store.Despawn(ids[3])
	store.Despawn(ids[7])
	reused1 := store.Spawn() // slot 7, generation 1
	reused2 := store.Spawn() // slot 3, generation 1
	require.Equal(t, ecs.NewEntityID(7, 1), reused1)
	require.Equal(t, ecs.NewEntityID(3, 1), reused2)

	snap := Capture(store, rooms, 5, 0, reg)
	store2 := ecs.NewStore(testSchema())
	rooms2 := space.NewRoomGraph()
	_, err := Restore(snap, store2, rooms2, reg)
	require.NoError(t, err)

	next := store2.Spawn()
	require.Equal(t, uint32(10), next.Index, "fresh slot, no collision with restored handles")
	for _, live := range store2.AllEntities() {
		require.NotEqual(t, live, ids[3])
		require.NotEqual(t, live, ids[7])
	}
}

func Test_Migration_ChainRuns(t *testing.T) {
	reg := testRegistry()
	store, rooms := buildWorld(t)
	buf := Encode(Capture(store, rooms, 9, 0, reg))

	// Forge a version-0 container; the migration rewrites it back to the
	// current version.
	old := append([]byte(nil), buf[:len(buf)-8]...)
	binary.LittleEndian.PutUint32(old, 0)
	forged := rehash(old)

	table := map[uint32]Migration{
		0: func(in []byte) ([]byte, error) {
			body := append([]byte(nil), in[:len(in)-8]...)
			binary.LittleEndian.PutUint32(body, Version)
			return rehash(body), nil
		},
	}

	w, err := DecodeWithMigrations(forged, table)
	require.NoError(t, err)
	require.Equal(t, uint64(9), w.Tick)
}

func Test_Manager_SaveLoadAndRotation(t *testing.T) {
	dir := t.TempDir()
	reg := testRegistry()
	store, rooms := buildWorld(t)

	mgr := NewManager(dir, 3, log.Nop())
	require.False(t, mgr.HasLatest())

	for tick := uint64(1); tick <= 5; tick++ {
		_, err := mgr.Save(Capture(store, rooms, tick, 0, reg))
		require.NoError(t, err)
	}
	require.True(t, mgr.HasLatest())

	w, err := mgr.LoadLatest()
	require.NoError(t, err)
	require.Equal(t, uint64(5), w.Tick)

	// Only the latest pointer plus three rotated files remain.
	entries, err := osReadDirNames(dir)
	require.NoError(t, err)
	require.Len(t, entries, 4)
}

func Test_Manager_LoadMissingFails(t *testing.T) {
	mgr := NewManager(t.TempDir(), 5, log.Nop())
	_, err := mgr.LoadLatest()
	require.Error(t, err)
}

// rehash appends a fresh xxhash footer over the body bytes.
func rehash(body []byte) []byte {
	out := append([]byte(nil), body...)
	return binary.LittleEndian.AppendUint64(out, xxhash.Sum64(out))
}

func osReadDirNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}
