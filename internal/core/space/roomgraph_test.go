package space

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/woo850115-hub/project-g/internal/core/ecs"
)

func twoRooms(t *testing.T) (*RoomGraph, ecs.EntityID, ecs.EntityID) {
	t.Helper()
	g := NewRoomGraph()
	roomA := ecs.NewEntityID(100, 0)
	roomB := ecs.NewEntityID(101, 0)
	g.RegisterRoom(roomA)
	g.RegisterRoom(roomB)
	require.NoError(t, g.SetExit(roomA, ExitEast, roomB))
	require.NoError(t, g.SetExit(roomB, ExitWest, roomA))
	return g, roomA, roomB
}

func Test_RoomGraph_PlaceMoveRemove(t *testing.T) {
	g, roomA, roomB := twoRooms(t)
	e := ecs.NewEntityID(1, 0)

	require.NoError(t, g.Place(e, roomA))
	loc, ok := g.LocationOf(e)
	require.True(t, ok)
	require.Equal(t, roomA, loc)

	require.NoError(t, g.Move(e, roomB))
	loc, _ = g.LocationOf(e)
	require.Equal(t, roomB, loc)

	// Move atomicity: exactly one occupant set contains the entity.
	require.NotContains(t, g.Occupants(roomA), e)
	require.Contains(t, g.Occupants(roomB), e)

	require.NoError(t, g.Remove(e))
	_, ok = g.LocationOf(e)
	require.False(t, ok)
}

func Test_RoomGraph_MoveRequiresExit(t *testing.T) {
	g, roomA, _ := twoRooms(t)
	roomC := ecs.NewEntityID(102, 0)
	g.RegisterRoom(roomC)

	e := ecs.NewEntityID(1, 0)
	require.NoError(t, g.Place(e, roomA))

	err := g.Move(e, roomC)
	require.ErrorIs(t, err, ErrNoExit)

	err = g.Move(e, ecs.NewEntityID(999, 0))
	require.ErrorIs(t, err, ErrNoSuchRoom)
}

func Test_RoomGraph_CustomExitLabels(t *testing.T) {
	g, roomA, roomB := twoRooms(t)
	require.NoError(t, g.SetExit(roomA, "portal", roomB))

	exits := g.Exits(roomA)
	require.Equal(t, []ExitSnapshot{
		{Label: ExitEast, Target: roomB},
		{Label: "portal", Target: roomB},
	}, exits)

	e := ecs.NewEntityID(2, 0)
	require.NoError(t, g.Place(e, roomA))
	require.NoError(t, g.Move(e, roomB))
}

func Test_RoomGraph_DoublePlaceFails(t *testing.T) {
	g, roomA, _ := twoRooms(t)
	e := ecs.NewEntityID(1, 0)
	require.NoError(t, g.Place(e, roomA))
	require.ErrorIs(t, g.Place(e, roomA), ErrAlreadyPlaced)
}

func Test_RoomGraph_BroadcastSetExcludesSelf(t *testing.T) {
	g, roomA, _ := twoRooms(t)
	x := ecs.NewEntityID(1, 0)
	y := ecs.NewEntityID(2, 0)
	require.NoError(t, g.Place(x, roomA))
	require.NoError(t, g.Place(y, roomA))

	set, err := g.BroadcastSet(x)
	require.NoError(t, err)
	require.Equal(t, []ecs.EntityID{y}, set)
}

func Test_RoomGraph_SnapshotRoundtrip(t *testing.T) {
	g, roomA, roomB := twoRooms(t)
	require.NoError(t, g.SetExit(roomA, "ladder", roomB))
	e1 := ecs.NewEntityID(1, 0)
	e2 := ecs.NewEntityID(2, 1)
	require.NoError(t, g.Place(e1, roomA))
	require.NoError(t, g.Place(e2, roomB))

	snap := g.Snapshot()
	require.Equal(t, KindRoomGraph, snap.Kind)

	restored := NewRoomGraph()
	require.NoError(t, restored.Restore(snap))
	require.Equal(t, snap, restored.Snapshot())

	loc, ok := restored.LocationOf(e2)
	require.True(t, ok)
	require.Equal(t, roomB, loc)
}

func Test_RoomGraph_RejectsGridSnapshot(t *testing.T) {
	grid := NewGrid(DefaultGridConfig(), 8)
	g := NewRoomGraph()
	require.ErrorIs(t, g.Restore(grid.Snapshot()), ErrWrongBackend)
}
