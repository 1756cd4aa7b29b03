package session

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/woo850115-hub/project-g/internal/core/ecs"
	"github.com/woo850115-hub/project-g/internal/core/space"
)

func Test_Registry_MonotonicIDs(t *testing.T) {
	r := NewRegistry()
	require.Equal(t, uint64(0), r.Create().ID)
	require.Equal(t, uint64(1), r.Create().ID)

	r.CreateWithID(10)
	require.Equal(t, uint64(11), r.Create().ID)
}

func Test_Registry_BindAndLookup(t *testing.T) {
	r := NewRegistry()
	s := r.Create()
	e := ecs.NewEntityID(1, 0)

	r.Bind(s.ID, e)
	require.Equal(t, StatePlaying, s.State)

	id, ok := r.SessionForEntity(e)
	require.True(t, ok)
	require.Equal(t, s.ID, id)

	got, ok := r.EntityForSession(s.ID)
	require.True(t, ok)
	require.Equal(t, e, got)
}

func Test_Registry_DisconnectMovesToLingering(t *testing.T) {
	r := NewRegistry()
	s := r.Create()
	s.Name = "alice"
	s.Permission = PermBuilder
	e := ecs.NewEntityID(4, 2)
	r.Bind(s.ID, e)

	entity, had := r.Disconnect(s.ID, 100)
	require.True(t, had)
	require.Equal(t, e, entity)
	require.Zero(t, r.Count())

	l, ok := r.FindLingering("alice")
	require.True(t, ok)
	require.Equal(t, e, l.Entity)
	require.Equal(t, uint64(100), l.DisconnectTick)
	require.Equal(t, PermBuilder, l.Permission)
}

func Test_Registry_LingeringExpiry(t *testing.T) {
	r := NewRegistry()
	for i, name := range []string{"bob", "alice"} {
		s := r.Create()
		s.Name = name
		r.Bind(s.ID, ecs.NewEntityID(uint32(i), 0))
		r.Disconnect(s.ID, uint64(100+i*100))
	}

	expired := r.ExpiredLingering(250, 100)
	require.Len(t, expired, 1)
	require.Equal(t, "bob", expired[0].Name)

	expired = r.ExpiredLingering(350, 100)
	require.Len(t, expired, 2)
	require.Equal(t, []string{"alice", "bob"}, []string{expired[0].Name, expired[1].Name},
		"expiry order is name-sorted for determinism")
}

func Test_Registry_RebindLingering(t *testing.T) {
	r := NewRegistry()
	s := r.Create()
	s.Name = "carol"
	s.Permission = PermAdmin
	e := ecs.NewEntityID(9, 1)
	r.Bind(s.ID, e)
	r.Disconnect(s.ID, 10)

	fresh := r.Create()
	entity, ok := r.RebindLingering(fresh.ID, "carol")
	require.True(t, ok)
	require.Equal(t, e, entity)
	require.Equal(t, StatePlaying, fresh.State)
	require.Equal(t, "carol", fresh.Name)
	require.Equal(t, PermAdmin, fresh.Permission)
	require.Zero(t, r.LingeringCount())

	id, bound := r.SessionForEntity(e)
	require.True(t, bound)
	require.Equal(t, fresh.ID, id)
}

func Test_TranslateLine_ActionSet(t *testing.T) {
	cases := []struct {
		line string
		want Action
	}{
		{"look", Action{Name: "look", Raw: "look"}},
		{"north", Action{Name: "move", Arg: "north", Raw: "north"}},
		{"e", Action{Name: "move", Arg: "east", Raw: "e"}},
		{"go west", Action{Name: "move", Arg: "west", Raw: "go west"}},
		{"attack goblin", Action{Name: "attack", Arg: "goblin", Raw: "attack goblin"}},
		{"get rusty sword", Action{Name: "get", Arg: "rusty sword", Raw: "get rusty sword"}},
		{"drop torch", Action{Name: "drop", Arg: "torch", Raw: "drop torch"}},
		{"inv", Action{Name: "inventory", Raw: "inv"}},
		{"say hello there", Action{Name: "say", Arg: "hello there", Raw: "say hello there"}},
		{"who", Action{Name: "who", Raw: "who"}},
		{"help", Action{Name: "help", Raw: "help"}},
		{"xyzzy plugh", Action{Name: "unknown", Raw: "xyzzy plugh"}},
		{"  ", Action{Name: "unknown", Raw: ""}},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, TranslateLine(tc.line), "line %q", tc.line)
	}
}

func Test_TranslateLine_AdminPrefix(t *testing.T) {
	got := TranslateLine("/teleport 10 20")
	require.Equal(t, Action{Name: "teleport", Arg: "10 20", Raw: "/teleport 10 20", Admin: true}, got)
}

func Test_ParseClientMessage(t *testing.T) {
	msg, err := ParseClientMessage(`{"type":"connect","name":"Player1"}`)
	require.NoError(t, err)
	require.Equal(t, ClientConnect, msg.Type)
	require.Equal(t, "Player1", msg.Name)

	msg, err = ParseClientMessage(`{"type":"move","dx":1,"dy":-1}`)
	require.NoError(t, err)
	require.Equal(t, int32(1), msg.Dx)
	require.Equal(t, int32(-1), msg.Dy)

	_, err = ParseClientMessage(`not json`)
	require.Error(t, err)
}

func Test_StateDelta_ElidesEmptyLists(t *testing.T) {
	msg := &StateDeltaMessage{Type: ServerStateDelta, Tick: 3}
	require.True(t, msg.Empty())
	wire := MarshalMessage(msg)
	require.NotContains(t, wire, "entered")
	require.NotContains(t, wire, "moved")
	require.NotContains(t, wire, "left")
}

func Test_AOI_DeltaConsistency(t *testing.T) {
	grid := space.NewGrid(space.GridConfig{Width: 64, Height: 64}, 8)
	tracker := NewAOITracker(8)

	self := ecs.NewEntityID(1, 0)
	other := ecs.NewEntityID(2, 0)
	require.NoError(t, grid.SetPosition(self, 32, 32))
	require.NoError(t, grid.SetPosition(other, 32, 32))

	tracker.OnPlaying(7)
	name := func(ecs.EntityID) (string, bool) { return "", false }

	// First delta: both entities enter.
	delta := tracker.Delta(grid, self, 7, 1, name)
	require.NotNil(t, delta)
	require.Len(t, delta.Entered, 2)
	require.Empty(t, delta.Moved)
	require.Empty(t, delta.Left)

	var selfSeen bool
	for _, e := range delta.Entered {
		if e.ID == self.ToUint64() {
			selfSeen = true
			require.True(t, e.IsSelf)
		}
	}
	require.True(t, selfSeen)

	// Move within range: exactly one moved entry.
	require.NoError(t, grid.MoveBy(other, 1, 0))
	delta = tracker.Delta(grid, self, 7, 2, name)
	require.Empty(t, delta.Entered)
	require.Equal(t, []EntityMovedWire{{ID: other.ToUint64(), X: 33, Y: 32}}, delta.Moved)

	// Leave range entirely: reported as left.
	require.NoError(t, grid.SetPosition(other, 60, 60))
	delta = tracker.Delta(grid, self, 7, 3, name)
	require.Equal(t, []uint64{other.ToUint64()}, delta.Left)

	// The client's applied set now equals the server's visible set.
	require.Len(t, tracker.Known(7), 1)
}

func Test_AOI_ClientSetMatchesServerAfterReplay(t *testing.T) {
	// Replay invariant: applying entered/moved/left to the client's set
	// always reproduces the server's current visible set.
	grid := space.NewGrid(space.GridConfig{Width: 32, Height: 32}, 4)
	tracker := NewAOITracker(4)

	self := ecs.NewEntityID(1, 0)
	require.NoError(t, grid.SetPosition(self, 16, 16))
	tracker.OnPlaying(1)

	others := []ecs.EntityID{
		ecs.NewEntityID(2, 0),
		ecs.NewEntityID(3, 0),
		ecs.NewEntityID(4, 0),
	}
	require.NoError(t, grid.SetPosition(others[0], 14, 16))
	require.NoError(t, grid.SetPosition(others[1], 30, 30))

	client := make(map[uint64][2]int32)
	apply := func(d *StateDeltaMessage) {
		for _, e := range d.Entered {
			client[e.ID] = [2]int32{e.X, e.Y}
		}
		for _, m := range d.Moved {
			client[m.ID] = [2]int32{m.X, m.Y}
		}
		for _, id := range d.Left {
			delete(client, id)
		}
	}
	verify := func(tick uint64) {
		d := tracker.Delta(grid, self, 1, tick, func(ecs.EntityID) (string, bool) { return "", false })
		apply(d)
		pos, _ := grid.PositionOf(self)
		visible := grid.EntitiesInRadius(pos.X, pos.Y, 4)
		require.Len(t, client, len(visible))
		for _, e := range visible {
			p, _ := grid.PositionOf(e)
			require.Equal(t, [2]int32{p.X, p.Y}, client[e.ToUint64()])
		}
	}

	verify(1)
	require.NoError(t, grid.SetPosition(others[1], 17, 17))
	require.NoError(t, grid.SetPosition(others[2], 15, 15))
	verify(2)
	require.NoError(t, grid.MoveBy(others[0], 1, 1))
	require.NoError(t, grid.Remove(others[2]))
	verify(3)
	require.NoError(t, grid.MoveBy(self, -4, 0))
	verify(4)
}
