package command

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/woo850115-hub/project-g/internal/core/ecs"
)

const healthID ecs.ComponentID = 2

func entity(idx uint32) ecs.EntityID { return ecs.NewEntityID(idx, 0) }

func Test_Resolve_LastWriterWinsSameProducer(t *testing.T) {
	s := NewStream(nil)
	s.RegisterProducer(Producer{ID: "p", Priority: 10})

	e := entity(1)
	s.Append("p", Set(e, healthID, 80))
	s.Append("p", Set(e, healthID, 60))

	resolved := s.Resolve()
	require.Len(t, resolved, 1)
	require.Equal(t, 60, resolved[0].Value)
}

func Test_Resolve_DisjointTargetsAreOrderInsensitive(t *testing.T) {
	run := func(swap bool) []Command {
		s := NewStream(nil)
		s.RegisterProducer(Producer{ID: "p", Priority: 1})
		a := Set(entity(1), healthID, 10)
		b := Set(entity(2), healthID, 20)
		if swap {
			s.Append("p", b)
			s.Append("p", a)
		} else {
			s.Append("p", a)
			s.Append("p", b)
		}
		return s.Resolve()
	}

	first := run(false)
	second := run(true)
	require.ElementsMatch(t, first, second)
	require.Len(t, first, 2)
}

func Test_Resolve_PriorityOrderAcrossProducers(t *testing.T) {
	// Higher-priority producers apply earlier, so the lower-priority
	// producer's write lands last and wins LWW.
	s := NewStream(nil)
	s.RegisterProducer(Producer{ID: "p1", Priority: 10})
	s.RegisterProducer(Producer{ID: "p2", Priority: 20})

	e := entity(1)
	s.Append("p1", Set(e, healthID, 80))
	s.Append("p2", Set(e, healthID, 60))

	resolved := s.Resolve()
	require.Len(t, resolved, 1)
	require.Equal(t, 80, resolved[0].Value)
}

func Test_Resolve_ExclusiveOwnerVetoesOthers(t *testing.T) {
	s := NewStream(nil)
	s.RegisterProducer(Producer{ID: "p1", Priority: 10})
	s.RegisterProducer(Producer{ID: "p2", Priority: 20, Exclusive: []ecs.ComponentID{healthID}})

	e := entity(1)
	s.Append("p1", Set(e, healthID, 80))
	s.Append("p2", Set(e, healthID, 60))

	resolved := s.Resolve()
	require.Len(t, resolved, 1)
	require.Equal(t, 60, resolved[0].Value)
}

func Test_Resolve_RemoveOverwritesSet(t *testing.T) {
	s := NewStream(nil)
	s.RegisterProducer(Producer{ID: "p", Priority: 0})

	e := entity(3)
	s.Append("p", Set(e, healthID, 5))
	s.Append("p", Remove(e, healthID))

	resolved := s.Resolve()
	require.Len(t, resolved, 1)
	require.Equal(t, KindRemove, resolved[0].Kind)
}

func Test_Resolve_FailedProducerRollsBackWholeTick(t *testing.T) {
	s := NewStream(nil)
	s.RegisterProducer(Producer{ID: "ok", Priority: 1})
	s.RegisterProducer(Producer{ID: "bad", Priority: 2})

	s.Append("bad", Set(entity(1), healthID, 1))
	s.Append("ok", Set(entity(2), healthID, 2))
	s.Append("bad", Despawn(entity(9)))
	s.MarkFailed("bad")

	resolved := s.Resolve()
	require.Len(t, resolved, 1)
	require.Equal(t, entity(2), resolved[0].Entity)
}

func Test_Resolve_NonComponentCommandsKeepOrder(t *testing.T) {
	s := NewStream(nil)
	s.RegisterProducer(Producer{ID: "p", Priority: 0})

	s.Append("p", Spawn(7))
	s.Append("p", Move(entity(1), entity(2)))
	s.Append("p", Emit(ecs.EventID(4), []byte("x")))
	s.Append("p", Despawn(entity(1)))

	resolved := s.Resolve()
	require.Len(t, resolved, 4)
	require.Equal(t, KindSpawn, resolved[0].Kind)
	require.Equal(t, KindMove, resolved[1].Kind)
	require.Equal(t, KindEmit, resolved[2].Kind)
	require.Equal(t, KindDespawn, resolved[3].Kind)
}

func Test_Resolve_IsPure(t *testing.T) {
	s := NewStream(nil)
	s.RegisterProducer(Producer{ID: "a", Priority: 5})
	s.RegisterProducer(Producer{ID: "b", Priority: 3})

	s.Append("a", Set(entity(1), healthID, 1))
	s.Append("b", Set(entity(1), healthID, 2))
	s.Append("a", Spawn(1))

	first := s.Resolve()
	second := s.Resolve()
	require.Equal(t, first, second)
}

func Test_Clear_KeepsRegistrations(t *testing.T) {
	s := NewStream(nil)
	s.RegisterProducer(Producer{ID: "p", Priority: 9})
	s.Append("p", Spawn(1))
	s.MarkFailed("p")
	s.Clear()

	require.Zero(t, s.Len())
	s.Append("p", Spawn(2))
	require.Len(t, s.Resolve(), 1, "failure marks must not leak into the next tick")
}
