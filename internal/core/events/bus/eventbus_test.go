package bus

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/woo850115-hub/project-g/internal/core/ecs"
)

func Test_DeliveryInRegistrationOrder(t *testing.T) {
	b := New()
	var order []string
	b.Subscribe(func(Event) { order = append(order, "first") })
	b.Subscribe(func(Event) { order = append(order, "second") })

	b.Emit(ecs.EventID(1), nil)
	b.Drain()

	require.Equal(t, []string{"first", "second"}, order)
}

func Test_FilterMatchesOnlySubscribedIDs(t *testing.T) {
	b := New()
	var got []ecs.EventID
	b.Subscribe(func(ev Event) { got = append(got, ev.ID) }, ecs.EventID(2))

	b.Emit(ecs.EventID(1), nil)
	b.Emit(ecs.EventID(2), []byte("x"))
	b.Emit(ecs.EventID(3), nil)
	b.Drain()

	require.Equal(t, []ecs.EventID{2}, got)
}

func Test_EmitDuringDrainJoinsSameTick(t *testing.T) {
	b := New()
	var seen []ecs.EventID
	b.Subscribe(func(ev Event) {
		seen = append(seen, ev.ID)
		if ev.ID == 1 {
			b.Emit(ecs.EventID(2), nil)
		}
	})

	b.Emit(ecs.EventID(1), nil)
	b.Drain()

	require.Equal(t, []ecs.EventID{1, 2}, seen)
}

func Test_EmitAfterDrainCarriesOver(t *testing.T) {
	b := New()
	var seen []ecs.EventID
	b.Subscribe(func(ev Event) { seen = append(seen, ev.ID) })

	b.Drain()
	b.Emit(ecs.EventID(7), nil)
	require.Empty(t, seen)

	b.EndTick()
	require.Equal(t, 1, b.Pending())
	b.Drain()
	require.Equal(t, []ecs.EventID{7}, seen)
}

func Test_SubscriberLoopIsBoundedBySubscriber(t *testing.T) {
	// An event that re-emits its own id runs within the same tick until the
	// subscriber stops emitting. The cap lives in the subscriber, not the
	// bus.
	b := New()
	count := 0
	b.Subscribe(func(ev Event) {
		count++
		if count < 5 {
			b.Emit(ev.ID, nil)
		}
	}, ecs.EventID(9))

	b.Emit(ecs.EventID(9), nil)
	b.Drain()
	require.Equal(t, 5, count)
}
