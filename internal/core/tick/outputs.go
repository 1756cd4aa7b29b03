package tick

import (
	"github.com/woo850115-hub/project-g/internal/core/ecs"
	"github.com/woo850115-hub/project-g/internal/core/session"
	"github.com/woo850115-hub/project-g/internal/core/space"
)

// notifyShutdown tells every connected session the server is going down
// before the loop exits.
func (l *Loop) notifyShutdown() {
	grid := l.deps.Space.Kind() == space.KindGrid
	for _, id := range l.deps.Sessions.ActiveSessions() {
		payload := "Server is shutting down."
		if grid {
			payload = session.MarshalMessage(session.NewError("Server is shutting down."))
		}
		l.send(session.SendTo(id, payload))
		l.send(session.Disconnect(id))
	}
}

// flushOutputs computes and pushes this tick's per-session output. Rooms
// mode ships whatever text the scripts queued; grid mode additionally
// ships an area-of-interest delta per playing session.
func (l *Loop) flushOutputs(tick uint64) {
	for _, out := range l.outputs {
		l.send(session.SendTo(out.Session, out.Text))
	}
	l.outputs = l.outputs[:0]

	grid, isGrid := l.deps.Space.(*space.Grid)
	if !isGrid || l.deps.AOI == nil {
		return
	}

	nameOf := func(entity ecs.EntityID) (string, bool) {
		if l.deps.NameOf == nil {
			return "", false
		}
		return l.deps.NameOf(l.deps.Store, entity)
	}

	for _, sess := range l.deps.Sessions.Playing() {
		if !sess.HasEntity {
			continue
		}
		delta := l.deps.AOI.Delta(grid, sess.Entity, sess.ID, tick, nameOf)
		if delta == nil || delta.Empty() {
			continue
		}
		l.send(session.SendTo(sess.ID, session.MarshalMessage(delta)))
	}
}
