package tick

import (
	"github.com/woo850115-hub/project-g/internal/core/command"
	"github.com/woo850115-hub/project-g/internal/core/observability/log"
	"github.com/woo850115-hub/project-g/internal/core/space"
)

// applyCommand executes one resolved command against the store, the
// spatial model, and the event bus. Consistency violations drop the
// command with a log line and never abort the tick.
func (l *Loop) applyCommand(cmd command.Command) {
	switch cmd.Kind {
	case command.KindSet:
		l.applySet(cmd)

	case command.KindRemove:
		l.deps.Store.Remove(cmd.Entity, cmd.Component)

	case command.KindSpawn:
		entity := l.deps.Store.Spawn()
		l.deps.Logger.Debug("entity spawned",
			log.String("entity", entity.String()),
			log.Uint64("tag", cmd.SpawnTag),
		)

	case command.KindDespawn:
		if !l.deps.Store.Alive(cmd.Entity) {
			l.deps.Logger.Warn("despawn of non-live entity dropped",
				log.String("entity", cmd.Entity.String()))
			return
		}
		_ = l.deps.Space.Remove(cmd.Entity)
		l.deps.Store.Despawn(cmd.Entity)

	case command.KindMove:
		old, hadOld := l.deps.Space.LocationOf(cmd.Entity)
		if err := l.deps.Space.Move(cmd.Entity, cmd.Target); err != nil {
			l.deps.Logger.Warn("move command failed",
				log.String("entity", cmd.Entity.String()),
				log.String("target", cmd.Target.String()),
				log.Error(err),
			)
			return
		}
		if l.deps.Space.Kind() == space.KindRoomGraph {
			var oldPtr = &old
			if !hadOld {
				oldPtr = nil
			}
			l.deps.Bus.Emit(EventEnterRoom, enterRoomPayload(cmd.Entity, cmd.Target, oldPtr))
		}

	case command.KindPlace:
		if err := l.deps.Space.Place(cmd.Entity, cmd.Target); err != nil {
			l.deps.Logger.Warn("place command failed",
				log.String("entity", cmd.Entity.String()),
				log.String("target", cmd.Target.String()),
				log.Error(err),
			)
		}

	case command.KindEmit:
		l.deps.Bus.Emit(cmd.Event, cmd.Payload)
	}
}

func (l *Loop) applySet(cmd command.Command) {
	if !l.deps.Store.Alive(cmd.Entity) {
		l.deps.Logger.Warn("component write to non-live entity dropped",
			log.String("entity", cmd.Entity.String()),
			log.Uint32("component", uint32(cmd.Component)),
		)
		return
	}

	switch cmd.Encoding {
	case command.EncNative:
		if err := l.deps.Store.Set(cmd.Entity, cmd.Component, cmd.Value); err != nil {
			l.deps.Logger.Warn("component write failed", log.Error(err))
		}

	case command.EncDynamic:
		tag, ok := l.deps.Store.Schema().Tag(cmd.Component)
		if !ok {
			l.deps.Logger.Warn("dynamic write to unknown component dropped",
				log.Uint32("component", uint32(cmd.Component)))
			return
		}
		adapter, ok := l.deps.ScriptReg.Get(tag)
		if !ok {
			l.deps.Logger.Warn("dynamic write to non-scriptable component dropped",
				log.String("tag", tag))
			return
		}
		if err := adapter.FromScript(l.deps.Store, cmd.Entity, cmd.Value); err != nil {
			l.deps.Logger.Warn("dynamic component write failed",
				log.String("tag", tag),
				log.Error(err),
			)
		}

	case command.EncRaw:
		adapter, ok := l.deps.PersistReg.Get(cmd.Component)
		if !ok {
			l.deps.Logger.Warn("raw write to unregistered component dropped",
				log.Uint32("component", uint32(cmd.Component)))
			return
		}
		if err := adapter.Restore(l.deps.Store, cmd.Entity, cmd.Payload); err != nil {
			l.deps.Logger.Warn("raw component write failed",
				log.Uint32("component", uint32(cmd.Component)),
				log.Error(err),
			)
		}
	}
}
