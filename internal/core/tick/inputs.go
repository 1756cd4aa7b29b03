package tick

import (
	"strings"

	"github.com/woo850115-hub/project-g/internal/core/ecs"
	"github.com/woo850115-hub/project-g/internal/core/observability/log"
	"github.com/woo850115-hub/project-g/internal/core/session"
	"github.com/woo850115-hub/project-g/internal/core/space"
)

// drainInbound empties the net-to-core channel without blocking and routes
// each message. Per-session FIFO order is the channel's order.
func (l *Loop) drainInbound() {
	for {
		select {
		case msg := <-l.inbound:
			switch msg.Kind {
			case session.InboundConnected:
				l.handleConnected(msg.Session)
			case session.InboundLine:
				l.handleLine(msg.Session, msg.Line)
			case session.InboundDisconnected:
				l.handleDisconnected(msg.Session)
			}
		default:
			return
		}
	}
}

func (l *Loop) handleConnected(id uint64) {
	l.deps.Sessions.CreateWithID(id)
	l.deps.Logger.Info("session connected", log.Uint64("session", id))

	if l.deps.Scripts != nil {
		cmds, outs := l.deps.Scripts.RunConnect(l.deps.Store, l.deps.Space, l.deps.Sessions, l.currentTick, id)
		for _, cmd := range cmds {
			l.deps.Stream.Append(ProducerScript, cmd)
		}
		l.queueOutputs(outs)
	}
}

func (l *Loop) handleDisconnected(id uint64) {
	name := ""
	if sess, ok := l.deps.Sessions.Get(id); ok {
		name = sess.Name
	}
	entity, had := l.deps.Sessions.Disconnect(id, l.currentTick)
	if l.deps.AOI != nil {
		l.deps.AOI.OnRemoved(id)
	}
	l.deps.Logger.Info("session disconnected", log.Uint64("session", id))

	// Named characters linger for the grace interval; anonymous entities
	// leave the world immediately.
	if had && name == "" {
		_ = l.deps.Space.Remove(entity)
		l.deps.Store.Despawn(entity)
	}
}

func (l *Loop) handleLine(id uint64, line string) {
	sess, ok := l.deps.Sessions.Get(id)
	if !ok {
		return
	}
	if l.deps.Space.Kind() == space.KindGrid {
		l.handleGridLine(sess, line)
		return
	}
	l.handleRoomsLine(sess, line)
}

// Rooms mode: line-oriented text protocol.

func (l *Loop) handleRoomsLine(sess *session.Session, line string) {
	if sess.State == session.StateConnecting {
		l.loginRooms(sess, strings.TrimSpace(line))
		return
	}
	if sess.State != session.StatePlaying {
		return
	}

	action := session.TranslateLine(line)
	if action.Admin {
		l.dispatchAdmin(sess, action)
		return
	}
	l.dispatchAction(sess, action)
}

func (l *Loop) loginRooms(sess *session.Session, name string) {
	if name == "" {
		l.send(session.SendTo(sess.ID, "Who are you?"))
		return
	}
	sess.Name = name

	if entity, ok := l.deps.Sessions.RebindLingering(sess.ID, name); ok {
		l.deps.Logger.Info("lingering character reclaimed",
			log.Uint64("session", sess.ID),
			log.String("name", name),
			log.String("entity", entity.String()),
		)
		l.dispatchAction(sess, session.Action{Name: "look"})
		return
	}

	entity := l.spawnPlayer(name)
	if rooms, isRooms := l.deps.Space.(*space.RoomGraph); isRooms {
		all := rooms.AllRooms()
		if len(all) > 0 {
			if err := rooms.Place(entity, all[0]); err != nil {
				l.deps.Logger.Warn("player placement failed", log.Error(err))
			}
		}
	}
	l.deps.Sessions.Bind(sess.ID, entity)
	l.deps.Logger.Info("player spawned",
		log.Uint64("session", sess.ID),
		log.String("name", name),
		log.String("entity", entity.String()),
	)
	l.dispatchAction(sess, session.Action{Name: "look"})
}

// Grid mode: JSON client messages.

func (l *Loop) handleGridLine(sess *session.Session, line string) {
	msg, err := session.ParseClientMessage(line)
	if err != nil {
		l.send(session.SendTo(sess.ID, session.MarshalMessage(session.NewError("malformed message"))))
		return
	}

	switch msg.Type {
	case session.ClientPing:
		l.send(session.SendTo(sess.ID, session.MarshalMessage(session.PongMessage{Type: session.ServerPong})))

	case session.ClientConnect:
		l.loginGrid(sess, strings.TrimSpace(msg.Name))

	case session.ClientMove:
		if sess.State != session.StatePlaying || !sess.HasEntity {
			return
		}
		grid := l.deps.Space.(*space.Grid)
		if err := grid.MoveBy(sess.Entity, msg.Dx, msg.Dy); err != nil {
			l.send(session.SendTo(sess.ID, session.MarshalMessage(session.NewError(err.Error()))))
		}

	case session.ClientAction:
		if sess.State != session.StatePlaying {
			return
		}
		l.dispatchAction(sess, session.Action{Name: msg.Name, Arg: msg.Args, Raw: msg.Args})

	default:
		l.deps.Logger.Debug("unhandled grid message",
			log.Uint64("session", sess.ID),
			log.String("type", msg.Type),
		)
	}
}

func (l *Loop) loginGrid(sess *session.Session, name string) {
	if sess.State == session.StatePlaying || name == "" {
		return
	}
	grid := l.deps.Space.(*space.Grid)
	sess.Name = name

	entity, reclaimed := l.deps.Sessions.RebindLingering(sess.ID, name)
	if !reclaimed {
		entity = l.spawnPlayer(name)
		cfg := grid.Config()
		centerX := cfg.OriginX + cfg.Width/2
		centerY := cfg.OriginY + cfg.Height/2
		if err := grid.SetPosition(entity, centerX, centerY); err != nil {
			l.deps.Store.Despawn(entity)
			l.send(session.SendTo(sess.ID, session.MarshalMessage(session.NewError("spawn failed"))))
			return
		}
		l.deps.Sessions.Bind(sess.ID, entity)
	}

	if l.deps.AOI != nil {
		l.deps.AOI.OnPlaying(sess.ID)
	}

	cfg := grid.Config()
	welcome := session.NewWelcome(sess.ID, entity.ToUint64(), l.currentTick, session.GridConfigWire{
		Width:   cfg.Width,
		Height:  cfg.Height,
		OriginX: cfg.OriginX,
		OriginY: cfg.OriginY,
	})
	l.send(session.SendTo(sess.ID, session.MarshalMessage(welcome)))
	l.deps.Logger.Info("grid player spawned",
		log.Uint64("session", sess.ID),
		log.String("name", name),
		log.String("entity", entity.String()),
	)
}

func (l *Loop) spawnPlayer(name string) ecs.EntityID {
	if l.deps.SpawnPlayer != nil {
		return l.deps.SpawnPlayer(l.deps.Store, name)
	}
	return l.deps.Store.Spawn()
}

// dispatchAction hands a translated action to the script hooks as the
// session-input pseudo-producer.
func (l *Loop) dispatchAction(sess *session.Session, action session.Action) {
	if l.deps.Scripts == nil {
		return
	}
	ctx := l.actionContext(sess, action)
	consumed, cmds, outs := l.deps.Scripts.RunAction(
		l.deps.Store, l.deps.Space, l.deps.Sessions, l.currentTick, action.Name, ctx)
	for _, cmd := range cmds {
		l.deps.Stream.Append(ProducerSession, cmd)
	}
	l.queueOutputs(outs)

	if !consumed && action.Name == "unknown" {
		l.deps.Logger.Debug("unhandled input",
			log.Uint64("session", sess.ID),
			log.String("raw", action.Raw),
		)
	}
}

// dispatchAdmin routes privileged commands; the script engine interposes
// the permission check before any callback runs.
func (l *Loop) dispatchAdmin(sess *session.Session, action session.Action) {
	if l.deps.Scripts == nil {
		return
	}
	ctx := l.actionContext(sess, action)
	handled, cmds, outs := l.deps.Scripts.RunAdmin(
		l.deps.Store, l.deps.Space, l.deps.Sessions, l.currentTick,
		action.Name, sess.Permission, ctx)
	for _, cmd := range cmds {
		l.deps.Stream.Append(ProducerSession, cmd)
	}
	l.queueOutputs(outs)

	if !handled {
		l.deps.Logger.Info("admin command dropped",
			log.Uint64("session", sess.ID),
			log.String("command", action.Name),
			log.Int("level", sess.Permission),
		)
	}
}

func (l *Loop) actionContext(sess *session.Session, action session.Action) map[string]any {
	ctx := map[string]any{
		"session": int64(sess.ID),
		"arg":     action.Arg,
		"raw":     action.Raw,
		"level":   int64(sess.Permission),
	}
	if sess.HasEntity {
		ctx["entity"] = int64(sess.Entity.ToUint64())
	}
	return ctx
}
