package script

import (
	"fmt"

	"github.com/d5/tengo/v2"

	"github.com/woo850115-hub/project-g/internal/core/command"
	"github.com/woo850115-hub/project-g/internal/core/ecs"
	"github.com/woo850115-hub/project-g/internal/core/observability/log"
	"github.com/woo850115-hub/project-g/internal/core/space"
)

// scriptErr is a value-level failure handed back to the script; the hook
// keeps running and can inspect it with is_error.
func scriptErr(format string, args ...any) tengo.Object {
	return &tengo.Error{Value: &tengo.String{Value: fmt.Sprintf(format, args...)}}
}

func handleOf(obj tengo.Object) (ecs.EntityID, bool) {
	v, ok := tengo.ToInt64(obj)
	if !ok {
		return ecs.EntityID{}, false
	}
	return ecs.EntityIDFromUint64(uint64(v)), true
}

func handleValue(id ecs.EntityID) tengo.Object {
	return &tengo.Int{Value: int64(id.ToUint64())}
}

func handleArray(ids []ecs.EntityID) tengo.Object {
	arr := make([]tengo.Object, len(ids))
	for i, id := range ids {
		arr[i] = handleValue(id)
	}
	return &tengo.Array{Value: arr}
}

// worldModule builds the scoped proxy scripts see as `world`. Every
// function resolves the live hostContext at call time, so handles acquired
// in one hook cannot leak into another scope.
func (e *Engine) worldModule() *tengo.ImmutableMap {
	fns := map[string]tengo.CallableFunc{
		// Entity store.
		"get":           e.fnGet,
		"set":           e.fnSet,
		"has":           e.fnHas,
		"remove":        e.fnRemove,
		"spawn":         e.fnSpawn,
		"despawn":       e.fnDespawn,
		"alive":         e.fnAlive,
		"entities_with": e.fnEntitiesWith,

		// Spatial model.
		"mode":            e.fnMode,
		"place":           e.fnPlace,
		"leave":           e.fnLeave,
		"move":            e.fnMove,
		"move_by":         e.fnMoveBy,
		"set_position":    e.fnSetPosition,
		"position":        e.fnPosition,
		"location":        e.fnLocation,
		"occupants":       e.fnOccupants,
		"exits":           e.fnExits,
		"exit_labels":     e.fnExitLabels,
		"set_exit":        e.fnSetExit,
		"register_room":   e.fnRegisterRoom,
		"neighborhood":    e.fnNeighborhood,
		"cell":            e.fnCell,
		"fire_enter_room": e.fnFireEnterRoom,

		// Output sink and session directory.
		"send":           e.fnSend,
		"broadcast":      e.fnBroadcast,
		"sessions":       e.fnSessions,
		"session_entity": e.fnSessionEntity,
		"entity_session": e.fnEntitySession,

		// Ambient facilities.
		"log_info":    e.fnLogInfo,
		"log_warn":    e.fnLogWarn,
		"content":     e.fnContent,
		"content_ids": e.fnContentIDs,
		"color":       e.fnColor,
		"tick":        e.fnTick,
		"rand":        e.fnRand,
	}

	value := make(map[string]tengo.Object, len(fns))
	for name, fn := range fns {
		value[name] = &tengo.UserFunction{Name: name, Value: fn}
	}
	return &tengo.ImmutableMap{Value: value}
}

func (e *Engine) needCtx() (*hostContext, tengo.Object) {
	if e.ctx == nil {
		return nil, scriptErr("%v", ErrNoWorld)
	}
	return e.ctx, nil
}

// Entity store proxies.

func (e *Engine) fnGet(args ...tengo.Object) (tengo.Object, error) {
	ctx, errObj := e.needCtx()
	if errObj != nil {
		return errObj, nil
	}
	if len(args) != 2 {
		return nil, tengo.ErrWrongNumArguments
	}
	entity, ok := handleOf(args[0])
	tag, okTag := tengo.ToString(args[1])
	if !ok || !okTag {
		return nil, tengo.ErrInvalidArgumentType{Name: "entity/tag"}
	}
	adapter, found := e.reg.Get(tag)
	if !found {
		return scriptErr("component %q is not script-visible", tag), nil
	}
	value, present := adapter.ToScript(ctx.store, entity)
	if !present {
		return tengo.UndefinedValue, nil
	}
	obj, err := tengo.FromInterface(normalizeDynamic(value))
	if err != nil {
		return scriptErr("component %q: %v", tag, err), nil
	}
	return obj, nil
}

func (e *Engine) fnSet(args ...tengo.Object) (tengo.Object, error) {
	ctx, errObj := e.needCtx()
	if errObj != nil {
		return errObj, nil
	}
	if len(args) != 3 {
		return nil, tengo.ErrWrongNumArguments
	}
	entity, ok := handleOf(args[0])
	tag, okTag := tengo.ToString(args[1])
	if !ok || !okTag {
		return nil, tengo.ErrInvalidArgumentType{Name: "entity/tag"}
	}
	cid, known := e.schema.ID(tag)
	if _, scriptable := e.reg.Get(tag); !known || !scriptable {
		return scriptErr("component %q is not script-visible", tag), nil
	}
	ctx.commands = append(ctx.commands,
		command.SetDynamic(entity, cid, tengo.ToInterface(args[2])))
	return tengo.UndefinedValue, nil
}

func (e *Engine) fnHas(args ...tengo.Object) (tengo.Object, error) {
	ctx, errObj := e.needCtx()
	if errObj != nil {
		return errObj, nil
	}
	if len(args) != 2 {
		return nil, tengo.ErrWrongNumArguments
	}
	entity, ok := handleOf(args[0])
	tag, okTag := tengo.ToString(args[1])
	if !ok || !okTag {
		return nil, tengo.ErrInvalidArgumentType{Name: "entity/tag"}
	}
	adapter, found := e.reg.Get(tag)
	if !found {
		return scriptErr("component %q is not script-visible", tag), nil
	}
	_, present := adapter.ToScript(ctx.store, entity)
	if present {
		return tengo.TrueValue, nil
	}
	return tengo.FalseValue, nil
}

func (e *Engine) fnRemove(args ...tengo.Object) (tengo.Object, error) {
	ctx, errObj := e.needCtx()
	if errObj != nil {
		return errObj, nil
	}
	if len(args) != 2 {
		return nil, tengo.ErrWrongNumArguments
	}
	entity, ok := handleOf(args[0])
	tag, okTag := tengo.ToString(args[1])
	if !ok || !okTag {
		return nil, tengo.ErrInvalidArgumentType{Name: "entity/tag"}
	}
	cid, known := e.schema.ID(tag)
	if !known {
		return scriptErr("component %q is not script-visible", tag), nil
	}
	ctx.commands = append(ctx.commands, command.Remove(entity, cid))
	return tengo.UndefinedValue, nil
}

func (e *Engine) fnSpawn(args ...tengo.Object) (tengo.Object, error) {
	ctx, errObj := e.needCtx()
	if errObj != nil {
		return errObj, nil
	}
	if len(args) != 0 {
		return nil, tengo.ErrWrongNumArguments
	}
	return handleValue(ctx.store.Spawn()), nil
}

func (e *Engine) fnDespawn(args ...tengo.Object) (tengo.Object, error) {
	ctx, errObj := e.needCtx()
	if errObj != nil {
		return errObj, nil
	}
	if len(args) != 1 {
		return nil, tengo.ErrWrongNumArguments
	}
	entity, ok := handleOf(args[0])
	if !ok {
		return nil, tengo.ErrInvalidArgumentType{Name: "entity"}
	}
	ctx.commands = append(ctx.commands, command.Despawn(entity))
	return tengo.UndefinedValue, nil
}

func (e *Engine) fnAlive(args ...tengo.Object) (tengo.Object, error) {
	ctx, errObj := e.needCtx()
	if errObj != nil {
		return errObj, nil
	}
	if len(args) != 1 {
		return nil, tengo.ErrWrongNumArguments
	}
	entity, ok := handleOf(args[0])
	if !ok {
		return nil, tengo.ErrInvalidArgumentType{Name: "entity"}
	}
	if ctx.store.Alive(entity) {
		return tengo.TrueValue, nil
	}
	return tengo.FalseValue, nil
}

func (e *Engine) fnEntitiesWith(args ...tengo.Object) (tengo.Object, error) {
	ctx, errObj := e.needCtx()
	if errObj != nil {
		return errObj, nil
	}
	if len(args) != 1 {
		return nil, tengo.ErrWrongNumArguments
	}
	tag, ok := tengo.ToString(args[0])
	if !ok {
		return nil, tengo.ErrInvalidArgumentType{Name: "tag"}
	}
	cid, known := e.schema.ID(tag)
	if !known {
		return scriptErr("component %q is not script-visible", tag), nil
	}
	return handleArray(ctx.store.EntitiesWith(cid)), nil
}

// Spatial proxies. Operations belonging to the other backend return a
// value-level error.

func (e *Engine) fnMode(args ...tengo.Object) (tengo.Object, error) {
	ctx, errObj := e.needCtx()
	if errObj != nil {
		return errObj, nil
	}
	return &tengo.String{Value: ctx.space.Kind().String()}, nil
}

func (e *Engine) roomGraph() (*space.RoomGraph, tengo.Object) {
	ctx, errObj := e.needCtx()
	if errObj != nil {
		return nil, errObj
	}
	g, ok := ctx.space.(*space.RoomGraph)
	if !ok {
		return nil, scriptErr("operation requires the room-graph backend")
	}
	return g, nil
}

func (e *Engine) grid() (*space.Grid, tengo.Object) {
	ctx, errObj := e.needCtx()
	if errObj != nil {
		return nil, errObj
	}
	g, ok := ctx.space.(*space.Grid)
	if !ok {
		return nil, scriptErr("operation requires the grid backend")
	}
	return g, nil
}

func (e *Engine) fnPlace(args ...tengo.Object) (tengo.Object, error) {
	ctx, errObj := e.needCtx()
	if errObj != nil {
		return errObj, nil
	}
	if len(args) != 2 {
		return nil, tengo.ErrWrongNumArguments
	}
	entity, okE := handleOf(args[0])
	loc, okL := handleOf(args[1])
	if !okE || !okL {
		return nil, tengo.ErrInvalidArgumentType{Name: "entity/location"}
	}
	if err := ctx.space.Place(entity, loc); err != nil {
		return scriptErr("%v", err), nil
	}
	return tengo.UndefinedValue, nil
}

func (e *Engine) fnLeave(args ...tengo.Object) (tengo.Object, error) {
	ctx, errObj := e.needCtx()
	if errObj != nil {
		return errObj, nil
	}
	if len(args) != 1 {
		return nil, tengo.ErrWrongNumArguments
	}
	entity, ok := handleOf(args[0])
	if !ok {
		return nil, tengo.ErrInvalidArgumentType{Name: "entity"}
	}
	if err := ctx.space.Remove(entity); err != nil {
		return scriptErr("%v", err), nil
	}
	return tengo.UndefinedValue, nil
}

func (e *Engine) fnMove(args ...tengo.Object) (tengo.Object, error) {
	ctx, errObj := e.needCtx()
	if errObj != nil {
		return errObj, nil
	}
	if len(args) != 2 {
		return nil, tengo.ErrWrongNumArguments
	}
	entity, okE := handleOf(args[0])
	target, okT := handleOf(args[1])
	if !okE || !okT {
		return nil, tengo.ErrInvalidArgumentType{Name: "entity/target"}
	}
	old, hadOld := ctx.space.LocationOf(entity)
	if err := ctx.space.Move(entity, target); err != nil {
		return scriptErr("%v", err), nil
	}
	if ctx.space.Kind() == space.KindRoomGraph {
		ev := enterRoomEvent{entity: entity, room: target, oldRoom: old, hasOld: hadOld}
		ctx.enterRoomQueue = append(ctx.enterRoomQueue, ev)
	}
	return tengo.UndefinedValue, nil
}

func (e *Engine) fnMoveBy(args ...tengo.Object) (tengo.Object, error) {
	g, errObj := e.grid()
	if errObj != nil {
		return errObj, nil
	}
	if len(args) != 3 {
		return nil, tengo.ErrWrongNumArguments
	}
	entity, okE := handleOf(args[0])
	dx, okX := tengo.ToInt64(args[1])
	dy, okY := tengo.ToInt64(args[2])
	if !okE || !okX || !okY {
		return nil, tengo.ErrInvalidArgumentType{Name: "entity/dx/dy"}
	}
	if err := g.MoveBy(entity, int32(dx), int32(dy)); err != nil {
		return scriptErr("%v", err), nil
	}
	return tengo.UndefinedValue, nil
}

func (e *Engine) fnSetPosition(args ...tengo.Object) (tengo.Object, error) {
	g, errObj := e.grid()
	if errObj != nil {
		return errObj, nil
	}
	if len(args) != 3 {
		return nil, tengo.ErrWrongNumArguments
	}
	entity, okE := handleOf(args[0])
	x, okX := tengo.ToInt64(args[1])
	y, okY := tengo.ToInt64(args[2])
	if !okE || !okX || !okY {
		return nil, tengo.ErrInvalidArgumentType{Name: "entity/x/y"}
	}
	if err := g.SetPosition(entity, int32(x), int32(y)); err != nil {
		return scriptErr("%v", err), nil
	}
	return tengo.UndefinedValue, nil
}

func (e *Engine) fnPosition(args ...tengo.Object) (tengo.Object, error) {
	g, errObj := e.grid()
	if errObj != nil {
		return errObj, nil
	}
	if len(args) != 1 {
		return nil, tengo.ErrWrongNumArguments
	}
	entity, ok := handleOf(args[0])
	if !ok {
		return nil, tengo.ErrInvalidArgumentType{Name: "entity"}
	}
	pos, placed := g.PositionOf(entity)
	if !placed {
		return tengo.UndefinedValue, nil
	}
	return &tengo.Array{Value: []tengo.Object{
		&tengo.Int{Value: int64(pos.X)},
		&tengo.Int{Value: int64(pos.Y)},
	}}, nil
}

func (e *Engine) fnLocation(args ...tengo.Object) (tengo.Object, error) {
	ctx, errObj := e.needCtx()
	if errObj != nil {
		return errObj, nil
	}
	if len(args) != 1 {
		return nil, tengo.ErrWrongNumArguments
	}
	entity, ok := handleOf(args[0])
	if !ok {
		return nil, tengo.ErrInvalidArgumentType{Name: "entity"}
	}
	loc, placed := ctx.space.LocationOf(entity)
	if !placed {
		return tengo.UndefinedValue, nil
	}
	return handleValue(loc), nil
}

func (e *Engine) fnOccupants(args ...tengo.Object) (tengo.Object, error) {
	ctx, errObj := e.needCtx()
	if errObj != nil {
		return errObj, nil
	}
	if len(args) != 1 {
		return nil, tengo.ErrWrongNumArguments
	}
	loc, ok := handleOf(args[0])
	if !ok {
		return nil, tengo.ErrInvalidArgumentType{Name: "location"}
	}
	return handleArray(ctx.space.Occupants(loc)), nil
}

func (e *Engine) fnExits(args ...tengo.Object) (tengo.Object, error) {
	g, errObj := e.roomGraph()
	if errObj != nil {
		return errObj, nil
	}
	if len(args) != 1 {
		return nil, tengo.ErrWrongNumArguments
	}
	room, ok := handleOf(args[0])
	if !ok {
		return nil, tengo.ErrInvalidArgumentType{Name: "room"}
	}
	out := make(map[string]tengo.Object)
	for _, exit := range g.Exits(room) {
		out[exit.Label] = handleValue(exit.Target)
	}
	return &tengo.Map{Value: out}, nil
}

func (e *Engine) fnExitLabels(args ...tengo.Object) (tengo.Object, error) {
	g, errObj := e.roomGraph()
	if errObj != nil {
		return errObj, nil
	}
	if len(args) != 1 {
		return nil, tengo.ErrWrongNumArguments
	}
	room, ok := handleOf(args[0])
	if !ok {
		return nil, tengo.ErrInvalidArgumentType{Name: "room"}
	}
	exits := g.Exits(room)
	arr := make([]tengo.Object, len(exits))
	for i, exit := range exits {
		arr[i] = &tengo.String{Value: exit.Label}
	}
	return &tengo.Array{Value: arr}, nil
}

func (e *Engine) fnSetExit(args ...tengo.Object) (tengo.Object, error) {
	g, errObj := e.roomGraph()
	if errObj != nil {
		return errObj, nil
	}
	if len(args) != 3 {
		return nil, tengo.ErrWrongNumArguments
	}
	from, okF := handleOf(args[0])
	label, okL := tengo.ToString(args[1])
	to, okT := handleOf(args[2])
	if !okF || !okL || !okT {
		return nil, tengo.ErrInvalidArgumentType{Name: "from/label/to"}
	}
	if err := g.SetExit(from, label, to); err != nil {
		return scriptErr("%v", err), nil
	}
	return tengo.UndefinedValue, nil
}

func (e *Engine) fnRegisterRoom(args ...tengo.Object) (tengo.Object, error) {
	g, errObj := e.roomGraph()
	if errObj != nil {
		return errObj, nil
	}
	if len(args) != 1 {
		return nil, tengo.ErrWrongNumArguments
	}
	room, ok := handleOf(args[0])
	if !ok {
		return nil, tengo.ErrInvalidArgumentType{Name: "room"}
	}
	g.RegisterRoom(room)
	return tengo.UndefinedValue, nil
}

func (e *Engine) fnNeighborhood(args ...tengo.Object) (tengo.Object, error) {
	g, errObj := e.grid()
	if errObj != nil {
		return errObj, nil
	}
	if len(args) != 2 {
		return nil, tengo.ErrWrongNumArguments
	}
	entity, okE := handleOf(args[0])
	radius, okR := tengo.ToInt64(args[1])
	if !okE || !okR {
		return nil, tengo.ErrInvalidArgumentType{Name: "entity/radius"}
	}
	pos, placed := g.PositionOf(entity)
	if !placed {
		return scriptErr("entity %s is not on the grid", entity), nil
	}
	return handleArray(g.EntitiesInRadius(pos.X, pos.Y, int32(radius))), nil
}

func (e *Engine) fnCell(args ...tengo.Object) (tengo.Object, error) {
	if len(args) != 2 {
		return nil, tengo.ErrWrongNumArguments
	}
	x, okX := tengo.ToInt64(args[0])
	y, okY := tengo.ToInt64(args[1])
	if !okX || !okY {
		return nil, tengo.ErrInvalidArgumentType{Name: "x/y"}
	}
	return handleValue(space.CellID(int32(x), int32(y))), nil
}

func (e *Engine) fnFireEnterRoom(args ...tengo.Object) (tengo.Object, error) {
	ctx, errObj := e.needCtx()
	if errObj != nil {
		return errObj, nil
	}
	if len(args) < 2 || len(args) > 3 {
		return nil, tengo.ErrWrongNumArguments
	}
	entity, okE := handleOf(args[0])
	room, okR := handleOf(args[1])
	if !okE || !okR {
		return nil, tengo.ErrInvalidArgumentType{Name: "entity/room"}
	}
	ev := enterRoomEvent{entity: entity, room: room}
	if len(args) == 3 && args[2] != tengo.UndefinedValue {
		old, ok := handleOf(args[2])
		if !ok {
			return nil, tengo.ErrInvalidArgumentType{Name: "old_room"}
		}
		ev.oldRoom = old
		ev.hasOld = true
	}
	ctx.enterRoomQueue = append(ctx.enterRoomQueue, ev)
	return tengo.UndefinedValue, nil
}

// Output and session proxies.

func (e *Engine) fnSend(args ...tengo.Object) (tengo.Object, error) {
	ctx, errObj := e.needCtx()
	if errObj != nil {
		return errObj, nil
	}
	if len(args) != 2 {
		return nil, tengo.ErrWrongNumArguments
	}
	session, okS := tengo.ToInt64(args[0])
	text, okT := tengo.ToString(args[1])
	if !okS || !okT {
		return nil, tengo.ErrInvalidArgumentType{Name: "session/text"}
	}
	ctx.outputs = append(ctx.outputs, Output{Session: uint64(session), Text: text})
	return tengo.UndefinedValue, nil
}

func (e *Engine) fnBroadcast(args ...tengo.Object) (tengo.Object, error) {
	ctx, errObj := e.needCtx()
	if errObj != nil {
		return errObj, nil
	}
	if len(args) != 2 {
		return nil, tengo.ErrWrongNumArguments
	}
	entity, okE := handleOf(args[0])
	text, okT := tengo.ToString(args[1])
	if !okE || !okT {
		return nil, tengo.ErrInvalidArgumentType{Name: "entity/text"}
	}
	targets, err := ctx.space.BroadcastSet(entity)
	if err != nil {
		return scriptErr("%v", err), nil
	}
	for _, target := range targets {
		if sid, bound := ctx.sessions.SessionForEntity(target); bound {
			ctx.outputs = append(ctx.outputs, Output{Session: sid, Text: text})
		}
	}
	return tengo.UndefinedValue, nil
}

func (e *Engine) fnSessions(args ...tengo.Object) (tengo.Object, error) {
	ctx, errObj := e.needCtx()
	if errObj != nil {
		return errObj, nil
	}
	ids := ctx.sessions.ActiveSessions()
	arr := make([]tengo.Object, len(ids))
	for i, id := range ids {
		arr[i] = &tengo.Int{Value: int64(id)}
	}
	return &tengo.Array{Value: arr}, nil
}

func (e *Engine) fnSessionEntity(args ...tengo.Object) (tengo.Object, error) {
	ctx, errObj := e.needCtx()
	if errObj != nil {
		return errObj, nil
	}
	if len(args) != 1 {
		return nil, tengo.ErrWrongNumArguments
	}
	session, ok := tengo.ToInt64(args[0])
	if !ok {
		return nil, tengo.ErrInvalidArgumentType{Name: "session"}
	}
	entity, bound := ctx.sessions.EntityForSession(uint64(session))
	if !bound {
		return tengo.UndefinedValue, nil
	}
	return handleValue(entity), nil
}

func (e *Engine) fnEntitySession(args ...tengo.Object) (tengo.Object, error) {
	ctx, errObj := e.needCtx()
	if errObj != nil {
		return errObj, nil
	}
	if len(args) != 1 {
		return nil, tengo.ErrWrongNumArguments
	}
	entity, ok := handleOf(args[0])
	if !ok {
		return nil, tengo.ErrInvalidArgumentType{Name: "entity"}
	}
	sid, bound := ctx.sessions.SessionForEntity(entity)
	if !bound {
		return tengo.UndefinedValue, nil
	}
	return &tengo.Int{Value: int64(sid)}, nil
}

// Ambient proxies.

func (e *Engine) fnLogInfo(args ...tengo.Object) (tengo.Object, error) {
	if len(args) != 1 {
		return nil, tengo.ErrWrongNumArguments
	}
	msg, _ := tengo.ToString(args[0])
	e.logger.Info(msg, log.String("source", "script"))
	return tengo.UndefinedValue, nil
}

func (e *Engine) fnLogWarn(args ...tengo.Object) (tengo.Object, error) {
	if len(args) != 1 {
		return nil, tengo.ErrWrongNumArguments
	}
	msg, _ := tengo.ToString(args[0])
	e.logger.Warn(msg, log.String("source", "script"))
	return tengo.UndefinedValue, nil
}

func (e *Engine) fnContent(args ...tengo.Object) (tengo.Object, error) {
	if len(args) != 2 {
		return nil, tengo.ErrWrongNumArguments
	}
	collection, okC := tengo.ToString(args[0])
	id, okI := tengo.ToString(args[1])
	if !okC || !okI {
		return nil, tengo.ErrInvalidArgumentType{Name: "collection/id"}
	}
	item, found := e.content.Get(collection, id)
	if !found {
		return tengo.UndefinedValue, nil
	}
	obj, err := tengo.FromInterface(normalizeDynamic(item))
	if err != nil {
		return scriptErr("content %s/%s: %v", collection, id, err), nil
	}
	return obj, nil
}

func (e *Engine) fnContentIDs(args ...tengo.Object) (tengo.Object, error) {
	if len(args) != 1 {
		return nil, tengo.ErrWrongNumArguments
	}
	collection, ok := tengo.ToString(args[0])
	if !ok {
		return nil, tengo.ErrInvalidArgumentType{Name: "collection"}
	}
	ids := e.content.IDs(collection)
	arr := make([]tengo.Object, len(ids))
	for i, id := range ids {
		arr[i] = &tengo.String{Value: id}
	}
	return &tengo.Array{Value: arr}, nil
}

func (e *Engine) fnColor(args ...tengo.Object) (tengo.Object, error) {
	if len(args) != 1 {
		return nil, tengo.ErrWrongNumArguments
	}
	name, ok := tengo.ToString(args[0])
	if !ok {
		return nil, tengo.ErrInvalidArgumentType{Name: "name"}
	}
	return &tengo.String{Value: e.colors[name]}, nil
}

func (e *Engine) fnTick(args ...tengo.Object) (tengo.Object, error) {
	ctx, errObj := e.needCtx()
	if errObj != nil {
		return errObj, nil
	}
	return &tengo.Int{Value: int64(ctx.tick)}, nil
}

// fnRand yields a deterministic pseudo-random value in [0, n): the state
// seeds from the tick, so identical ticks replay identically.
func (e *Engine) fnRand(args ...tengo.Object) (tengo.Object, error) {
	ctx, errObj := e.needCtx()
	if errObj != nil {
		return errObj, nil
	}
	if len(args) != 1 {
		return nil, tengo.ErrWrongNumArguments
	}
	n, ok := tengo.ToInt64(args[0])
	if !ok || n <= 0 {
		return nil, tengo.ErrInvalidArgumentType{Name: "n"}
	}
	x := ctx.randState
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	ctx.randState = x
	return &tengo.Int{Value: int64(x % uint64(n))}, nil
}
