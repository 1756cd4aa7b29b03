package command

import "github.com/woo850115-hub/project-g/internal/core/ecs"

// Kind discriminates command variants.
type Kind uint8

const (
	KindSet Kind = iota
	KindRemove
	KindEmit
	KindSpawn
	KindDespawn
	KindMove
	KindPlace
)

// Encoding tells the applier how a KindSet value travels. Plugins emit raw
// snapshot-codec bytes, scripts emit the dynamic key-value form, and engine
// code emits native Go values.
type Encoding uint8

const (
	EncNative Encoding = iota
	EncDynamic
	EncRaw
)

// Command is a recorded intent to mutate state. It carries everything the
// applier needs so it can run after the originator is gone.
type Command struct {
	Kind      Kind
	Entity    ecs.EntityID
	Component ecs.ComponentID
	Encoding  Encoding
	Value     any
	Payload   []byte
	Event     ecs.EventID
	Target    ecs.EntityID
	SpawnTag  uint64
}

func Set(entity ecs.EntityID, component ecs.ComponentID, value any) Command {
	return Command{Kind: KindSet, Entity: entity, Component: component, Encoding: EncNative, Value: value}
}

func SetDynamic(entity ecs.EntityID, component ecs.ComponentID, value any) Command {
	return Command{Kind: KindSet, Entity: entity, Component: component, Encoding: EncDynamic, Value: value}
}

func SetRaw(entity ecs.EntityID, component ecs.ComponentID, payload []byte) Command {
	return Command{Kind: KindSet, Entity: entity, Component: component, Encoding: EncRaw, Payload: payload}
}

func Remove(entity ecs.EntityID, component ecs.ComponentID) Command {
	return Command{Kind: KindRemove, Entity: entity, Component: component}
}

func Emit(event ecs.EventID, payload []byte) Command {
	return Command{Kind: KindEmit, Event: event, Payload: payload}
}

func Spawn(tag uint64) Command {
	return Command{Kind: KindSpawn, SpawnTag: tag}
}

func Despawn(entity ecs.EntityID) Command {
	return Command{Kind: KindDespawn, Entity: entity}
}

func Move(entity, target ecs.EntityID) Command {
	return Command{Kind: KindMove, Entity: entity, Target: target}
}

func Place(entity, target ecs.EntityID) Command {
	return Command{Kind: KindPlace, Entity: entity, Target: target}
}

// targetsComponent reports whether the command participates in last-writer-
// wins resolution.
func (c Command) targetsComponent() bool {
	return c.Kind == KindSet || c.Kind == KindRemove
}
