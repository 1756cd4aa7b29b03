package game

import (
	"encoding/json"
	"fmt"

	"github.com/woo850115-hub/project-g/internal/core/ecs"
)

// BuildSchema defines every component id the game uses. Called once at
// startup, before the store exists.
func BuildSchema() *ecs.Schema {
	s := ecs.NewSchema()
	s.Define(CompName, "Name")
	s.Define(CompDescription, "Description")
	s.Define(CompHealth, "Health")
	s.Define(CompInventory, "Inventory")
	s.Define(CompCombatTarget, "CombatTarget")
	s.Define(CompPlayer, "Player")
	s.Define(CompNPC, "NPC")
	s.Define(CompItem, "Item")
	s.Define(CompDead, "Dead")
	return s
}

// RegisterPersist wires every component into the snapshot registry.
// Payloads are canonical JSON: encoding/json sorts map keys, so identical
// values always produce identical bytes.
func RegisterPersist(reg *ecs.PersistRegistry) {
	registerJSON[Name](reg, CompName, "Name")
	registerJSON[Description](reg, CompDescription, "Description")
	registerJSON[Health](reg, CompHealth, "Health")
	registerJSON[Inventory](reg, CompInventory, "Inventory")
	registerJSON[CombatTarget](reg, CompCombatTarget, "CombatTarget")
	registerJSON[Tag](reg, CompPlayer, "Player")
	registerJSON[Tag](reg, CompNPC, "NPC")
	registerJSON[Tag](reg, CompItem, "Item")
	registerJSON[Tag](reg, CompDead, "Dead")
}

func registerJSON[T any](reg *ecs.PersistRegistry, id ecs.ComponentID, tag string) {
	reg.Register(id, ecs.PersistAdapter{
		Tag: tag,
		Capture: func(s *ecs.Store, entity ecs.EntityID) ([]byte, bool) {
			v, ok := s.Get(entity, id)
			if !ok {
				return nil, false
			}
			buf, err := json.Marshal(v.(T))
			if err != nil {
				return nil, false
			}
			return buf, true
		},
		Restore: func(s *ecs.Store, entity ecs.EntityID, payload []byte) error {
			var v T
			if err := json.Unmarshal(payload, &v); err != nil {
				return fmt.Errorf("%s: %w", tag, err)
			}
			return s.Set(entity, id, v)
		},
	})
}

// RegisterScript wires the script-visible component set: data components
// convert to key-value records, tags to true, references to packed 64-bit
// handles.
func RegisterScript(reg *ecs.ScriptRegistry) {
	reg.Register(ecs.ScriptAdapter{
		Tag: "Name",
		ToScript: func(s *ecs.Store, e ecs.EntityID) (any, bool) {
			v, ok := s.Get(e, CompName)
			if !ok {
				return nil, false
			}
			return string(v.(Name)), true
		},
		FromScript: func(s *ecs.Store, e ecs.EntityID, value any) error {
			str, ok := value.(string)
			if !ok {
				return fmt.Errorf("Name: expected string, got %T", value)
			}
			return s.Set(e, CompName, Name(str))
		},
	})

	reg.Register(ecs.ScriptAdapter{
		Tag: "Description",
		ToScript: func(s *ecs.Store, e ecs.EntityID) (any, bool) {
			v, ok := s.Get(e, CompDescription)
			if !ok {
				return nil, false
			}
			return string(v.(Description)), true
		},
		FromScript: func(s *ecs.Store, e ecs.EntityID, value any) error {
			str, ok := value.(string)
			if !ok {
				return fmt.Errorf("Description: expected string, got %T", value)
			}
			return s.Set(e, CompDescription, Description(str))
		},
	})

	reg.Register(ecs.ScriptAdapter{
		Tag: "Health",
		ToScript: func(s *ecs.Store, e ecs.EntityID) (any, bool) {
			v, ok := s.Get(e, CompHealth)
			if !ok {
				return nil, false
			}
			h := v.(Health)
			return map[string]any{"current": int64(h.Current), "max": int64(h.Max)}, true
		},
		FromScript: func(s *ecs.Store, e ecs.EntityID, value any) error {
			rec, ok := value.(map[string]any)
			if !ok {
				return fmt.Errorf("Health: expected record, got %T", value)
			}
			current, okC := toInt(rec["current"])
			max, okM := toInt(rec["max"])
			if !okC || !okM {
				return fmt.Errorf("Health: current/max must be integers")
			}
			return s.Set(e, CompHealth, Health{Current: current, Max: max})
		},
	})

	reg.Register(ecs.ScriptAdapter{
		Tag: "Inventory",
		ToScript: func(s *ecs.Store, e ecs.EntityID) (any, bool) {
			v, ok := s.Get(e, CompInventory)
			if !ok {
				return nil, false
			}
			inv := v.(Inventory)
			items := make([]any, len(inv.Items))
			for i, item := range inv.Items {
				items[i] = int64(item.ToUint64())
			}
			return items, true
		},
		FromScript: func(s *ecs.Store, e ecs.EntityID, value any) error {
			list, ok := value.([]any)
			if !ok {
				return fmt.Errorf("Inventory: expected array, got %T", value)
			}
			inv := Inventory{Items: make([]ecs.EntityID, 0, len(list))}
			for _, item := range list {
				handle, ok := toInt64(item)
				if !ok {
					return fmt.Errorf("Inventory: items must be entity handles")
				}
				inv.Items = append(inv.Items, ecs.EntityIDFromUint64(uint64(handle)))
			}
			return s.Set(e, CompInventory, inv)
		},
	})

	reg.Register(ecs.ScriptAdapter{
		Tag: "CombatTarget",
		ToScript: func(s *ecs.Store, e ecs.EntityID) (any, bool) {
			v, ok := s.Get(e, CompCombatTarget)
			if !ok {
				return nil, false
			}
			return int64(v.(CombatTarget).Target.ToUint64()), true
		},
		FromScript: func(s *ecs.Store, e ecs.EntityID, value any) error {
			handle, ok := toInt64(value)
			if !ok {
				return fmt.Errorf("CombatTarget: expected entity handle, got %T", value)
			}
			return s.Set(e, CompCombatTarget, CombatTarget{Target: ecs.EntityIDFromUint64(uint64(handle))})
		},
	})

	registerTag(reg, "Player", CompPlayer)
	registerTag(reg, "NPC", CompNPC)
	registerTag(reg, "Item", CompItem)
	registerTag(reg, "Dead", CompDead)
}

func registerTag(reg *ecs.ScriptRegistry, tag string, id ecs.ComponentID) {
	reg.Register(ecs.ScriptAdapter{
		Tag: tag,
		ToScript: func(s *ecs.Store, e ecs.EntityID) (any, bool) {
			if !s.Has(e, id) {
				return nil, false
			}
			return true, true
		},
		FromScript: func(s *ecs.Store, e ecs.EntityID, value any) error {
			if value == false {
				s.Remove(e, id)
				return nil
			}
			return s.Set(e, id, Tag{})
		},
	})
}

// NameOf resolves an entity's display name for wire envelopes.
func NameOf(s *ecs.Store, e ecs.EntityID) (string, bool) {
	v, ok := s.Get(e, CompName)
	if !ok {
		return "", false
	}
	return string(v.(Name)), true
}

// SpawnPlayer materializes a fresh player entity with the standard
// component set.
func SpawnPlayer(s *ecs.Store, name string) ecs.EntityID {
	entity := s.Spawn()
	_ = s.Set(entity, CompName, Name(name))
	_ = s.Set(entity, CompHealth, Health{Current: 100, Max: 100})
	_ = s.Set(entity, CompPlayer, Tag{})
	return entity
}

func toInt(v any) (int, bool) {
	n, ok := toInt64(v)
	return int(n), ok
}

func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case float64:
		return int64(t), true
	default:
		return 0, false
	}
}
