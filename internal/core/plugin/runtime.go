package plugin

import (
	"fmt"
	"os"
	"sort"

	"github.com/woo850115-hub/project-g/internal/core/command"
	"github.com/woo850115-hub/project-g/internal/core/ecs"
	"github.com/woo850115-hub/project-g/internal/core/observability/log"
)

// TickBatch is one plugin's successful command contribution for a tick.
type TickBatch struct {
	PluginID string
	Commands []command.Command
}

// Runtime owns all loaded plugins and drives their tick/event exports in
// priority order (higher priority first, id as the tie-break).
type Runtime struct {
	plugins []*Plugin
	fuel    FuelConfig
	logger  log.Log
}

func NewRuntime(fuel FuelConfig, logger log.Log) *Runtime {
	return &Runtime{fuel: fuel, logger: logger}
}

// LoadFile reads a plugin container from disk and loads it.
func (r *Runtime) LoadFile(cfg Config) error {
	if !cfg.Enabled {
		r.logger.Info("plugin disabled, skipping", log.String("plugin", cfg.ID))
		return nil
	}
	buf, err := os.ReadFile(cfg.Path)
	if err != nil {
		return fmt.Errorf("read plugin %q: %w", cfg.ID, err)
	}
	return r.LoadBytes(buf, cfg)
}

// LoadBytes loads a plugin from raw container bytes.
func (r *Runtime) LoadBytes(programBytes []byte, cfg Config) error {
	p, err := Load(programBytes, cfg, r.fuel, r.logger)
	if err != nil {
		return err
	}
	r.plugins = append(r.plugins, p)
	sort.SliceStable(r.plugins, func(i, j int) bool {
		if r.plugins[i].Priority != r.plugins[j].Priority {
			return r.plugins[i].Priority > r.plugins[j].Priority
		}
		return r.plugins[i].ID < r.plugins[j].ID
	})
	r.logger.Info("plugin loaded",
		log.String("plugin", cfg.ID),
		log.Int("priority", cfg.Priority),
	)
	return nil
}

// Producers lists command-stream registrations for the loaded plugins,
// including their exclusive component claims.
func (r *Runtime) Producers() []command.Producer {
	out := make([]command.Producer, 0, len(r.plugins))
	for _, p := range r.plugins {
		producer := command.Producer{ID: p.ID, Priority: p.Priority}
		for _, cid := range p.Exclusive {
			producer.Exclusive = append(producer.Exclusive, ecs.ComponentID(cid))
		}
		out = append(out, producer)
	}
	return out
}

// PopulateComponents hands every plugin the same per-tick component cache.
func (r *Runtime) PopulateComponents(data map[uint64]map[uint32][]byte) {
	flat := make(map[componentKey][]byte)
	for entity, comps := range data {
		for comp, payload := range comps {
			flat[componentKey{Entity: entity, Component: comp}] = payload
		}
	}
	for _, p := range r.plugins {
		p.PopulateComponents(flat)
	}
}

// RunTick invokes on_tick for every active plugin. Quarantined plugins are
// skipped; trapped plugins contribute nothing.
func (r *Runtime) RunTick(tick uint64) []TickBatch {
	var out []TickBatch
	for _, p := range r.plugins {
		if p.Quarantined() {
			continue
		}
		cmds, trap := p.ExecTick(tick)
		if trap != nil {
			continue
		}
		out = append(out, TickBatch{PluginID: p.ID, Commands: cmds})
	}
	return out
}

// RunEvent invokes on_event for every active plugin that exports it.
func (r *Runtime) RunEvent(tick uint64, eventID uint32, payload []byte) []TickBatch {
	var out []TickBatch
	for _, p := range r.plugins {
		if p.Quarantined() {
			continue
		}
		cmds, trap := p.ExecEvent(tick, eventID, payload)
		if trap != nil || len(cmds) == 0 {
			continue
		}
		out = append(out, TickBatch{PluginID: p.ID, Commands: cmds})
	}
	return out
}

// Reenable lifts a plugin's quarantine.
func (r *Runtime) Reenable(pluginID string) bool {
	for _, p := range r.plugins {
		if p.ID == pluginID {
			p.Reenable()
			return true
		}
	}
	return false
}

// Quarantined returns the ids of quarantined plugins.
func (r *Runtime) Quarantined() []string {
	var out []string
	for _, p := range r.plugins {
		if p.Quarantined() {
			out = append(out, p.ID)
		}
	}
	return out
}

func (r *Runtime) Count() int { return len(r.plugins) }

func (r *Runtime) ActiveCount() int {
	n := 0
	for _, p := range r.plugins {
		if !p.Quarantined() {
			n++
		}
	}
	return n
}

// Get looks up a plugin by id.
func (r *Runtime) Get(pluginID string) (*Plugin, bool) {
	for _, p := range r.plugins {
		if p.ID == pluginID {
			return p, true
		}
	}
	return nil, false
}
