package tick

import (
	"time"

	"github.com/woo850115-hub/project-g/internal/core/observability/log"
)

// Metrics describes one completed tick.
type Metrics struct {
	Tick       uint64
	Duration   time.Duration
	PluginDur  time.Duration
	Commands   int
	Entities   int
	TickBudget time.Duration
}

// Log records the tick. Overruns surface at warn level; work is never
// dropped to catch up.
func (m Metrics) Log(logger log.Log) {
	fields := []log.Field{
		log.Uint64("tick", m.Tick),
		log.Duration("duration", m.Duration),
		log.Duration("plugin_duration", m.PluginDur),
		log.Int("commands", m.Commands),
		log.Int("entities", m.Entities),
	}
	if m.TickBudget > 0 && m.Duration > m.TickBudget {
		logger.Warn("tick overran budget", append(fields, log.Duration("budget", m.TickBudget))...)
		return
	}
	logger.Debug("tick complete", fields...)
}
