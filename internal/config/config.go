package config

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/woo850115-hub/project-g/internal/core/plugin"
	"github.com/woo850115-hub/project-g/internal/core/script"
	"github.com/woo850115-hub/project-g/internal/core/space"
	"github.com/woo850115-hub/project-g/internal/core/tick"
)

// Mode selects the spatial backend and wire protocol.
const (
	ModeRooms = "rooms"
	ModeGrid  = "grid"
)

type NetConfig struct {
	Addr           string `yaml:"addr"`
	MaxConnections int    `yaml:"max_connections"`
	MaxInputLength int    `yaml:"max_input_length"`
}

type GridConfig struct {
	space.GridConfig `yaml:",inline"`
	AOIRadius        int32 `yaml:"aoi_radius"`
}

type ScriptingConfig struct {
	Dir        string `yaml:"dir"`
	GridDir    string `yaml:"grid_dir"`
	ContentDir string `yaml:"content_dir"`
	HotReload  bool   `yaml:"hot_reload"`

	script.Config `yaml:",inline"`
}

type PluginsConfig struct {
	plugin.FuelConfig `yaml:",inline"`
	Plugins           []plugin.Config `yaml:"plugins"`
}

type PersistenceConfig struct {
	Dir          string `yaml:"dir"`
	MaxSnapshots int    `yaml:"max_snapshots"`
}

type PlayerDBConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Config is the top-level server configuration.
type Config struct {
	Mode        string            `yaml:"mode"`
	Net         NetConfig         `yaml:"net"`
	Tick        tick.Config       `yaml:"tick"`
	Grid        GridConfig        `yaml:"grid"`
	Scripting   ScriptingConfig   `yaml:"scripting"`
	Plugins     PluginsConfig     `yaml:"plugins"`
	Persistence PersistenceConfig `yaml:"persistence"`
	PlayerDB    PlayerDBConfig    `yaml:"playerdb"`
	Log         LogConfig         `yaml:"log"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Mode: ModeRooms,
		Net: NetConfig{
			Addr:           "0.0.0.0:4000",
			MaxConnections: 1000,
			MaxInputLength: 4096,
		},
		Tick: tick.DefaultConfig(),
		Grid: GridConfig{
			GridConfig: space.DefaultGridConfig(),
			AOIRadius:  32,
		},
		Scripting: ScriptingConfig{
			Dir:        "scripts",
			GridDir:    "scripts_grid",
			ContentDir: "content",
			Config:     script.DefaultConfig(),
		},
		Plugins: PluginsConfig{
			FuelConfig: plugin.DefaultFuelConfig(),
		},
		Persistence: PersistenceConfig{
			Dir:          "snapshots",
			MaxSnapshots: 5,
		},
		PlayerDB: PlayerDBConfig{
			Database: "game",
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  64,
			MaxBackups: 5,
		},
	}
}

// LoadReader decodes YAML over the defaults.
func LoadReader(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Load reads a config file, or returns defaults when path is empty.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()
	cfg, err := LoadReader(f)
	if err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Mode != ModeRooms && c.Mode != ModeGrid {
		return fmt.Errorf("config: unknown mode %q", c.Mode)
	}
	if c.Tick.TPS <= 0 {
		return fmt.Errorf("config: tick.tps must be positive")
	}
	if c.Mode == ModeGrid {
		if c.Grid.Width <= 0 || c.Grid.Height <= 0 {
			return fmt.Errorf("config: grid bounds must be positive")
		}
		if c.Grid.AOIRadius <= 0 {
			return fmt.Errorf("config: grid.aoi_radius must be positive")
		}
	}
	return nil
}

// ScriptDir picks the script directory for the configured mode, falling
// back to the shared directory when the grid-specific one is absent.
func (c *Config) ScriptDir() string {
	if c.Mode == ModeGrid && c.Scripting.GridDir != "" {
		if info, err := os.Stat(c.Scripting.GridDir); err == nil && info.IsDir() {
			return c.Scripting.GridDir
		}
	}
	return c.Scripting.Dir
}
