package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/woo850115-hub/project-g/internal/config"
	"github.com/woo850115-hub/project-g/internal/core/command"
	"github.com/woo850115-hub/project-g/internal/core/ecs"
	"github.com/woo850115-hub/project-g/internal/core/events/bus"
	"github.com/woo850115-hub/project-g/internal/core/observability/log"
	"github.com/woo850115-hub/project-g/internal/core/plugin"
	"github.com/woo850115-hub/project-g/internal/core/script"
	"github.com/woo850115-hub/project-g/internal/core/session"
	"github.com/woo850115-hub/project-g/internal/core/snapshot"
	"github.com/woo850115-hub/project-g/internal/core/space"
	"github.com/woo850115-hub/project-g/internal/core/tick"
	"github.com/woo850115-hub/project-g/internal/game"
	"github.com/woo850115-hub/project-g/internal/playerdb"
)

const channelDepth = 4096

// Server assembles the simulation core and its network boundary: one
// websocket listener feeding the inbound channel, one output router
// draining the outbound channel, and one goroutine owning the tick loop.
type Server struct {
	cfg    config.Config
	logger log.Log

	inbound  chan session.Inbound
	outbound chan session.Outbound
	router   *outputRouter

	loop    *tick.Loop
	scripts *script.Engine
	watcher *script.Watcher
	chars   playerdb.Store

	httpServer    *http.Server
	nextSessionID uint64
	connCount     int64
}

// New builds a fully wired server from configuration. Registry population
// happens here, once, before the first tick.
func New(cfg config.Config, logger log.Log) (*Server, error) {
	schema := game.BuildSchema()
	persistReg := ecs.NewPersistRegistry()
	game.RegisterPersist(persistReg)
	scriptReg := ecs.NewScriptRegistry()
	game.RegisterScript(scriptReg)

	store := ecs.NewStore(schema)
	stream := command.NewStream(logger)
	eventBus := bus.New()
	sessions := session.NewRegistry()

	var model space.Model
	var aoi *session.AOITracker
	if cfg.Mode == config.ModeGrid {
		model = space.NewGrid(cfg.Grid.GridConfig, cfg.Grid.AOIRadius)
		aoi = session.NewAOITracker(cfg.Grid.AOIRadius)
	} else {
		model = space.NewRoomGraph()
	}

	var content *script.Content
	if info, err := os.Stat(cfg.Scripting.ContentDir); err == nil && info.IsDir() {
		loaded, err := script.LoadContentDir(cfg.Scripting.ContentDir)
		if err != nil {
			return nil, fmt.Errorf("server: load content: %w", err)
		}
		content = loaded
		logger.Info("content loaded",
			log.Int("collections", len(loaded.Collections())),
			log.Int("items", loaded.Count()),
		)
	}

	scripts := script.NewEngine(cfg.Scripting.Config, schema, scriptReg, content, logger)
	scriptDir := cfg.ScriptDir()
	if info, err := os.Stat(scriptDir); err == nil && info.IsDir() {
		if err := scripts.LoadDirectory(scriptDir); err != nil {
			return nil, fmt.Errorf("server: load scripts: %w", err)
		}
		logger.Info("scripts loaded",
			log.Int("count", scripts.ScriptCount()),
			log.String("dir", scriptDir),
		)
	} else {
		logger.Info("no script directory, running without gameplay scripts",
			log.String("dir", scriptDir))
	}

	plugins := plugin.NewRuntime(cfg.Plugins.FuelConfig, logger)
	for _, pcfg := range cfg.Plugins.Plugins {
		if err := plugins.LoadFile(pcfg); err != nil {
			return nil, fmt.Errorf("server: %w", err)
		}
	}

	snapshots := snapshot.NewManager(cfg.Persistence.Dir, cfg.Persistence.MaxSnapshots, logger)

	var chars playerdb.Store
	if cfg.PlayerDB.URI != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoStore, err := playerdb.ConnectMongo(ctx, cfg.PlayerDB.URI, cfg.PlayerDB.Database)
		if err != nil {
			return nil, fmt.Errorf("server: %w", err)
		}
		chars = mongoStore
		logger.Info("player database connected", log.String("database", cfg.PlayerDB.Database))
	} else {
		chars = playerdb.NewMemoryStore()
	}

	inbound := make(chan session.Inbound, channelDepth)
	outbound := make(chan session.Outbound, channelDepth)

	loop := tick.NewLoop(cfg.Tick, tick.Deps{
		Store:       store,
		Space:       model,
		Stream:      stream,
		Bus:         eventBus,
		Plugins:     plugins,
		Scripts:     scripts,
		Sessions:    sessions,
		AOI:         aoi,
		Snapshots:   snapshots,
		PersistReg:  persistReg,
		ScriptReg:   scriptReg,
		Characters:  chars,
		Logger:      logger,
		NameOf:      game.NameOf,
		SpawnPlayer: game.SpawnPlayer,
	}, inbound, outbound)

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		inbound:  inbound,
		outbound: outbound,
		router:   newOutputRouter(logger),
		loop:     loop,
		scripts:  scripts,
		chars:    chars,
	}

	if cfg.Scripting.HotReload {
		watcher, err := script.NewWatcher(scriptDir)
		if err != nil {
			logger.Warn("script watcher unavailable", log.Error(err))
		} else {
			s.watcher = watcher
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	s.httpServer = &http.Server{Addr: cfg.Net.Addr, Handler: mux}

	return s, nil
}

// Run starts every task and blocks until the context is cancelled or a
// task fails.
func (s *Server) Run(ctx context.Context) error {
	if err := s.loop.Bootstrap(); err != nil {
		return fmt.Errorf("server: bootstrap: %w", err)
	}

	group, ctx := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	group.Go(func() error {
		s.router.run(s.outbound)
		return nil
	})

	group.Go(func() error {
		s.logger.Info("listening",
			log.String("addr", s.cfg.Net.Addr),
			log.String("mode", s.cfg.Mode),
		)
		err := s.httpServer.ListenAndServe()
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	})

	// The simulation thread. All state mutation happens here.
	group.Go(func() error {
		s.loop.Run(stop)
		close(s.outbound)
		return nil
	})

	if s.watcher != nil {
		group.Go(func() error {
			s.runWatcher(ctx)
			return nil
		})
	}

	group.Go(func() error {
		<-ctx.Done()
		close(stop)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
		if s.watcher != nil {
			_ = s.watcher.Close()
		}
		_ = s.chars.Close(shutdownCtx)
		return nil
	})

	return group.Wait()
}

// runWatcher forwards script file changes into engine reloads. Reload
// errors keep the old program in place.
func (s *Server) runWatcher(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case path, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			src, err := os.ReadFile(path)
			if err != nil {
				s.logger.Warn("script reload read failed", log.String("path", path), log.Error(err))
				continue
			}
			name := filepath.Base(path)
			posted := s.loop.Post(func() {
				if err := s.scripts.Reload(name, string(src)); err != nil {
					s.logger.Warn("script reload failed", log.String("path", path), log.Error(err))
				}
			})
			if !posted {
				s.logger.Warn("script reload deferred, work queue full", log.String("path", path))
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("script watcher error", log.Error(err))
		}
	}
}
