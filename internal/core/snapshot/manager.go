package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/woo850115-hub/project-g/internal/core/observability/log"
)

const latestName = "latest.snap"

// Manager persists snapshots to a directory with atomic writes and bounded
// rotation: at most MaxKept tick-stamped files survive, oldest deleted
// after a new one lands. The latest pointer only moves once the full
// buffer is flushed, so a torn write never becomes the restore source.
type Manager struct {
	dir        string
	maxKept    int
	migrations map[uint32]Migration
	logger     log.Log
}

func NewManager(dir string, maxKept int, logger log.Log) *Manager {
	if maxKept <= 0 {
		maxKept = 5
	}
	return &Manager{
		dir:        dir,
		maxKept:    maxKept,
		migrations: make(map[uint32]Migration),
		logger:     logger,
	}
}

// RegisterMigration installs an upgrader for an older schema version.
func (m *Manager) RegisterMigration(fromVersion uint32, migrate Migration) {
	m.migrations[fromVersion] = migrate
}

// Save writes the snapshot, moves the latest pointer, and rotates old
// files. A failed write leaves the previous latest in place.
func (m *Manager) Save(w *World) (string, error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return "", fmt.Errorf("snapshot: create dir: %w", err)
	}

	buf := Encode(w)
	name := fmt.Sprintf("snapshot_tick_%020d.snap", w.Tick)
	path := filepath.Join(m.dir, name)

	if err := writeAtomic(path, buf); err != nil {
		return "", fmt.Errorf("snapshot: write %s: %w", name, err)
	}
	if err := writeAtomic(filepath.Join(m.dir, latestName), buf); err != nil {
		return "", fmt.Errorf("snapshot: update latest: %w", err)
	}

	m.rotate()

	m.logger.Info("snapshot saved",
		log.Uint64("tick", w.Tick),
		log.Int("bytes", len(buf)),
		log.String("path", path),
	)
	return path, nil
}

// HasLatest reports whether a restore source exists.
func (m *Manager) HasLatest() bool {
	_, err := os.Stat(filepath.Join(m.dir, latestName))
	return err == nil
}

// LoadLatest reads and decodes the latest snapshot, applying migrations as
// needed.
func (m *Manager) LoadLatest() (*World, error) {
	buf, err := os.ReadFile(filepath.Join(m.dir, latestName))
	if err != nil {
		return nil, fmt.Errorf("snapshot: read latest: %w", err)
	}
	w, err := DecodeWithMigrations(buf, m.migrations)
	if err != nil {
		return nil, err
	}
	m.logger.Info("snapshot loaded",
		log.Uint64("tick", w.Tick),
		log.Uint32("version", w.Version),
	)
	return w, nil
}

// rotate removes the oldest tick-stamped files beyond the retention limit.
func (m *Manager) rotate() {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return
	}
	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, "snapshot_tick_") && strings.HasSuffix(name, ".snap") {
			names = append(names, name)
		}
	}
	if len(names) <= m.maxKept {
		return
	}
	sort.Strings(names) // zero-padded tick numbers sort chronologically
	for _, name := range names[:len(names)-m.maxKept] {
		if err := os.Remove(filepath.Join(m.dir, name)); err != nil {
			m.logger.Warn("snapshot rotation failed", log.String("file", name), log.Error(err))
		}
	}
}

func writeAtomic(path string, buf []byte) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := f.Write(buf); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
