package snapshot

import (
	"encoding/binary"
	"fmt"
)

// Migration upgrades a raw container from one schema version to the next.
// The table maps source version to upgrader; adding entries is the expected
// extension path when the format changes. It ships empty.
type Migration func([]byte) ([]byte, error)

// DecodeWithMigrations decodes a container, chaining migrations until the
// current version is reached. Unknown versions with no migration never load
// silently.
func DecodeWithMigrations(buf []byte, table map[uint32]Migration) (*World, error) {
	for hops := 0; hops <= len(table); hops++ {
		if len(buf) < 4 {
			return nil, ErrCorrupt
		}
		version := binary.LittleEndian.Uint32(buf)
		if version == Version {
			return Decode(buf)
		}
		migrate, ok := table[version]
		if !ok {
			return nil, fmt.Errorf("%w: %d with no migration", ErrSchemaMismatch, version)
		}
		upgraded, err := migrate(buf)
		if err != nil {
			return nil, fmt.Errorf("snapshot: migrate from %d: %w", version, err)
		}
		buf = upgraded
	}
	return nil, fmt.Errorf("%w: migration cycle", ErrSchemaMismatch)
}
