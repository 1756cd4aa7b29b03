package script

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/d5/tengo/v2"
	"github.com/stretchr/testify/require"
)

func Test_Content_LoadCollection(t *testing.T) {
	c := NewContent()
	require.NoError(t, c.LoadCollection("monsters", []byte(`[
		{"id": "rat", "name": "Sewer Rat", "hp": 10},
		{"id": "bat", "name": "Cave Bat", "hp": 6}
	]`)))

	require.Equal(t, []string{"bat", "rat"}, c.IDs("monsters"))
	require.Equal(t, 2, c.Count())

	rat, ok := c.Get("monsters", "rat")
	require.True(t, ok)
	require.Equal(t, "Sewer Rat", rat["name"])

	_, ok = c.Get("monsters", "dragon")
	require.False(t, ok)
}

func Test_Content_DuplicateIDRejected(t *testing.T) {
	c := NewContent()
	err := c.LoadCollection("items", []byte(`[
		{"id": "sword"},
		{"id": "sword"}
	]`))
	require.Error(t, err)
}

func Test_Content_MissingIDRejected(t *testing.T) {
	c := NewContent()
	require.Error(t, c.LoadCollection("items", []byte(`[{"name": "anonymous"}]`)))
	require.Error(t, c.LoadCollection("items", []byte(`{"id": "not-an-array"}`)))
}

func Test_Content_LoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rooms.json"),
		[]byte(`[{"id": "square", "name": "Square"}]`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "items.json"),
		[]byte(`[{"id": "torch"}]`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"),
		[]byte("ignored"), 0o644))

	c, err := LoadContentDir(dir)
	require.NoError(t, err)
	require.Equal(t, []string{"items", "rooms"}, c.Collections())

	_, ok := c.Get("rooms", "square")
	require.True(t, ok)
}

func Test_Content_ScriptLookup(t *testing.T) {
	c := NewContent()
	require.NoError(t, c.LoadCollection("monsters", []byte(`[
		{"id": "rat", "name": "Sewer Rat", "hp": 10}
	]`)))

	w := newTestWorld(t)
	w.engine.content = c
	require.NoError(t, w.engine.LoadSource("spawner.tengo", `
hooks.on_tick(func(world, tick) {
	def := world.content("monsters", "rat")
	if def != undefined {
		__state.name = def.name
		__state.hp = def.hp
	}
	__state.all = world.content_ids("monsters")
})
`))

	w.engine.RunTick(w.store, w.rooms, w.sessions, 1)
	name, ok := tengo.ToString(w.engine.scripts[0].state.Value["name"])
	require.True(t, ok)
	require.Equal(t, "Sewer Rat", name)
}
