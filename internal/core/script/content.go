package script

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Content is the read-only registry of dynamic content collections loaded
// from JSON at startup. Each top-level <collection>.json holds an array of
// objects carrying a string "id"; duplicate ids are a load error. Scripts
// see it through the world proxy.
type Content struct {
	collections map[string]map[string]map[string]any
}

func NewContent() *Content {
	return &Content{collections: make(map[string]map[string]map[string]any)}
}

// LoadContentDir reads every *.json file in the directory in sorted order.
func LoadContentDir(dir string) (*Content, error) {
	c := NewContent()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("content: read dir %s: %w", dir, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	for _, name := range names {
		buf, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("content: read %s: %w", name, err)
		}
		collection := strings.TrimSuffix(name, ".json")
		if err := c.LoadCollection(collection, buf); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// LoadCollection parses one JSON array into a named collection.
func (c *Content) LoadCollection(collection string, data []byte) error {
	var items []map[string]any
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("content: %s: %w", collection, err)
	}
	col := c.collections[collection]
	if col == nil {
		col = make(map[string]map[string]any)
		c.collections[collection] = col
	}
	for i, item := range items {
		id, ok := item["id"].(string)
		if !ok || id == "" {
			return fmt.Errorf("content: %s[%d]: missing or non-string id", collection, i)
		}
		if _, dup := col[id]; dup {
			return fmt.Errorf("content: %s: duplicate id %q", collection, id)
		}
		col[id] = item
	}
	return nil
}

// Get looks up one item.
func (c *Content) Get(collection, id string) (map[string]any, bool) {
	item, ok := c.collections[collection][id]
	return item, ok
}

// IDs lists a collection's item ids, sorted.
func (c *Content) IDs(collection string) []string {
	col := c.collections[collection]
	out := make([]string, 0, len(col))
	for id := range col {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Collections lists collection names, sorted.
func (c *Content) Collections() []string {
	out := make([]string, 0, len(c.collections))
	for name := range c.collections {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Count reports the total number of items across all collections.
func (c *Content) Count() int {
	n := 0
	for _, col := range c.collections {
		n += len(col)
	}
	return n
}
