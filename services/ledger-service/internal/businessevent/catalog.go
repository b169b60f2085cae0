package businessevent

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// CatalogEntry is the default capture setting for one event type.
type CatalogEntry struct {
	Type     string   `yaml:"type" json:"type"`
	Category Category `yaml:"-" json:"category"`
	Enabled  bool     `yaml:"enabled" json:"enabled"`
}

// Catalog lists every known event type with its default capture flag.
// Capture is opt-in, so the built-in default is disabled for every type.
type Catalog struct {
	entries map[string]CatalogEntry
}

func DefaultCatalog() *Catalog {
	c := &Catalog{entries: make(map[string]CatalogEntry)}
	for _, d := range All() {
		c.entries[d.Name()] = CatalogEntry{Type: d.Name(), Category: d.Category()}
	}
	return c
}

// LoadCatalog reads YAML overrides from path on top of DefaultCatalog.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read event catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog applies a document of the form
//
//	events:
//	  - type: LoanApprovedBusinessEvent
//	    enabled: true
//
// to DefaultCatalog. Unknown types are rejected.
func ParseCatalog(data []byte) (*Catalog, error) {
	var doc struct {
		Events []CatalogEntry `yaml:"events"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse event catalog: %w", err)
	}

	c := DefaultCatalog()
	for _, e := range doc.Events {
		cur, ok := c.entries[e.Type]
		if !ok {
			return nil, fmt.Errorf("event catalog: unknown event type %q", e.Type)
		}
		cur.Enabled = e.Enabled
		c.entries[e.Type] = cur
	}
	return c, nil
}

func (c *Catalog) Lookup(eventType string) (CatalogEntry, bool) {
	e, ok := c.entries[eventType]
	return e, ok
}

func (c *Catalog) Has(eventType string) bool {
	_, ok := c.entries[eventType]
	return ok
}

// Entries returns the catalog sorted by type name.
func (c *Catalog) Entries() []CatalogEntry {
	out := make([]CatalogEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}
