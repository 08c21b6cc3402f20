package tool

import (
	"sync"

	"github.com/leofalp/toolchat/providers/ai"
)

// Catalog is an ordered, thread-safe collection of tools. Order matters:
// descriptors are advertised to the model in registration order, and dispatch
// resolves a model-supplied name against the same order (first match wins when
// duplicates exist).
type Catalog struct {
	mu    sync.RWMutex
	tools []GenericTool
}

// NewCatalog creates a catalog pre-populated with the given tools.
func NewCatalog(tools ...GenericTool) *Catalog {
	c := &Catalog{}
	c.Add(tools...)
	return c
}

// Add appends tools to the catalog, preserving argument order. Duplicate
// names are allowed here; Duplicates reports them so callers can warn.
func (c *Catalog) Add(tools ...GenericTool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tools = append(c.tools, tools...)
}

// Resolve returns the first tool whose name matches exactly.
func (c *Catalog) Resolve(name string) (GenericTool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, t := range c.tools {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}

// Describe derives descriptors for every tool in registration order. The
// first validation failure aborts, because a malformed descriptor is a
// configuration bug rather than a runtime condition.
func (c *Catalog) Describe() ([]ai.ToolDescription, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	descriptions := make([]ai.ToolDescription, 0, len(c.tools))
	for _, t := range c.tools {
		desc, err := t.Describe()
		if err != nil {
			return nil, err
		}
		descriptions = append(descriptions, desc)
	}
	return descriptions, nil
}

// Duplicates returns the names that appear more than once, each reported a
// single time, in first-occurrence order.
func (c *Catalog) Duplicates() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]int, len(c.tools))
	var duplicates []string
	for _, t := range c.tools {
		seen[t.Name()]++
		if seen[t.Name()] == 2 {
			duplicates = append(duplicates, t.Name())
		}
	}
	return duplicates
}

// Clone returns an independent copy sharing the same tool references. The
// orchestration loop clones the static catalog at the start of each round so
// dynamic registrations never leak back into the static set.
func (c *Catalog) Clone() *Catalog {
	c.mu.RLock()
	defer c.mu.RUnlock()

	clone := &Catalog{tools: make([]GenericTool, len(c.tools))}
	copy(clone.tools, c.tools)
	return clone
}

// Len returns the number of registered tools.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tools)
}
