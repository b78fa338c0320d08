package cache

import (
	"sync"

	"github.com/RepairMe/extension/pkg/host"
)

// ItemNames caches item names resolved through the host game data, misses
// included.
type ItemNames struct {
	m       sync.RWMutex
	source  host.GameData
	names   map[uint32]itemName
	lookups SafeCounter
}

type itemName struct {
	name  string
	found bool
}

func NewItemNames(source host.GameData) *ItemNames {
	return &ItemNames{
		source: source,
		names:  make(map[uint32]itemName),
	}
}

// ItemName implements host.GameData.
func (c *ItemNames) ItemName(id uint32) (string, bool) {
	c.m.RLock()
	n, ok := c.names[id]
	c.m.RUnlock()
	if ok {
		return n.name, n.found
	}

	c.lookups.Inc()
	name, found := c.source.ItemName(id)

	c.m.Lock()
	c.names[id] = itemName{name: name, found: found}
	c.m.Unlock()
	return name, found
}

// Lookups is the number of times the host was asked for a name.
func (c *ItemNames) Lookups() int {
	return c.lookups.Value()
}

func (c *ItemNames) Len() int {
	c.m.RLock()
	defer c.m.RUnlock()
	return len(c.names)
}

// Reset drops every cached name, e.g. after a client language change.
func (c *ItemNames) Reset() {
	c.m.Lock()
	defer c.m.Unlock()
	c.names = make(map[uint32]itemName)
}

// SafeCounter is a thread-safe counter
type SafeCounter struct {
	mu sync.Mutex
	v  int
}

func (c *SafeCounter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

func (c *SafeCounter) Set(v int) {
	c.mu.Lock()
	c.v = v
	c.mu.Unlock()
}

func (c *SafeCounter) Inc() {
	c.mu.Lock()
	c.v++
	c.mu.Unlock()
}
