package sheet

import "sync"

// DefaultCacheCapacity is the number of parsed tables a Cache keeps.
const DefaultCacheCapacity = 8

// Cache keeps recently parsed tables keyed by source content and worksheet,
// so repeated loads of an unchanged spreadsheet skip parsing. Cached tables
// are shared and must be treated as read-only. It is safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	capacity int
	items    map[cacheKey]*cacheNode
	head     *cacheNode // most recently used
	tail     *cacheNode // least recently used
	hits     int64
	misses   int64
}

type cacheKey struct {
	source SourceID
	sheet  string
}

type cacheNode struct {
	key   cacheKey
	table *Table
	prev  *cacheNode
	next  *cacheNode
}

// CacheStats describes cache usage.
type CacheStats struct {
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Size     int   `json:"size"`
	Capacity int   `json:"capacity"`
}

// NewCache returns a cache holding up to capacity tables. A capacity of zero
// or less uses DefaultCacheCapacity.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	c := &Cache{
		capacity: capacity,
		items:    make(map[cacheKey]*cacheNode),
		head:     &cacheNode{},
		tail:     &cacheNode{},
	}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

// Load returns the table for data, parsing it only on a cache miss. The
// returned table carries name even when it was cached under another name.
func (c *Cache) Load(name string, data []byte, opts Options) (*Table, error) {
	key := cacheKey{source: IdentifySource(data), sheet: opts.SheetName}

	if cached, ok := c.get(key); ok {
		t := *cached
		t.Name = name
		return &t, nil
	}

	table, err := parse(name, data, key.source, opts)
	if err != nil {
		return nil, err
	}
	c.put(key, table)
	return table, nil
}

// Stats returns hit and miss counts and the current size.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Hits: c.hits, Misses: c.misses, Size: len(c.items), Capacity: c.capacity}
}

func (c *Cache) get(key cacheKey) (*Table, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.unlink(node)
	c.pushFront(node)
	return node.table, true
}

func (c *Cache) put(key cacheKey, table *Table) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if node, ok := c.items[key]; ok {
		node.table = table
		c.unlink(node)
		c.pushFront(node)
		return
	}

	node := &cacheNode{key: key, table: table}
	c.pushFront(node)
	c.items[key] = node

	if len(c.items) > c.capacity {
		lru := c.tail.prev
		c.unlink(lru)
		delete(c.items, lru.key)
	}
}

func (c *Cache) pushFront(node *cacheNode) {
	node.prev = c.head
	node.next = c.head.next
	c.head.next.prev = node
	c.head.next = node
}

func (c *Cache) unlink(node *cacheNode) {
	node.prev.next = node.next
	node.next.prev = node.prev
}
