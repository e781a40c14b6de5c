package cache

import (
	"container/list"
	"strings"
	"sync"
	"time"
)

// MemoryCache is an in-memory LRU cache with per-item TTL
type MemoryCache[V any] struct {
	maxSize    int
	defaultTTL time.Duration
	items      map[string]*list.Element
	lru        *list.List
	mu         sync.Mutex
	hits       int64
	misses     int64
	evictions  int64
}

type memoryCacheItem[V any] struct {
	key       string
	value     V
	expiresAt time.Time
}

// NewMemoryCache creates a cache holding at most maxSize items
func NewMemoryCache[V any](maxSize int, defaultTTL time.Duration) *MemoryCache[V] {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &MemoryCache[V]{
		maxSize:    maxSize,
		defaultTTL: defaultTTL,
		items:      make(map[string]*list.Element),
		lru:        list.New(),
	}
}

// Get retrieves an item, dropping it if expired
func (m *MemoryCache[V]) Get(key string) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero V
	element, exists := m.items[key]
	if !exists {
		m.misses++
		return zero, false
	}

	item := element.Value.(*memoryCacheItem[V])
	if time.Now().After(item.expiresAt) {
		m.removeElement(element)
		m.misses++
		return zero, false
	}

	m.lru.MoveToFront(element)
	m.hits++
	return item.value, true
}

// Set stores an item. A zero ttl uses the cache default.
func (m *MemoryCache[V]) Set(key string, value V, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ttl == 0 {
		ttl = m.defaultTTL
	}

	item := &memoryCacheItem[V]{
		key:       key,
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}

	if element, exists := m.items[key]; exists {
		element.Value = item
		m.lru.MoveToFront(element)
		return
	}

	m.items[key] = m.lru.PushFront(item)
	for len(m.items) > m.maxSize {
		if oldest := m.lru.Back(); oldest != nil {
			m.removeElement(oldest)
			m.evictions++
		}
	}
}

// Delete removes an item
func (m *MemoryCache[V]) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if element, exists := m.items[key]; exists {
		m.removeElement(element)
	}
}

// Clear removes all items
func (m *MemoryCache[V]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items = make(map[string]*list.Element)
	m.lru.Init()
}

// Clean removes expired items
func (m *MemoryCache[V]) Clean() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	removed := 0
	for element := m.lru.Back(); element != nil; {
		prev := element.Prev()
		if now.After(element.Value.(*memoryCacheItem[V]).expiresAt) {
			m.removeElement(element)
			removed++
		}
		element = prev
	}
	return removed
}

// Size returns the current number of items in cache
func (m *MemoryCache[V]) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Stats returns cache statistics
func (m *MemoryCache[V]) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Stats{
		TotalItems:     len(m.items),
		MaxSize:        m.maxSize,
		Hits:           m.hits,
		Misses:         m.misses,
		Evictions:      m.evictions,
		UtilizationPct: float64(len(m.items)) / float64(m.maxSize) * 100,
	}
}

func (m *MemoryCache[V]) removeElement(element *list.Element) {
	item := element.Value.(*memoryCacheItem[V])
	delete(m.items, item.key)
	m.lru.Remove(element)
}

// Stats contains memory cache statistics
type Stats struct {
	TotalItems     int     `json:"total_items"`
	MaxSize        int     `json:"max_size"`
	Hits           int64   `json:"hits"`
	Misses         int64   `json:"misses"`
	Evictions      int64   `json:"evictions"`
	UtilizationPct float64 `json:"utilization_pct"`
}

// BuildKey joins normalized key parts with "|"
func BuildKey(parts ...string) string {
	normalized := make([]string, len(parts))
	for i, p := range parts {
		normalized[i] = strings.Join(strings.Fields(strings.ToLower(p)), " ")
	}
	return strings.Join(normalized, "|")
}
