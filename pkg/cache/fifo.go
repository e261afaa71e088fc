package cache

import (
	"container/list"
	"sync"

	"github.com/iamgideonidoko/sentinel/internal/models"
)

const DefaultAnalysisCapacity = 1000

// AnalysisCache keeps the most recent analyses keyed by fingerprint hash.
// Eviction is by insertion order; overwriting a key keeps its original position.
type AnalysisCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	entries  map[string]*list.Element
}

type analysisEntry struct {
	key      string
	analysis *models.Analysis
}

func NewAnalysisCache(capacity int) *AnalysisCache {
	if capacity <= 0 {
		capacity = DefaultAnalysisCapacity
	}
	return &AnalysisCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element, capacity),
	}
}

// Put stores an analysis, evicting the oldest insertion when full.
func (c *AnalysisCache) Put(key string, analysis *models.Analysis) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*analysisEntry).analysis = analysis
		return
	}

	if c.order.Len() >= c.capacity {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*analysisEntry).key)
	}

	c.entries[key] = c.order.PushBack(&analysisEntry{key: key, analysis: analysis})
}

func (c *AnalysisCache) Get(key string) (*models.Analysis, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return el.Value.(*analysisEntry).analysis, true
}

func (c *AnalysisCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *AnalysisCache) Capacity() int {
	return c.capacity
}

// Keys returns keys oldest first.
func (c *AnalysisCache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*analysisEntry).key)
	}
	return keys
}

// Recent returns up to n analyses, newest insertion first.
func (c *AnalysisCache) Recent(n int) []*models.Analysis {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n <= 0 || n > c.order.Len() {
		n = c.order.Len()
	}

	out := make([]*models.Analysis, 0, n)
	for el := c.order.Back(); el != nil && len(out) < n; el = el.Prev() {
		out = append(out, el.Value.(*analysisEntry).analysis)
	}
	return out
}
