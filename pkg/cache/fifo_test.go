package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamgideonidoko/sentinel/internal/models"
)

func analysis(hash string, score float64) *models.Analysis {
	return &models.Analysis{FingerprintHash: hash, RiskScore: score}
}

func TestAnalysisCache_PutGet(t *testing.T) {
	c := NewAnalysisCache(10)

	c.Put("a", analysis("a", 0.1))

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 0.1, got.RiskScore)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestAnalysisCache_EvictsOldestInsertion(t *testing.T) {
	c := NewAnalysisCache(DefaultAnalysisCapacity)

	for i := 0; i < DefaultAnalysisCapacity+1; i++ {
		key := fmt.Sprintf("fp-%d", i)
		c.Put(key, analysis(key, 0))
	}

	assert.Equal(t, DefaultAnalysisCapacity, c.Len())
	_, ok := c.Get("fp-0")
	assert.False(t, ok, "first key should have been evicted")
	_, ok = c.Get("fp-1")
	assert.True(t, ok)
	_, ok = c.Get(fmt.Sprintf("fp-%d", DefaultAnalysisCapacity))
	assert.True(t, ok)
}

func TestAnalysisCache_OverwriteKeepsPosition(t *testing.T) {
	c := NewAnalysisCache(3)
	c.Put("a", analysis("a", 0.1))
	c.Put("b", analysis("b", 0.2))
	c.Put("c", analysis("c", 0.3))

	c.Put("a", analysis("a", 0.9))
	assert.Equal(t, []string{"a", "b", "c"}, c.Keys())

	got, _ := c.Get("a")
	assert.Equal(t, 0.9, got.RiskScore)

	c.Put("d", analysis("d", 0.4))
	_, ok := c.Get("a")
	assert.False(t, ok, "overwrite must not refresh insertion order")
	assert.Equal(t, []string{"b", "c", "d"}, c.Keys())
}

func TestAnalysisCache_Recent(t *testing.T) {
	c := NewAnalysisCache(5)
	for i := 0; i < 4; i++ {
		key := fmt.Sprintf("k%d", i)
		c.Put(key, analysis(key, 0))
	}

	recent := c.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "k3", recent[0].FingerprintHash)
	assert.Equal(t, "k2", recent[1].FingerprintHash)

	assert.Len(t, c.Recent(0), 4)
	assert.Len(t, c.Recent(50), 4)
	assert.Empty(t, NewAnalysisCache(1).Recent(10))
}

func TestAnalysisCache_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultAnalysisCapacity, NewAnalysisCache(0).Capacity())
	assert.Equal(t, DefaultAnalysisCapacity, NewAnalysisCache(-5).Capacity())
}

func TestAnalysisCache_ConcurrentWriters(t *testing.T) {
	c := NewAnalysisCache(100)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				key := fmt.Sprintf("w%d-%d", w, i)
				c.Put(key, analysis(key, 0))
				c.Get(key)
				c.Recent(5)
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 100, c.Len())
	assert.Len(t, c.Keys(), 100)
}
