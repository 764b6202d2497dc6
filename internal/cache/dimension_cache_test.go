package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTTLCacheExpiry(t *testing.T) {
	c := NewTTLCache[string, int]()

	c.Set("a", 1, 10*time.Millisecond)
	got, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, got)

	time.Sleep(20 * time.Millisecond)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestTTLCacheNoExpiryWhenTTLZero(t *testing.T) {
	c := NewTTLCache[string, int]()

	c.Set("a", 1, 0)
	time.Sleep(5 * time.Millisecond)
	_, ok := c.Get("a")
	assert.True(t, ok)
}

func TestDimensionKeyCacheMissesOnAttributeChange(t *testing.T) {
	c := NewDimensionKeyCache()

	c.SetOrgKey("acme", "Acme Health", 101)

	key, ok := c.GetOrgKey("acme", "Acme Health")
	assert.True(t, ok)
	assert.Equal(t, int64(101), key)

	// Renamed org must miss so the resolver re-applies the update.
	_, ok = c.GetOrgKey("acme", "Acme Health Group")
	assert.False(t, ok)
}

func TestDimensionKeyCacheNormalizesKeys(t *testing.T) {
	c := NewDimensionKeyCache()

	c.SetPlanTypeKey("  InNetwork ", 7)
	key, ok := c.GetPlanTypeKey("innetwork")
	assert.True(t, ok)
	assert.Equal(t, int64(7), key)
}

func TestDimensionKeyCacheIgnoresZeroValues(t *testing.T) {
	c := NewDimensionKeyCache()

	c.SetOrgKey("acme", "Acme", 0)
	_, ok := c.GetOrgKey("acme", "Acme")
	assert.False(t, ok)

	c.SetDateKey(0)
	assert.False(t, c.HasDateKey(0))

	c.SetDateKey(20240115)
	assert.True(t, c.HasDateKey(20240115))
}
