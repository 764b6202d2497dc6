package cache

import (
	"strings"
	"time"
)

const (
	defaultOrgTTL      = 10 * time.Minute
	defaultPlanTypeTTL = 30 * time.Minute
	defaultDateTTL     = time.Hour
)

// DimensionKeyCache memoizes resolved surrogate keys so repeated sightings of
// the same natural key skip the database round trip. Org entries are keyed on
// the natural key plus the Type-1 attributes, so an attribute change misses
// and forces the resolver to apply the update.
type DimensionKeyCache interface {
	GetOrgKey(orgID, orgName string) (int64, bool)
	SetOrgKey(orgID, orgName string, key int64)
	GetPlanTypeKey(name string) (int64, bool)
	SetPlanTypeKey(name string, key int64)
	HasDateKey(dateKey int) bool
	SetDateKey(dateKey int)
}

type dimensionKeyCache struct {
	orgs      Cache[string, int64]
	planTypes Cache[string, int64]
	dates     Cache[int, struct{}]
	orgTTL    time.Duration
	typeTTL   time.Duration
	dateTTL   time.Duration
}

// NewDimensionKeyCache returns an in-memory cache tuned for dimension lookups.
func NewDimensionKeyCache() DimensionKeyCache {
	return &dimensionKeyCache{
		orgs:      NewTTLCache[string, int64](),
		planTypes: NewTTLCache[string, int64](),
		dates:     NewTTLCache[int, struct{}](),
		orgTTL:    defaultOrgTTL,
		typeTTL:   defaultPlanTypeTTL,
		dateTTL:   defaultDateTTL,
	}
}

func (c *dimensionKeyCache) GetOrgKey(orgID, orgName string) (int64, bool) {
	return c.orgs.Get(cacheKey(orgID, orgName))
}

func (c *dimensionKeyCache) SetOrgKey(orgID, orgName string, key int64) {
	if key == 0 {
		return
	}
	c.orgs.Set(cacheKey(orgID, orgName), key, c.orgTTL)
}

func (c *dimensionKeyCache) GetPlanTypeKey(name string) (int64, bool) {
	return c.planTypes.Get(cacheKey(name))
}

func (c *dimensionKeyCache) SetPlanTypeKey(name string, key int64) {
	if key == 0 {
		return
	}
	c.planTypes.Set(cacheKey(name), key, c.typeTTL)
}

func (c *dimensionKeyCache) HasDateKey(dateKey int) bool {
	_, ok := c.dates.Get(dateKey)
	return ok
}

func (c *dimensionKeyCache) SetDateKey(dateKey int) {
	if dateKey <= 0 {
		return
	}
	c.dates.Set(dateKey, struct{}{}, c.dateTTL)
}

func cacheKey(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		values = append(values, strings.ToLower(trimmed))
	}
	return strings.Join(values, "|")
}
