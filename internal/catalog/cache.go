package catalog

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/terraconstructs/jitaccess/internal/entitlement"
)

// entitlementCacheSize bounds the number of distinct (user, project,
// now-bucket) entries held at once.
const entitlementCacheSize = 4096

// cacheKey is the caller-scoped entitlement cache key: (user, projectId,
// now-bucket). Bucketing the current time means an entry
// naturally stops being served once its bucket rolls over, independent of
// the LRU's own TTL eviction.
type cacheKey struct {
	userEmail string
	projectID string
	bucket    int64
}

// entitlementCache is the caller-scoped EntitlementSet cache. Its TTL must
// be <= the configured activation duration, since a cached AVAILABLE
// entitlement must never outlive the window in which it could have been
// activated and become ACTIVE.
type entitlementCache struct {
	cache *lru.LRU[cacheKey, entitlement.Set]
	ttl   time.Duration
}

func newEntitlementCache(ttl time.Duration) *entitlementCache {
	if ttl <= 0 {
		return nil
	}
	return &entitlementCache{
		cache: lru.NewLRU[cacheKey, entitlement.Set](entitlementCacheSize, nil, ttl),
		ttl:   ttl,
	}
}

func (c *entitlementCache) key(userEmail, projectID string, now time.Time) cacheKey {
	bucketSeconds := int64(c.ttl.Seconds())
	if bucketSeconds <= 0 {
		bucketSeconds = 1
	}
	return cacheKey{
		userEmail: userEmail,
		projectID: projectID,
		bucket:    now.Unix() / bucketSeconds,
	}
}

func (c *entitlementCache) get(userEmail, projectID string, now time.Time) (entitlement.Set, bool) {
	if c == nil {
		return entitlement.Set{}, false
	}
	return c.cache.Get(c.key(userEmail, projectID, now))
}

func (c *entitlementCache) put(userEmail, projectID string, now time.Time, set entitlement.Set) {
	if c == nil {
		return
	}
	c.cache.Add(c.key(userEmail, projectID, now), set)
}
