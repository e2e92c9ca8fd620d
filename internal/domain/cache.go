package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/coocood/freecache"

	"example.com/swimrun/internal/analytics"
)

// AnalyticsCache memoizes dashboard results. Engine results depend only on the
// session snapshot and the query parameters, so entries are keyed by those and
// never need explicit invalidation.
type AnalyticsCache struct {
	store *freecache.Cache
	ttl   time.Duration
}

// NewAnalyticsCache allocates a cache of sizeMB megabytes.
func NewAnalyticsCache(sizeMB int, ttl time.Duration) *AnalyticsCache {
	return &AnalyticsCache{
		store: freecache.NewCache(sizeMB * 1024 * 1024),
		ttl:   ttl,
	}
}

func (c *AnalyticsCache) get(key string, dst any) bool {
	if c == nil {
		return false
	}
	raw, err := c.store.Get([]byte(key))
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

func (c *AnalyticsCache) set(key string, value any) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	// Entries larger than the cache segment are rejected; that only means a miss next time.
	_ = c.store.Set([]byte(key), raw, int(c.ttl.Seconds()))
}

// fingerprint hashes the snapshot in order. Repositories return sessions in a
// stable order, so equal snapshots produce equal fingerprints.
func fingerprint(sessions []analytics.Session) string {
	d := xxhash.New()
	buf := make([]byte, 0, 64)
	for _, s := range sessions {
		buf = buf[:0]
		buf = append(buf, s.ID...)
		buf = append(buf, '|')
		buf = append(buf, s.Key()...)
		buf = append(buf, '|')
		buf = strconv.AppendUint(buf, math.Float64bits(s.Distance), 16)
		buf = append(buf, '|')
		buf = append(buf, s.Type...)
		buf = append(buf, '\n')
		_, _ = d.Write(buf)
	}
	return strconv.FormatUint(d.Sum64(), 16) + ":" + strconv.Itoa(len(sessions))
}
