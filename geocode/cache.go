package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/liamcoop/fairprice/internal/logger"
)

// DefaultCacheTTL keeps results for a day; place coordinates rarely move.
const DefaultCacheTTL = 24 * time.Hour

// Cached stores non-empty search results in Redis. Redis failures are
// counted and logged, then the inner geocoder is used directly.
type Cached struct {
	rdb       redis.UniversalClient
	inner     Geocoder
	namespace string
	ttl       time.Duration
}

// NewCached wraps inner. namespace separates regions that share a Redis.
func NewCached(rdb redis.UniversalClient, inner Geocoder, namespace string, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cached{rdb: rdb, inner: inner, namespace: namespace, ttl: ttl}
}

func (c *Cached) key(query string) string {
	return fmt.Sprintf("geocode:%s:%s", c.namespace, strings.ToLower(strings.TrimSpace(query)))
}

// Search checks Redis before delegating.
func (c *Cached) Search(ctx context.Context, query string) ([]Result, error) {
	key := c.key(query)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var results []Result
		if jerr := json.Unmarshal(raw, &results); jerr == nil {
			return results, nil
		}
		logger.GeocodeCacheFailures.Add(1)
		logger.WarnContext(ctx, "discarding corrupt geocode cache entry", "key", key)
	case errors.Is(err, redis.Nil):
	default:
		logger.GeocodeCacheFailures.Add(1)
		logger.WarnContext(ctx, "geocode cache read failed", "key", key, "error", err)
	}

	results, err := c.inner.Search(ctx, query)
	if err != nil || len(results) == 0 {
		return results, err
	}

	payload, err := json.Marshal(results)
	if err != nil {
		return results, nil
	}
	if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		logger.GeocodeCacheFailures.Add(1)
		logger.WarnContext(ctx, "geocode cache write failed", "key", key, "error", err)
	}
	return results, nil
}
