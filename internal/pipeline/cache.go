package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/maypok86/otter/v2"
)

// Cache stores finished parse results keyed by input fingerprint, so
// re-submitting the same photo text on the same day costs nothing.
type Cache interface {
	Get(key string) (*ParseResult, bool)
	Set(key string, result *ParseResult)
}

// OtterCache is the production cache: bounded, TTL from write.
type OtterCache struct {
	inner *otter.Cache[string, *ParseResult]
}

// NewOtterCache builds a cache holding at most maxEntries results, each
// expiring ttl after write.
func NewOtterCache(maxEntries int, ttl time.Duration) *OtterCache {
	return &OtterCache{
		inner: otter.Must(&otter.Options[string, *ParseResult]{
			MaximumSize:      maxEntries,
			ExpiryCalculator: otter.ExpiryWriting[string, *ParseResult](ttl),
		}),
	}
}

func (c *OtterCache) Get(key string) (*ParseResult, bool) {
	return c.inner.GetIfPresent(key)
}

func (c *OtterCache) Set(key string, result *ParseResult) {
	c.inner.Set(key, result)
}

// NoopCache disables caching; every request runs the full pipeline.
type NoopCache struct{}

func (NoopCache) Get(string) (*ParseResult, bool) { return nil, false }
func (NoopCache) Set(string, *ParseResult)        {}

// cacheKey fingerprints the normalized text together with the reference
// day and timezone. A new day shifts relative-date resolution, so
// yesterday's entry must not answer today's request.
func cacheKey(normalized string, ref time.Time, timezone string) string {
	sum := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%s|%s|%s", hex.EncodeToString(sum[:]), ref.Format("2006-01-02"), timezone)
}
