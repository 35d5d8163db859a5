// Package validators implements the field validators used by the order
// pipeline and the standalone validation endpoints. Every validator returns a
// result value; the error return is reserved for infrastructure failures the
// caller cannot treat as a negative answer.
package validators

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/metrics"
)

// Options tunes a single validation call.
type Options struct {
	// SkipCache bypasses both the cache read and the cache write.
	SkipCache bool
	// Timeout bounds the whole call when set.
	Timeout time.Duration
}

// TestMode returns the options used for the rule-enrichment pass: no cache,
// short external lookups.
func TestMode(timeout time.Duration) Options {
	return Options{SkipCache: true, Timeout: timeout}
}

// Cache is the result cache shared by the validators. *cache.Client satisfies it.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
}

func withTimeout(ctx context.Context, opts Options) (context.Context, context.CancelFunc) {
	if opts.Timeout > 0 {
		return context.WithTimeout(ctx, opts.Timeout)
	}
	return context.WithCancel(ctx)
}

// fromCache reads a cached result. Cache errors are logged and reported as a miss.
func fromCache[T any](ctx context.Context, c Cache, logger ectologger.Logger, validator, key string, opts Options) (T, bool) {
	var out T
	if c == nil || opts.SkipCache {
		return out, false
	}

	found, err := c.GetJSON(ctx, key, &out)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Warnf("%s cache read failed", validator)
		return out, false
	}
	metrics.RecordCacheLookup(validator, found)
	return out, found
}

func toCache(ctx context.Context, c Cache, logger ectologger.Logger, validator, key string, v any, ttl time.Duration, opts Options) {
	if c == nil || opts.SkipCache || ttl <= 0 {
		return
	}
	if err := c.SetJSON(ctx, key, v, ttl); err != nil {
		logger.WithContext(ctx).WithError(err).Warnf("%s cache write failed", validator)
	}
}

func appendUnique(codes []string, code string) []string {
	for _, c := range codes {
		if c == code {
			return codes
		}
	}
	return append(codes, code)
}

// HasReason reports whether codes contains code.
func HasReason(codes []string, code string) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}
