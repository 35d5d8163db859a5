package validators

import (
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/alicebob/miniredis/v2"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/cache"
	"github.com/redis/go-redis/v9"
)

func quietLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func newTestCache(t *testing.T) (*cache.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return cache.NewFromRedis(rdb, "test:", quietLogger()), mr
}

