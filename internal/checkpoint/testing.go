package checkpoint

import (
	"time"

	"github.com/redis/rueidis"
)

// NewRedisForTest creates a Redis store with the provided rueidis client (test-only).
func NewRedisForTest(c rueidis.Client, prefix string, ttl time.Duration) *Redis {
	return newRedis(c, prefix, ttl)
}
