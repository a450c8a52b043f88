package redis

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenantguard/internal/platform/config"
)

type fixedPool struct{ stats redis.PoolStats }

func (p fixedPool) PoolStats() *redis.PoolStats { return &p.stats }

func TestPoolCollector(t *testing.T) {
	c := NewPoolCollector(fixedPool{stats: redis.PoolStats{Hits: 12, Misses: 3, TotalConns: 5, IdleConns: 2}})

	expected := `
# HELP tenantguard_redis_pool_hits_total Number of times a connection was found in the pool
# TYPE tenantguard_redis_pool_hits_total counter
tenantguard_redis_pool_hits_total 12
# HELP tenantguard_redis_pool_idle_conns Number of idle connections in the pool
# TYPE tenantguard_redis_pool_idle_conns gauge
tenantguard_redis_pool_idle_conns 2
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"tenantguard_redis_pool_hits_total", "tenantguard_redis_pool_idle_conns"))
	assert.Equal(t, 6, testutil.CollectAndCount(c))
}

func TestNewWithoutURL(t *testing.T) {
	c, err := New(config.RedisConfig{})
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New(config.RedisConfig{URL: "://nope"})
	assert.Error(t, err)
}
