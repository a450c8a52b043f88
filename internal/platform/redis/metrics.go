package redis

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// PoolStatser is the part of a go-redis client the collector reads.
type PoolStatser interface {
	PoolStats() *redis.PoolStats
}

// PoolCollector exports connection pool statistics at scrape time.
type PoolCollector struct {
	pool PoolStatser

	hits, misses, timeouts, stale *prometheus.Desc
	total, idle                   *prometheus.Desc
}

func NewPoolCollector(pool PoolStatser) *PoolCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("tenantguard_redis_pool_"+name, help, nil, nil)
	}
	return &PoolCollector{
		pool:     pool,
		hits:     desc("hits_total", "Number of times a connection was found in the pool"),
		misses:   desc("misses_total", "Number of times a connection was not found in the pool"),
		timeouts: desc("timeouts_total", "Number of times a connection was not obtained due to timeout"),
		stale:    desc("stale_conns_total", "Number of stale connections removed from the pool"),
		total:    desc("total_conns", "Number of total connections in the pool"),
		idle:     desc("idle_conns", "Number of idle connections in the pool"),
	}
}

func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{c.hits, c.misses, c.timeouts, c.stale, c.total, c.idle} {
		ch <- d
	}
}

func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.pool.PoolStats()
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(s.Hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(s.Misses))
	ch <- prometheus.MustNewConstMetric(c.timeouts, prometheus.CounterValue, float64(s.Timeouts))
	ch <- prometheus.MustNewConstMetric(c.stale, prometheus.CounterValue, float64(s.StaleConns))
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(s.TotalConns))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(s.IdleConns))
}
