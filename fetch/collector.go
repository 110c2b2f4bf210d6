package fetch

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "notion_cli"

// collector exports Stats snapshots in the Prometheus format. Values are
// read at scrape time. The cache counters restart from zero after
// Fetcher.Clear, which Prometheus treats as a counter reset.
type collector struct {
	f *Fetcher

	cacheHits      *prometheus.Desc
	cacheMisses    *prometheus.Desc
	cacheEvictions *prometheus.Desc
	cacheEntries   *prometheus.Desc
	dedupLeaders   *prometheus.Desc
	dedupJoined    *prometheus.Desc
	dedupInFlight  *prometheus.Desc
	breakerState   *prometheus.Desc
	breakerFails   *prometheus.Desc
}

// Collector returns a prometheus.Collector for the Fetcher's component
// counters. Register it with a registry of the caller's choosing.
func (f *Fetcher) Collector() prometheus.Collector {
	return &collector{
		f: f,
		cacheHits: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "hits_total"),
			"Total number of cache hits, reset by Clear", nil, nil),
		cacheMisses: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "misses_total"),
			"Total number of cache misses, reset by Clear", nil, nil),
		cacheEvictions: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "evictions_total"),
			"Total number of LRU evictions, reset by Clear", nil, nil),
		cacheEntries: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "entries"),
			"Number of stored cache entries, expired ones included", nil, nil),
		dedupLeaders: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "dedup", "leaders_total"),
			"Total number of calls that went upstream", nil, nil),
		dedupJoined: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "dedup", "joined_total"),
			"Total number of calls served by an in-flight call", nil, nil),
		dedupInFlight: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "dedup", "in_flight"),
			"Number of upstream calls in flight", nil, nil),
		breakerState: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "breaker", "state"),
			"Current state of the circuit breaker (0=closed, 1=open, 2=half-open)", nil, nil),
		breakerFails: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "breaker", "consecutive_failures"),
			"Consecutive failures counted by the circuit breaker", nil, nil),
	}
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.cacheHits
	ch <- c.cacheMisses
	ch <- c.cacheEvictions
	ch <- c.cacheEntries
	ch <- c.dedupLeaders
	ch <- c.dedupJoined
	ch <- c.dedupInFlight
	ch <- c.breakerState
	ch <- c.breakerFails
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	s := c.f.Stats()

	if c.f.cache != nil {
		ch <- prometheus.MustNewConstMetric(c.cacheHits, prometheus.CounterValue, float64(s.Cache.Hits))
		ch <- prometheus.MustNewConstMetric(c.cacheMisses, prometheus.CounterValue, float64(s.Cache.Misses))
		ch <- prometheus.MustNewConstMetric(c.cacheEvictions, prometheus.CounterValue, float64(s.Cache.Evictions))
		ch <- prometheus.MustNewConstMetric(c.cacheEntries, prometheus.GaugeValue, float64(s.Cache.Size))
	}
	if c.f.dedup != nil {
		ch <- prometheus.MustNewConstMetric(c.dedupLeaders, prometheus.CounterValue, float64(s.Dedup.Leaders))
		ch <- prometheus.MustNewConstMetric(c.dedupJoined, prometheus.CounterValue, float64(s.Dedup.Joined))
		ch <- prometheus.MustNewConstMetric(c.dedupInFlight, prometheus.GaugeValue, float64(s.Dedup.InFlight))
	}
	if s.Breaker != nil {
		ch <- prometheus.MustNewConstMetric(c.breakerState, prometheus.GaugeValue, float64(s.Breaker.State))
		ch <- prometheus.MustNewConstMetric(c.breakerFails, prometheus.GaugeValue, float64(s.Breaker.ConsecutiveFailures))
	}
}
