package metrics

import (
	"time"

	"github.com/cuemby/sdscompose/pkg/storage"
	"github.com/cuemby/sdscompose/pkg/types"
)

// DefaultCollectInterval is how often the collector refreshes gauges
const DefaultCollectInterval = 15 * time.Second

// Collector periodically refreshes the catalog and registry gauges and
// re-runs health probes
type Collector struct {
	store    storage.Store
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a collector over store
func NewCollector(store storage.Store, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = DefaultCollectInterval
	}
	return &Collector{
		store:    store,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.Collect()

		for {
			select {
			case <-ticker.C:
				c.Collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

// Collect refreshes every gauge once
func (c *Collector) Collect() {
	c.collectCatalogMetrics()
	c.collectPoolMetrics()
	RunProbes()
}

func (c *Collector) collectCatalogMetrics() {
	if backends, err := c.store.ListBackends(); err == nil {
		BackendsTotal.Set(float64(len(backends)))
	}
	if tiers, err := c.store.ListTiers(); err == nil {
		TiersTotal.Set(float64(len(tiers)))
	}
}

func (c *Collector) collectPoolMetrics() {
	pools, err := c.store.ListPools()
	if err != nil {
		return
	}

	counts := make(map[string]int)
	for _, kind := range types.KnownServiceKinds {
		counts[string(kind)] = 0
	}
	for _, pool := range pools {
		if pool.Deleted {
			continue
		}
		for _, svc := range pool.Services {
			counts[svc]++
		}
	}

	for svc, n := range counts {
		PoolsTotal.WithLabelValues(svc).Set(float64(n))
	}
}
