// Package stats exposes scheduler instance counters as Prometheus metrics,
// adapting the mutex-guarded collector pattern the pack's socket exporter
// uses for per-connection TCP info (§6 "Statistics exposed").
package stats

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Source is anything a Collector can poll for counters — satisfied by the
// adapter that (*sched.Scheduler).PrometheusSource returns, without stats
// importing sched (which would be a cycle).
type Source interface {
	Stats() StatsSnapshot
}

// StatsSnapshot mirrors types.Stats without importing pkg/types, keeping
// this package's only third-party dependency the metrics client.
type StatsSnapshot struct {
	Bytes        uint64
	Packets      uint64
	Drops        uint64
	Overlimits   uint64
	Backlog      uint64
	FeedbackSent uint64
	FeedbackLost uint64
}

var descriptors = []struct {
	desc    *prometheus.Desc
	kind    prometheus.ValueType
	valueOf func(StatsSnapshot) float64
}{
	{
		desc:    prometheus.NewDesc("qcn_cp_bytes_total", "Total bytes dequeued.", []string{"instance"}, nil),
		kind:    prometheus.CounterValue,
		valueOf: func(s StatsSnapshot) float64 { return float64(s.Bytes) },
	},
	{
		desc:    prometheus.NewDesc("qcn_cp_packets_total", "Total packets dequeued.", []string{"instance"}, nil),
		kind:    prometheus.CounterValue,
		valueOf: func(s StatsSnapshot) float64 { return float64(s.Packets) },
	},
	{
		desc:    prometheus.NewDesc("qcn_cp_drops_total", "Total packets dropped (tail or head).", []string{"instance"}, nil),
		kind:    prometheus.CounterValue,
		valueOf: func(s StatsSnapshot) float64 { return float64(s.Drops) },
	},
	{
		desc:    prometheus.NewDesc("qcn_cp_overlimits_total", "Total admission/dequeue overlimit events.", []string{"instance"}, nil),
		kind:    prometheus.CounterValue,
		valueOf: func(s StatsSnapshot) float64 { return float64(s.Overlimits) },
	},
	{
		desc:    prometheus.NewDesc("qcn_cp_backlog_bytes", "Current backlog occupancy in bytes.", []string{"instance"}, nil),
		kind:    prometheus.GaugeValue,
		valueOf: func(s StatsSnapshot) float64 { return float64(s.Backlog) },
	},
	{
		desc:    prometheus.NewDesc("qcn_cp_feedback_sent_total", "Total feedback frames transmitted.", []string{"instance"}, nil),
		kind:    prometheus.CounterValue,
		valueOf: func(s StatsSnapshot) float64 { return float64(s.FeedbackSent) },
	},
	{
		desc:    prometheus.NewDesc("qcn_cp_feedback_lost_total", "Total feedback frames dropped (ring full).", []string{"instance"}, nil),
		kind:    prometheus.CounterValue,
		valueOf: func(s StatsSnapshot) float64 { return float64(s.FeedbackLost) },
	},
}

// Collector exposes every registered scheduler instance's Stats() as
// Prometheus metrics, labeled by instance name.
type Collector struct {
	mu        sync.Mutex
	instances map[string]Source
}

// NewCollector constructs an empty Collector; instances are added with Add.
func NewCollector() *Collector {
	return &Collector{instances: make(map[string]Source)}
}

// Add registers a named scheduler instance for scraping.
func (c *Collector) Add(name string, src Source) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.instances[name] = src
}

// Remove unregisters a named instance, e.g. on device teardown.
func (c *Collector) Remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.instances, name)
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range descriptors {
		ch <- d.desc
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for name, src := range c.instances {
		snap := src.Stats()
		for _, d := range descriptors {
			ch <- prometheus.MustNewConstMetric(d.desc, d.kind, d.valueOf(snap), name)
		}
	}
}
