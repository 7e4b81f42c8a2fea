package server

import (
	"sync"

	"github.com/galpt/qcn-cp/pkg/queue"
	"github.com/galpt/qcn-cp/pkg/sched"
	"github.com/galpt/qcn-cp/pkg/stats"
	"github.com/galpt/qcn-cp/pkg/types"
)

// Registry is the thread-safe collection of named scheduler instances the
// HTTP layer polls and reconfigures — one entry per egress device running
// a TBF/QCN-CP instance.
type Registry struct {
	mu        sync.RWMutex
	instances map[string]*sched.Scheduler
	collector *stats.Collector
}

// NewRegistry constructs an empty Registry backed by collector for metrics
// export (may be nil if Prometheus export isn't wired up).
func NewRegistry(collector *stats.Collector) *Registry {
	return &Registry{instances: make(map[string]*sched.Scheduler), collector: collector}
}

// Add registers a scheduler instance under device.
func (r *Registry) Add(device string, s *sched.Scheduler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances[device] = s
	if r.collector != nil {
		r.collector.Add(device, s.PrometheusSource())
	}
}

// Remove unregisters a device's scheduler instance.
func (r *Registry) Remove(device string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.instances, device)
	if r.collector != nil {
		r.collector.Remove(device)
	}
}

// Get returns the scheduler instance for device, if any.
func (r *Registry) Get(device string) (*sched.Scheduler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.instances[device]
	return s, ok
}

// Snapshot reports current InstanceStats for every registered device.
func (r *Registry) Snapshot() []types.InstanceStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.InstanceStats, 0, len(r.instances))
	for device, s := range r.instances {
		st := s.Stats()
		out = append(out, types.InstanceStats{
			Device:       device,
			Throttled:    s.Throttled(),
			Bytes:        st.Bytes,
			Packets:      st.Packets,
			Drops:        st.Drops,
			Overlimits:   st.Overlimits,
			Backlog:      st.Backlog,
			FeedbackSent: st.FeedbackSent,
			FeedbackLost: st.FeedbackLost,
		})
	}
	return out
}

// Configure reconfigures device's inner queue policy and TBF parameters.
func (r *Registry) Configure(device string, cfg types.Config, newInner queue.Queue) error {
	s, ok := r.Get(device)
	if !ok {
		return types.ErrBadConfig
	}
	return s.Configure(cfg, newInner)
}
