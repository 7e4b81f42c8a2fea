// Package history keeps a short time series of per-instance counters so
// the HTTP layer can chart throughput, drops and feedback rate without
// re-deriving them from cumulative counters on every request.
package history

import (
	"sync"
	"time"

	"github.com/galpt/qcn-cp/pkg/types"
)

// instanceState tracks one device's previous cumulative counters and its
// ring buffer of derived samples.
type instanceState struct {
	prevBytes      uint64
	prevDrops      uint64
	prevFeedback   uint64
	prevOverlimits uint64
	prevTime       time.Time

	samples []types.HistorySample
	head    int
	count   int
}

func newInstanceState(capacity int, s types.InstanceStats) *instanceState {
	return &instanceState{
		prevBytes:      s.Bytes,
		prevDrops:      s.Drops,
		prevFeedback:   s.FeedbackSent,
		prevOverlimits: s.Overlimits,
		prevTime:       time.Now(),
		samples:        make([]types.HistorySample, capacity),
	}
}

func (st *instanceState) push(s types.HistorySample, capacity int) {
	st.samples[st.head] = s
	st.head = (st.head + 1) % capacity
	if st.count < capacity {
		st.count++
	}
}

func (st *instanceState) ordered(capacity int) []types.HistorySample {
	if st.count == 0 {
		return nil
	}
	out := make([]types.HistorySample, st.count)
	if st.count < capacity {
		copy(out, st.samples[:st.count])
	} else {
		n := copy(out, st.samples[st.head:])
		copy(out[n:], st.samples[:st.head])
	}
	return out
}

// Store is a thread-safe collection of per-instance ring buffers.
type Store struct {
	mu        sync.RWMutex
	instances map[string]*instanceState
	capacity  int
}

// NewStore constructs a Store retaining up to capacity samples per
// instance.
func NewStore(capacity int) *Store {
	if capacity < 2 {
		capacity = 2
	}
	return &Store{instances: make(map[string]*instanceState), capacity: capacity}
}

// Record folds one poll's worth of instance snapshots into the history,
// computing per-second rates from the delta against the previous poll, and
// fills the rate fields of each InstanceStats in place (mirroring the
// teacher's in-place annotation of its own stats structs).
func (hs *Store) Record(stats []types.InstanceStats, interval time.Duration) {
	now := time.Now()
	hs.mu.Lock()
	defer hs.mu.Unlock()

	for i := range stats {
		s := &stats[i]
		st, exists := hs.instances[s.Device]
		if !exists {
			hs.instances[s.Device] = newInstanceState(hs.capacity, *s)
			continue
		}

		elapsed := now.Sub(st.prevTime).Seconds()
		if elapsed <= 0 {
			elapsed = interval.Seconds()
		}

		bytesPerS := rate(st.prevBytes, s.Bytes, elapsed)
		dropsPerS := rate(st.prevDrops, s.Drops, elapsed)
		feedbackPerS := rate(st.prevFeedback, s.FeedbackSent, elapsed)
		overlimitsPerS := rate(st.prevOverlimits, s.Overlimits, elapsed)

		s.BytesPerS = bytesPerS
		s.DropsPerS = dropsPerS
		s.FeedbackPerS = feedbackPerS
		s.OverlimitsPerS = overlimitsPerS

		st.push(types.HistorySample{
			T:          now.Unix(),
			BytesPerS:  bytesPerS,
			Backlog:    float64(s.Backlog),
			DropsPerS:  dropsPerS,
			FeedbackPS: feedbackPerS,
		}, hs.capacity)

		st.prevBytes = s.Bytes
		st.prevDrops = s.Drops
		st.prevFeedback = s.FeedbackSent
		st.prevOverlimits = s.Overlimits
		st.prevTime = now
	}

	active := make(map[string]struct{}, len(stats))
	for _, s := range stats {
		active[s.Device] = struct{}{}
	}
	for key := range hs.instances {
		if _, ok := active[key]; !ok {
			delete(hs.instances, key)
		}
	}
}

// Snapshot returns every instance's ordered sample history.
func (hs *Store) Snapshot() types.HistoryResponse {
	hs.mu.RLock()
	defer hs.mu.RUnlock()
	out := make(types.HistoryResponse, len(hs.instances))
	for key, st := range hs.instances {
		if samples := st.ordered(hs.capacity); len(samples) > 0 {
			out[key] = samples
		}
	}
	return out
}

// rate computes a non-negative per-second delta; counters that appear to
// have gone backwards (e.g. a Reset between polls) report zero rather than
// a nonsensical negative rate.
func rate(prev, curr uint64, elapsedSeconds float64) float64 {
	if curr < prev {
		return 0
	}
	return float64(curr-prev) / elapsedSeconds
}
