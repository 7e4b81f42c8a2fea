// Package sched is the composition root for §4.5: one TBF, its inner
// queue and QCN-CP, wired to a feedback emitter so a successfully sampled
// packet's congestion frame is handed off without ever blocking admission.
package sched

import (
	"github.com/rs/zerolog"

	"github.com/galpt/qcn-cp/pkg/feedback"
	"github.com/galpt/qcn-cp/pkg/log"
	"github.com/galpt/qcn-cp/pkg/queue"
	"github.com/galpt/qcn-cp/pkg/stats"
	"github.com/galpt/qcn-cp/pkg/tbf"
	"github.com/galpt/qcn-cp/pkg/types"
)

// Scheduler is one queueing-discipline instance: admission, shaping and
// congestion sampling for one egress point.
type Scheduler struct {
	tbf     *tbf.TBF
	emitter *feedback.Emitter
	log     zerolog.Logger
}

// New builds a Scheduler over inner (the admission-policy queue — BFIFO,
// PFIFO or PFIFOHeadDrop), configured per cfg, emitting congestion feedback
// through emitter. onReady is invoked by the watchdog to ask the host
// scheduler to retry a deferred dequeue (§4.3 step 5).
func New(cfg types.Config, inner queue.Queue, emitter *feedback.Emitter, onReady func()) (*Scheduler, error) {
	s := &Scheduler{emitter: emitter, log: log.Component("sched")}
	push := func(pkt types.Packet, frame types.FeedbackFrame) bool {
		return emitter.Push(feedback.Envelope{
			Frame:         frame,
			OrigSrcMAC:    pkt.SrcMAC,
			OrigDstMAC:    pkt.DstMAC,
			IngressDevice: pkt.IngressDevice,
		})
	}
	t, err := tbf.New(cfg, inner, push, onReady)
	if err != nil {
		return nil, err
	}
	s.tbf = t
	return s, nil
}

// Enqueue admits a packet (§4.5 admission path).
func (s *Scheduler) Enqueue(p types.Packet) (types.AdmitResult, error) {
	result, err := s.tbf.Enqueue(p)
	if err != nil && err != types.ErrCongested {
		s.log.Debug().Str("device", p.IngressDevice).Int("len", p.Length).Err(err).Msg("enqueue rejected")
	}
	return result, err
}

// Dequeue polls the egress path (§4.5). Called repeatedly by the host
// scheduler; also the function onReady should trigger after a watchdog
// fires.
func (s *Scheduler) Dequeue() (types.Packet, bool) {
	return s.tbf.Dequeue()
}

// Throttled reports whether the underlying TBF is currently waiting on its
// watchdog (§4.3 state machine).
func (s *Scheduler) Throttled() bool {
	return s.tbf.Throttled()
}

// Drop releases the tail packet, keeping QCN's qlen consistent.
func (s *Scheduler) Drop() int {
	return s.tbf.Drop()
}

// Reset returns the scheduler to its IDLE state (§4.3 "reset").
func (s *Scheduler) Reset() {
	s.tbf.Reset()
}

// Configure applies a new control-plane payload, optionally swapping the
// inner queue (§4.5, §5 "change").
func (s *Scheduler) Configure(cfg types.Config, newInner queue.Queue) error {
	return s.tbf.Configure(cfg, newInner)
}

// Dump reports the current configuration (§6).
func (s *Scheduler) Dump() types.Dump {
	return s.tbf.Dump()
}

// Stats reports combined counters, including the emitter's feedback_sent
// and feedback_lost (§6).
func (s *Scheduler) Stats() types.Stats {
	st := s.tbf.Stats()
	sent, lost := s.emitter.Stats()
	st.FeedbackSent = sent
	st.FeedbackLost = lost
	return st
}

// prometheusSource adapts Scheduler to stats.Source: Scheduler.Stats
// already returns types.Stats, so the adaptation happens here rather than
// on Scheduler itself (Go forbids two Stats methods differing only by
// return type).
type prometheusSource struct{ s *Scheduler }

func (a prometheusSource) Stats() stats.StatsSnapshot {
	st := a.s.Stats()
	return stats.StatsSnapshot{
		Bytes:        st.Bytes,
		Packets:      st.Packets,
		Drops:        st.Drops,
		Overlimits:   st.Overlimits,
		Backlog:      st.Backlog,
		FeedbackSent: st.FeedbackSent,
		FeedbackLost: st.FeedbackLost,
	}
}

// PrometheusSource returns a view of this Scheduler suitable for
// registration with stats.Collector.Add.
func (s *Scheduler) PrometheusSource() stats.Source {
	return prometheusSource{s: s}
}

// Close tears the scheduler down: the watchdog is cancelled and joined
// (§5 "destroy MUST NOT return while a watchdog callback may still run").
// The emitter's own lifecycle is owned by whoever supervises its Run
// goroutine (typically an errgroup in cmd/qcn-cp), not by Scheduler.
func (s *Scheduler) Close() {
	s.tbf.Close()
}
