// Package tbf implements the dual-bucket Token Bucket Filter shaper that
// wraps an inner admission queue and a QCN congestion point (spec §4.3,
// §4.5). TBF owns the only mutex on the scheduler fast path (§5): enqueue,
// dequeue, drop, reset and configure all take it.
package tbf

import (
	"sync"
	"time"

	"github.com/galpt/qcn-cp/pkg/qcn"
	"github.com/galpt/qcn-cp/pkg/queue"
	"github.com/galpt/qcn-cp/pkg/types"
)

// PushFeedback hands a computed feedback frame to the emitter, alongside
// the sampled packet that produced it (needed for Ethernet-transport
// addressing). It must never block; it reports whether the frame was
// actually accepted so the caller knows whether to clear the QCN
// pending_feedback latch (§4.2 step 6, §9 "clearing policy should be on
// successful ring push").
type PushFeedback func(types.Packet, types.FeedbackFrame) bool

// TBF is the dual leaky-bucket shaper from §3/§4.3. The zero value is not
// usable; construct with New.
type TBF struct {
	mu sync.Mutex

	inner queue.Queue
	cp    *qcn.Point
	wd    *Watchdog
	now   func() time.Time

	cfg     types.Config
	maxSize int

	tokens  time.Duration
	ptokens time.Duration
	tC      time.Time

	throttled  bool
	overlimits uint64

	pushFeedback PushFeedback
	// onReady is invoked from the watchdog goroutine once tokens should
	// have accrued enough to retry; the host scheduler is expected to call
	// Dequeue again (§4.3 step 5, §9 "watchdog re-enters dequeue").
	onReady func()
}

// New constructs a TBF over inner, configured per cfg, with push delivering
// feedback frames to the emitter and onReady notifying the host scheduler
// that a watchdog-deferred dequeue should be retried.
func New(cfg types.Config, inner queue.Queue, push PushFeedback, onReady func()) (*TBF, error) {
	t := &TBF{
		inner:        inner,
		wd:           NewWatchdog(),
		now:          time.Now,
		pushFeedback: push,
		onReady:      onReady,
	}
	if err := t.configureLocked(cfg, nil); err != nil {
		return nil, err
	}
	return t, nil
}

// Enqueue admits p, rejecting anything over max_size outright, then runs it
// through the inner queue's own admission policy and finally through QCN
// observation — in that order, matching the source: a packet the inner
// queue rejects is never counted by QCN (§4.5).
func (t *TBF) Enqueue(p types.Packet) (types.AdmitResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p.Length > t.maxSize {
		return 0, types.ErrOverlimitDrop
	}

	result, err := t.inner.Enqueue(p)
	if err != nil && err != types.ErrCongested {
		return result, err
	}

	decision := t.cp.Observe(p)
	if decision.Emit && t.pushFeedback != nil {
		if t.cfg.Feedback.AddressRewrite {
			decision.Frame.DA &= vmToPMMask
			decision.Frame.SA &= vmToPMMask
		}
		if t.pushFeedback(p, decision.Frame) {
			t.cp.ClearPending()
		}
	}
	return result, err
}

// vmToPMMask implements the optional "AND 0xFFFF00FF" VM->PM host-aliasing
// rule (§9): when enabled, feedback addresses are rewritten to the host
// bridge's address rather than the sampled VM's, so a VM-facing QCN-CP
// instance on a bridge can still be addressed by a fixed reaction point.
const vmToPMMask = 0xFFFF00FF

// Dequeue implements §4.3's dequeue algorithm: peek, lazily accrue bounded
// tokens, charge the head packet's time cost against both buckets, and only
// destructively dequeue if both buckets stay non-negative. On insufficient
// tokens it arms the watchdog and returns nothing — it never reorders the
// queue to find a packet that would fit.
func (t *TBF) Dequeue() (types.Packet, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dequeueLocked()
}

func (t *TBF) dequeueLocked() (types.Packet, bool) {
	p, ok := t.inner.Peek()
	if !ok {
		return types.Packet{}, false
	}

	now := t.now()
	elapsed := now.Sub(t.tC)

	toks := clampDuration(elapsed, t.cfg.Buffer) + t.tokens
	if toks > t.cfg.Buffer {
		toks = t.cfg.Buffer
	}
	toks -= t.cfg.Rate[cellIndex(p.Length, t.cfg.CellLog)]

	var ptoks time.Duration
	peakOK := true
	if t.cfg.PeakRate != nil {
		ptoks = clampDuration(elapsed, t.cfg.Buffer) + t.ptokens
		if ptoks > t.cfg.Mtu {
			ptoks = t.cfg.Mtu
		}
		ptoks -= t.cfg.PeakRate[cellIndex(p.Length, t.cfg.PeakCellLog)]
		peakOK = ptoks >= 0
	}

	if toks >= 0 && peakOK {
		p, _ = t.inner.Dequeue()
		t.tC = now
		t.tokens = toks
		t.ptokens = ptoks
		t.throttled = false
		t.cp.Dequeued(p.Length)
		return p, true
	}

	wait := -toks
	if t.cfg.PeakRate != nil && -ptoks > wait {
		wait = -ptoks
	}
	t.throttled = true
	t.overlimits++
	t.wd.Schedule(wait, func() {
		if t.onReady != nil {
			t.onReady()
		}
	})
	return types.Packet{}, false
}

// Drop releases the tail packet (e.g. from an external pressure signal) and
// keeps QCN's qlen consistent (§4.5 "Drop path").
func (t *TBF) Drop() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.inner.Drop()
	if n > 0 {
		t.cp.Dequeued(n)
	}
	return n
}

// Reset returns TBF to IDLE: full buckets, empty inner queue, QCN-CP
// reinitialized, watchdog cancelled (§4.3 "reset").
func (t *TBF) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetLocked()
}

func (t *TBF) resetLocked() {
	t.wd.Cancel()
	t.inner.Reset()
	t.cp.Reset()
	t.tokens = t.cfg.Buffer
	if t.cfg.PeakRate != nil {
		t.ptokens = t.cfg.Mtu
	} else {
		t.ptokens = 0
	}
	t.tC = t.now()
	t.throttled = false
	t.overlimits = 0
}

// Close cancels the watchdog and blocks until any in-flight callback has
// returned, guaranteeing no watchdog fires into a torn-down TBF (§5
// "destroy MUST NOT return while a watchdog callback may still run").
func (t *TBF) Close() {
	t.wd.Stop()
}

// Configure applies a new control-plane payload. When newInner is non-nil
// the inner queue is swapped and QCN-CP is reinitialized; otherwise the
// existing inner queue and its backlog are left untouched (§4.5, §5
// "re-initializes QCN-CP only if the inner queue was replaced").
func (t *TBF) Configure(cfg types.Config, newInner queue.Queue) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.configureLocked(cfg, newInner)
}

func (t *TBF) configureLocked(cfg types.Config, newInner queue.Queue) error {
	cfg.NormalizeDefaults()
	maxSize, err := cfg.MaxSize()
	if err != nil {
		return err
	}

	if newInner != nil {
		t.wd.Cancel()
		t.inner = newInner
		t.cp = qcn.New(cfg.QEQ, cfg.W)
	} else if t.cp == nil {
		t.cp = qcn.New(cfg.QEQ, cfg.W)
	}

	t.cfg = cfg
	t.maxSize = maxSize
	t.tokens = cfg.Buffer
	if cfg.PeakRate != nil {
		t.ptokens = cfg.Mtu
	} else {
		t.ptokens = 0
	}
	t.tC = t.now()
	t.throttled = false
	return nil
}

// Dump reports the current configuration (§6).
func (t *TBF) Dump() types.Dump {
	t.mu.Lock()
	defer t.mu.Unlock()
	return types.Dump{
		Limit:    t.cfg.Limit,
		Rate:     t.cfg.Rate,
		PeakRate: t.cfg.PeakRate,
		Mtu:      t.cfg.Mtu,
		Buffer:   t.cfg.Buffer,
	}
}

// Stats reports combined inner-queue and TBF-level counters (§6 "bytes,
// packets, drops, overlimits, backlog").
func (t *TBF) Stats() types.Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.inner.Stats()
	backlogBytes, _ := t.inner.Backlog()
	s.Backlog = uint64(backlogBytes)
	s.Overlimits += t.overlimits
	return s
}

// Throttled reports whether the shaper is currently waiting on its
// watchdog (§4.3 state machine).
func (t *TBF) Throttled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.throttled
}

func clampDuration(d, bound time.Duration) time.Duration {
	if d > bound {
		return bound
	}
	if d < 0 {
		return 0
	}
	return d
}

func cellIndex(length int, cellLog uint8) int {
	idx := length >> cellLog
	if idx > 255 {
		idx = 255
	}
	return idx
}
