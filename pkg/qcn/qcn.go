// Package qcn implements the QCN Congestion Point numeric contract: Fb
// computation, quantization, adaptive sampling and feedback triggering
// (spec §4.2). Point carries no mutex of its own — per the concurrency
// model in §5, it is always invoked while the owning TBF holds its lock.
package qcn

import (
	"encoding/binary"
	"net"

	"github.com/galpt/qcn-cp/pkg/types"
)

// initialSampleCredit is sample_credit's value at init/reset (§3, §4.2).
const initialSampleCredit = 153600

// markTable maps the top three bits of qntz_Fb to the next sample_credit
// (§4.2 step 5). Index 0 is also the default for anything out of range,
// which cannot occur given qntz_Fb is always masked to 6 bits.
var markTable = [8]int64{
	153600, 76800, 51200, 38400, 30720, 25600, 22016, 18944,
}

// Point is the per-instance QCN state triple from §3: qlen, qlen_old and
// sample_credit, plus the pending_feedback latch.
type Point struct {
	qEQ int64
	w   int64

	qlen            int64
	qlenOld         int64
	sampleCredit    int64
	pendingFeedback bool
}

// New constructs a Point with the given Q_EQ/W tunables and the documented
// initial state (§4.2 "Initial state").
func New(qEQ, w int32) *Point {
	p := &Point{qEQ: int64(qEQ), w: int64(w)}
	p.Reset()
	return p
}

// Reset restores the documented initial state.
func (p *Point) Reset() {
	p.qlen = 0
	p.qlenOld = 0
	p.sampleCredit = initialSampleCredit
	p.pendingFeedback = false
}

// QueueLen returns the current qlen, the bytes this congestion point
// currently attributes to its queue.
func (p *Point) QueueLen() int64 { return p.qlen }

// PendingFeedback reports whether a feedback frame is latched waiting for
// the next IPv4 sample to carry it (§4.2 step 6).
func (p *Point) PendingFeedback() bool { return p.pendingFeedback }

// Dequeued must be called whenever a packet of length L leaves the queue via
// dequeue or drop (§4.2, last paragraph): it is the only way qlen decreases.
func (p *Point) Dequeued(length int) {
	p.qlen -= int64(length)
}

// Decision is QCN-CP's verdict for one admitted packet (§2).
type Decision struct {
	// Emit is true when a feedback frame should be handed to the emitter.
	Emit  bool
	Frame types.FeedbackFrame
}

// Observe runs the QCN algorithm for one admitted packet of byte length
// pkt.Length (§4.2 steps 1-6). It must be called exactly once per admitted
// packet, with the owning TBF's lock held.
func (p *Point) Observe(pkt types.Packet) Decision {
	L := int64(pkt.Length)

	// Step 1.
	p.qlen += L

	// Step 2: Fb with saturation.
	fb := (p.qEQ - p.qlen) - p.w*(p.qlen-p.qlenOld)
	lowerBound := -p.qEQ * (2*p.w + 1)
	switch {
	case fb < lowerBound:
		fb = lowerBound
	case fb > 0:
		fb = 0
	}

	// Step 3: quantize. -fb is non-negative by construction above, so the
	// uint32 conversion matches the original "(u32) -Fb" cast exactly.
	qntzFb := uint32(-fb) >> 13 & 0x3F

	// Step 4.
	p.sampleCredit -= L

	// Step 5.
	if p.sampleCredit < 0 {
		if qntzFb > 0 {
			p.pendingFeedback = true
		}
		p.qlenOld = p.qlen
		p.sampleCredit = markTable[qntzFb>>3]
	}

	// Step 6.
	if p.pendingFeedback && pkt.IsIPv4() {
		frame := types.FeedbackFrame{
			DA:     ipToUint32(pkt.DstIP),
			SA:     ipToUint32(pkt.SrcIP),
			Fb:     qntzFb,
			Qoff:   int32(p.qEQ - p.qlen),
			Qdelta: int32(p.qlen - p.qlenOld),
		}
		return Decision{Emit: true, Frame: frame}
	}
	return Decision{}
}

// ClearPending clears the pending_feedback latch. The caller invokes this
// only after a successful hand-off to the emitter (§4.2 step 6, §9): a
// transmit failure downstream must not retry, but a ring-push failure
// should leave the latch set so the next IPv4 sample retries the hand-off.
func (p *Point) ClearPending() {
	p.pendingFeedback = false
}

func ipToUint32(ip net.IP) uint32 {
	b := ip.To4()
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}
