package tbf

import (
	"net"
	"testing"
	"time"

	"github.com/galpt/qcn-cp/pkg/queue"
	"github.com/galpt/qcn-cp/pkg/types"
)

func testConfig() types.Config {
	var rate types.RateTable
	for i := range rate {
		rate[i] = time.Duration(i) * 10 * time.Microsecond
	}
	return types.Config{
		Limit:   1 << 20,
		Buffer:  5 * time.Millisecond,
		Mtu:     5 * time.Millisecond,
		Rate:    rate,
		CellLog: 3,
	}
}

func ipv4Packet(length int) types.Packet {
	return types.Packet{
		Length:   length,
		Protocol: types.ProtocolIPv4,
		SrcIP:    net.IPv4(10, 0, 0, 1),
		DstIP:    net.IPv4(10, 0, 0, 2),
	}
}

func newTestTBF(t *testing.T) *TBF {
	t.Helper()
	inner := queue.NewBFIFO(1 << 20)
	tb, err := New(testConfig(), inner, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tb
}

func TestEnqueueRejectsOverMaxSize(t *testing.T) {
	tb := newTestTBF(t)
	huge := ipv4Packet(tb.maxSize + 1)
	if _, err := tb.Enqueue(huge); err != types.ErrOverlimitDrop {
		t.Fatalf("err = %v, want ErrOverlimitDrop", err)
	}
	if tb.cp.QueueLen() != 0 {
		t.Fatalf("qlen = %d after rejected enqueue, want 0", tb.cp.QueueLen())
	}
}

func TestEnqueueDequeueRoundTrip(t *testing.T) {
	tb := newTestTBF(t)
	p := ipv4Packet(1500)
	if _, err := tb.Enqueue(p); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	out, ok := tb.Dequeue()
	if !ok {
		t.Fatal("Dequeue returned nothing")
	}
	if out.Length != 1500 {
		t.Fatalf("dequeued length = %d, want 1500", out.Length)
	}
	if tb.cp.QueueLen() != 0 {
		t.Fatalf("qlen = %d after dequeue, want 0", tb.cp.QueueLen())
	}
}

func TestDequeueEmptyReturnsFalse(t *testing.T) {
	tb := newTestTBF(t)
	if _, ok := tb.Dequeue(); ok {
		t.Fatal("Dequeue on empty queue returned true")
	}
}

func TestDequeueInsufficientTokensArmsWatchdog(t *testing.T) {
	inner := queue.NewBFIFO(1 << 20)
	cfg := testConfig()
	cfg.Buffer = 0
	ready := make(chan struct{}, 1)
	tb, err := New(cfg, inner, nil, func() { ready <- struct{}{} })
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// A zero buffer makes cfg.MaxSize() reject a 1500-byte packet outright;
	// this test cares about dequeue-time throttling, not admission sizing.
	tb.maxSize = 1 << 16
	p := ipv4Packet(1500)
	if _, err := tb.Enqueue(p); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, ok := tb.Dequeue(); ok {
		t.Fatal("Dequeue should have been throttled with zero buffer")
	}
	if !tb.Throttled() {
		t.Fatal("TBF did not record THROTTLED state")
	}
	select {
	case <-ready:
	case <-time.After(time.Second):
		t.Fatal("watchdog never fired onReady")
	}
}

func TestFIFOOrderPreservedUnderThrottling(t *testing.T) {
	tb := newTestTBF(t)
	for i := 0; i < 5; i++ {
		if _, err := tb.Enqueue(ipv4Packet(1000 + i)); err != nil {
			t.Fatalf("Enqueue %d: %v", i, err)
		}
	}
	for i := 0; i < 5; i++ {
		// The five packets cost more than the bucket holds, so later
		// dequeues are throttled; retry until tokens have accrued.
		out, ok := tb.Dequeue()
		for deadline := time.Now().Add(time.Second); !ok && time.Now().Before(deadline); {
			time.Sleep(time.Millisecond)
			out, ok = tb.Dequeue()
		}
		if !ok {
			t.Fatalf("Dequeue %d returned nothing", i)
		}
		if out.Length != 1000+i {
			t.Fatalf("dequeue %d length = %d, want %d (FIFO order violated)", i, out.Length, 1000+i)
		}
	}
}

func TestResetRestoresIdle(t *testing.T) {
	tb := newTestTBF(t)
	tb.Enqueue(ipv4Packet(1500))
	tb.Reset()
	if bytes, pkts := tb.inner.Backlog(); bytes != 0 || pkts != 0 {
		t.Fatalf("backlog after reset = (%d, %d), want (0, 0)", bytes, pkts)
	}
	if tb.cp.QueueLen() != 0 {
		t.Fatalf("qlen after reset = %d, want 0", tb.cp.QueueLen())
	}
	if tb.tokens != tb.cfg.Buffer {
		t.Fatalf("tokens after reset = %v, want full buffer %v", tb.tokens, tb.cfg.Buffer)
	}
	if tb.Throttled() {
		t.Fatal("reset did not clear THROTTLED")
	}
}

func TestFeedbackClearedOnlyOnSuccessfulPush(t *testing.T) {
	inner := queue.NewBFIFO(1 << 20)
	cfg := testConfig()
	pushed := 0
	accept := true
	tb, err := New(cfg, inner, func(types.Packet, types.FeedbackFrame) bool {
		pushed++
		return accept
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	accept = false
	for i := 0; i < 200; i++ {
		tb.Enqueue(ipv4Packet(1500))
		if tb.cp.PendingFeedback() {
			break
		}
	}
	if !tb.cp.PendingFeedback() {
		t.Fatal("expected pending feedback latch to survive a failed push")
	}

	accept = true
	tb.Enqueue(ipv4Packet(1500))
	if tb.cp.PendingFeedback() {
		t.Fatal("pending feedback should clear once the push succeeds")
	}
	if pushed == 0 {
		t.Fatal("pushFeedback was never invoked")
	}
}

func TestCloseStopsWatchdogCleanly(t *testing.T) {
	tb := newTestTBF(t)
	tb.Close()
}

// TestPeakBucketAccruesAgainstBuffer pins spec.md's dequeue algorithm: both
// buckets accrue elapsed time bounded by buffer, and only the post-accrual
// clamp differs (buffer for the rate bucket, mtu for the peak bucket) —
// buffer must be the elapsed-time accrual bound for ptoks too, never mtu.
// With mtu (5ms) configured larger than buffer (2ms), using mtu as the
// accrual bound would let the peak bucket over-accrue and dequeue a packet
// it should still be throttling.
func TestPeakBucketAccruesAgainstBuffer(t *testing.T) {
	inner := queue.NewBFIFO(1 << 20)
	cfg := testConfig()
	cfg.Buffer = 2 * time.Millisecond
	cfg.Mtu = 5 * time.Millisecond
	for i := range cfg.Rate {
		cfg.Rate[i] = 0
	}
	var peak types.RateTable
	for i := range peak {
		peak[i] = time.Duration(i) * 10 * time.Microsecond
	}
	cfg.PeakRate = &peak

	tb, err := New(cfg, inner, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// firstExceeding over an all-zero rate table never finds a cost exceeding
	// buffer/mtu, so cfg.MaxSize() would reject a 1500-byte packet outright;
	// this test cares about dequeue-time bucket math, not admission sizing.
	tb.maxSize = 1 << 16
	if _, err := tb.Enqueue(ipv4Packet(1500)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	tb.tokens = 0
	tb.ptokens = 0
	tb.tC = tb.now().Add(-3 * time.Millisecond)

	if _, ok := tb.Dequeue(); ok {
		t.Fatal("Dequeue succeeded: peak bucket over-accrued using mtu instead of buffer as its elapsed-time bound")
	}
	if !tb.Throttled() {
		t.Fatal("expected THROTTLED state from insufficient peak-bucket tokens")
	}
}

func TestAddressRewriteMasksFeedbackAddresses(t *testing.T) {
	inner := queue.NewBFIFO(1 << 20)
	cfg := testConfig()
	cfg.Feedback.AddressRewrite = true
	var got types.FeedbackFrame
	tb, err := New(cfg, inner, func(_ types.Packet, f types.FeedbackFrame) bool {
		got = f
		return true
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := 0; i < 200; i++ {
		tb.Enqueue(ipv4Packet(1500))
		if got.DA != 0 || got.SA != 0 {
			break
		}
	}
	if got.DA&^vmToPMMask != 0 || got.SA&^vmToPMMask != 0 {
		t.Fatalf("frame addresses not masked: DA=%#x SA=%#x", got.DA, got.SA)
	}
}
