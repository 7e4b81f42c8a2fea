package types

import "time"

// RateTable maps a byte-length index (0-255, after cell_log quantization) to
// a time cost at a configured rate. Linux psched tables express this in
// abstract "time units"; we use time.Duration directly, which is the
// idiomatic Go representation of the same quantity and lets TBF's token
// arithmetic use the standard time package throughout.
type RateTable [256]time.Duration

// FeedbackTransport selects how feedback frames leave the box (§4.4).
type FeedbackTransport uint8

const (
	// TransportUDP sends the 20-byte payload as a UDP datagram.
	TransportUDP FeedbackTransport = iota
	// TransportEthernet hands a 64-byte Ethernet-encapsulated frame to the
	// sampled packet's ingress device.
	TransportEthernet
)

// DefaultFeedbackPort is the default loopback UDP port feedback frames are
// sent to (§3, §4.4).
const DefaultFeedbackPort = 6660

// FeedbackConfig configures the emitter's transport (§4.4, §9).
type FeedbackConfig struct {
	Transport FeedbackTransport

	// Addr is the destination for TransportUDP. Defaults to
	// 127.0.0.1:DefaultFeedbackPort.
	Addr string

	// AddressRewrite enables the "AND 0xFFFF00FF" VM->PM host-aliasing rule
	// described in §9. Disabled by default, matching the source (loopback
	// hardcoded); deployments that run QCN on a bridge fronting VMs laid out
	// per that convention can turn it on.
	AddressRewrite bool
}

// Config is the control-plane configuration payload from §6.
type Config struct {
	// Limit bounds the inner queue (bytes for BFIFO, packets for PFIFO
	// variants).
	Limit uint32

	// Buffer is the rate-bucket depth, Mtu the peak-bucket depth, both in
	// time units.
	Buffer time.Duration
	Mtu    time.Duration

	Rate     RateTable
	PeakRate *RateTable

	// CellLog/PeakCellLog are the shift amounts used to derive MaxSize from
	// the rate tables (§6).
	CellLog     uint8
	PeakCellLog uint8

	// QEQ and W are the QCN tunables (§4.2, §6). Zero values are replaced
	// with the documented defaults by NormalizeDefaults.
	QEQ int32
	W   int32

	Feedback FeedbackConfig
}

// NormalizeDefaults fills QEQ/W with their documented defaults when unset.
// Safe to call repeatedly; it never overwrites an explicit non-zero value.
func (c *Config) NormalizeDefaults() {
	if c.QEQ == 0 {
		c.QEQ = DefaultQEQ
	}
	if c.W == 0 {
		c.W = DefaultW
	}
	if c.Feedback.Addr == "" {
		c.Feedback.Addr = "127.0.0.1:6660"
	}
}

// QCN tunable defaults (§4.2, §6).
const (
	DefaultQEQ = 33792
	DefaultW   = 2
)

// MaxSize computes the largest admissible packet length per §6: the first
// rate-table index whose cost exceeds Buffer, left-shifted by CellLog, minus
// one; further reduced by the analogous peak-rate computation if present.
// Returns ErrBadConfig if the result would be negative.
func (c Config) MaxSize() (int, error) {
	n := firstExceeding(c.Rate, c.Buffer)
	maxSize := (n << c.CellLog) - 1
	if c.PeakRate != nil {
		pn := firstExceeding(*c.PeakRate, c.Mtu)
		if peakSize := (pn << c.PeakCellLog) - 1; peakSize < maxSize {
			maxSize = peakSize
		}
	}
	if maxSize < 0 {
		return 0, ErrBadConfig
	}
	return maxSize, nil
}

func firstExceeding(tab RateTable, bound time.Duration) int {
	for n, cost := range tab {
		if cost > bound {
			return n
		}
	}
	return len(tab)
}

// Dump is the read-back view of a scheduler instance's configuration (§6).
type Dump struct {
	Limit    uint32
	Rate     RateTable
	PeakRate *RateTable
	Mtu      time.Duration
	Buffer   time.Duration
}

// Stats are the counters exposed per §6 "Statistics exposed".
type Stats struct {
	Bytes      uint64
	Packets    uint64
	Drops      uint64
	Overlimits uint64
	Backlog    uint64

	FeedbackSent uint64
	FeedbackLost uint64
}
