package netlinkcfg

import (
	"testing"
	"time"

	"github.com/galpt/qcn-cp/pkg/types"
)

func sampleConfig() types.Config {
	var rate types.RateTable
	for i := range rate {
		rate[i] = time.Duration(i) * 10 * time.Microsecond
	}
	return types.Config{
		Limit:   1 << 16,
		Buffer:  5 * time.Millisecond,
		Mtu:     2 * time.Millisecond,
		Rate:    rate,
		CellLog: 3,
		QEQ:     types.DefaultQEQ,
		W:       types.DefaultW,
		Feedback: types.FeedbackConfig{
			Transport: types.TransportUDP,
			Addr:      "127.0.0.1:6660",
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cfg := sampleConfig()
	b, err := Encode(cfg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Limit != cfg.Limit {
		t.Fatalf("Limit = %d, want %d", got.Limit, cfg.Limit)
	}
	if got.Buffer != cfg.Buffer || got.Mtu != cfg.Mtu {
		t.Fatalf("Buffer/Mtu = %v/%v, want %v/%v", got.Buffer, got.Mtu, cfg.Buffer, cfg.Mtu)
	}
	if got.Rate != cfg.Rate {
		t.Fatal("rate table did not round-trip")
	}
	if got.QEQ != cfg.QEQ || got.W != cfg.W {
		t.Fatalf("QEQ/W = %d/%d, want %d/%d", got.QEQ, got.W, cfg.QEQ, cfg.W)
	}
	if got.Feedback.Addr != cfg.Feedback.Addr {
		t.Fatalf("Feedback.Addr = %q, want %q", got.Feedback.Addr, cfg.Feedback.Addr)
	}
}

func TestDecodeRejectsNegativeMaxSize(t *testing.T) {
	cfg := sampleConfig()
	// A buffer smaller than any rate-table entry's cost makes max_size
	// negative (§6 "Reject configuration if max_size < 0").
	cfg.Buffer = 0
	cfg.Rate[0] = time.Microsecond
	b, err := Encode(cfg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := Decode(b); err == nil {
		t.Fatal("expected Decode to reject a negative max_size configuration")
	}
}

func TestDecodePeakRateOptional(t *testing.T) {
	cfg := sampleConfig()
	var peak types.RateTable
	for i := range peak {
		peak[i] = time.Duration(i) * 5 * time.Microsecond
	}
	cfg.PeakRate = &peak

	b, err := Encode(cfg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.PeakRate == nil {
		t.Fatal("PeakRate lost in round trip")
	}
	if *got.PeakRate != *cfg.PeakRate {
		t.Fatal("peak rate table did not round-trip")
	}
}
