package server

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/galpt/qcn-cp/pkg/feedback"
	"github.com/galpt/qcn-cp/pkg/log"
	"github.com/galpt/qcn-cp/pkg/netlinkcfg"
	"github.com/galpt/qcn-cp/pkg/queue"
	"github.com/galpt/qcn-cp/pkg/sched"
	"github.com/galpt/qcn-cp/pkg/stats"
	"github.com/galpt/qcn-cp/pkg/types"
)

type noopTransport struct{}

func (noopTransport) Send(feedback.Envelope) error { return nil }
func (noopTransport) Close() error                 { return nil }

func testConfig() types.Config {
	var rate types.RateTable
	for i := range rate {
		rate[i] = time.Duration(i) * 10 * time.Microsecond
	}
	return types.Config{Limit: 1 << 20, Buffer: 5 * time.Millisecond, Mtu: 5 * time.Millisecond, Rate: rate}
}

func newTestRegistry(t *testing.T) (*Registry, *sched.Scheduler) {
	t.Helper()
	em := feedback.New(noopTransport{}, log.Component("test"))
	s, err := sched.New(testConfig(), queue.NewBFIFO(1<<20), em, nil)
	if err != nil {
		t.Fatalf("sched.New: %v", err)
	}
	reg := NewRegistry(stats.NewCollector())
	reg.Add("eth0", s)
	return reg, s
}

func TestAPIStatsReportsRegisteredDevice(t *testing.T) {
	reg, s := newTestRegistry(t)
	s.Enqueue(types.Packet{Length: 1500})
	srv := New(reg, time.Hour, 5, nil, "")

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	resp, err := srv.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if len(body) == 0 {
		t.Fatal("expected a non-empty stats body")
	}
}

func TestAPIHistoryEmptyBeforeFirstPoll(t *testing.T) {
	reg, _ := newTestRegistry(t)
	srv := New(reg, time.Hour, 5, nil, "")

	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	resp, err := srv.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestConfigureRequiresDeviceQueryParam(t *testing.T) {
	reg, _ := newTestRegistry(t)
	srv := New(reg, time.Hour, 5, nil, "")

	req := httptest.NewRequest(http.MethodPost, "/api/configure", nil)
	resp, err := srv.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestConfigureAppliesDecodedPayload(t *testing.T) {
	reg, _ := newTestRegistry(t)
	srv := New(reg, time.Hour, 5, nil, "")

	cfg := testConfig()
	cfg.Limit = 2048
	body, err := netlinkcfg.Encode(cfg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/configure?device=eth0", bytes.NewReader(body))
	resp, err := srv.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
}

func TestConfigureUnknownDeviceRejected(t *testing.T) {
	reg, _ := newTestRegistry(t)
	srv := New(reg, time.Hour, 5, nil, "")

	body, _ := netlinkcfg.Encode(testConfig())
	req := httptest.NewRequest(http.MethodPost, "/api/configure?device=ghost", bytes.NewReader(body))
	resp, err := srv.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestRunPollerPopulatesHistory(t *testing.T) {
	reg, s := newTestRegistry(t)
	s.Enqueue(types.Packet{Length: 1000})
	srv := New(reg, 10*time.Millisecond, 5, nil, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.runPoller(ctx)
	srv.forcePoll()

	time.Sleep(30 * time.Millisecond)
	srv.statsMu.RLock()
	defer srv.statsMu.RUnlock()
	if len(srv.current) != 1 {
		t.Fatalf("current snapshot len = %d, want 1", len(srv.current))
	}
}
