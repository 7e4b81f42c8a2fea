package history

import (
	"testing"
	"time"

	"github.com/galpt/qcn-cp/pkg/types"
)

func BenchmarkStoreRecord(b *testing.B) {
	store := NewStore(10)
	stats := []types.InstanceStats{{Device: "eth0"}}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		store.Record(stats, time.Second)
	}
}

func TestSnapshotEmptyUntilSecondPoll(t *testing.T) {
	store := NewStore(3)
	stats := []types.InstanceStats{{Device: "eth0"}}

	// First Record only establishes baseline state; no sample yet.
	store.Record(stats, time.Second)
	if snap := store.Snapshot(); len(snap["eth0"]) != 0 {
		t.Fatal("expected no samples after the first poll")
	}

	store.Record(stats, time.Second)
	snap := store.Snapshot()
	if _, ok := snap["eth0"]; !ok {
		t.Fatal("expected a snapshot entry for eth0")
	}
}

func TestRecordComputesRates(t *testing.T) {
	store := NewStore(5)
	first := []types.InstanceStats{{Device: "eth0", Bytes: 1000, Drops: 1}}
	store.Record(first, time.Second)

	second := []types.InstanceStats{{Device: "eth0", Bytes: 3000, Drops: 3}}
	store.Record(second, time.Second)

	if second[0].BytesPerS <= 0 {
		t.Fatalf("BytesPerS = %v, want > 0", second[0].BytesPerS)
	}
	if second[0].DropsPerS <= 0 {
		t.Fatalf("DropsPerS = %v, want > 0", second[0].DropsPerS)
	}
}

func TestRecordNeverReportsNegativeRateAfterReset(t *testing.T) {
	store := NewStore(5)
	store.Record([]types.InstanceStats{{Device: "eth0", Bytes: 5000}}, time.Second)

	reset := []types.InstanceStats{{Device: "eth0", Bytes: 0}}
	store.Record(reset, time.Second)
	if reset[0].BytesPerS != 0 {
		t.Fatalf("BytesPerS = %v after a counter reset, want 0", reset[0].BytesPerS)
	}
}

func TestInactiveInstanceEvicted(t *testing.T) {
	store := NewStore(5)
	store.Record([]types.InstanceStats{{Device: "eth0"}, {Device: "eth1"}}, time.Second)
	store.Record([]types.InstanceStats{{Device: "eth0"}, {Device: "eth1"}}, time.Second)

	store.Record([]types.InstanceStats{{Device: "eth0"}}, time.Second)
	snap := store.Snapshot()
	if _, ok := snap["eth1"]; ok {
		t.Fatal("expected eth1 to be evicted once it stopped reporting")
	}
}
