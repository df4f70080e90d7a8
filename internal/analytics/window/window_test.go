package window

import (
	"fmt"
	"testing"

	"github.com/assetwatch/assetwatch/internal/models"
)

func reading(entity string, v float64) models.Reading {
	return models.Reading{
		EntityID: entity,
		Values:   map[string]float64{"pressure": v},
	}
}

func TestBuffer_FIFOEviction(t *testing.T) {
	b := New(5)
	for i := 0; i < 12; i++ {
		b.Add(reading("m1", float64(i)))
	}

	if b.Len() != 5 {
		t.Fatalf("expected len 5 after 12 adds, got %d", b.Len())
	}

	snap := b.Snapshot()
	for i, r := range snap {
		want := float64(7 + i) // last 5 additions: 7..11
		if r.Values["pressure"] != want {
			t.Errorf("slot %d: expected %v, got %v", i, want, r.Values["pressure"])
		}
	}
}

func TestBuffer_ReadyLatch(t *testing.T) {
	b := New(3)

	for i := 0; i < 2; i++ {
		b.Add(reading("m1", float64(i)))
		if b.Ready() {
			t.Fatalf("ready after %d adds, capacity 3", i+1)
		}
	}

	b.Add(reading("m1", 2))
	if !b.Ready() {
		t.Fatal("expected ready once cumulative adds reach capacity")
	}

	// Stays ready through further adds.
	b.Add(reading("m1", 3))
	if !b.Ready() {
		t.Fatal("ready latch dropped by a later add")
	}
}

func TestBuffer_ClearMatchesFreshInstance(t *testing.T) {
	b := New(4)
	for i := 0; i < 10; i++ {
		b.Add(reading("m1", float64(i)))
	}
	b.Clear()

	fresh := New(4)
	if b.Len() != fresh.Len() || b.Ready() != fresh.Ready() {
		t.Fatalf("cleared buffer differs from fresh: len=%d ready=%v", b.Len(), b.Ready())
	}

	// Behavior after clear matches a fresh buffer.
	for i := 0; i < 4; i++ {
		b.Add(reading("m1", float64(i)))
		fresh.Add(reading("m1", float64(i)))
	}
	if b.Ready() != fresh.Ready() || b.Len() != fresh.Len() {
		t.Fatal("post-clear behavior diverges from fresh buffer")
	}
	for i, r := range b.Snapshot() {
		if r.Values["pressure"] != fresh.Snapshot()[i].Values["pressure"] {
			t.Fatal("post-clear contents diverge from fresh buffer")
		}
	}
}

func TestBuffer_SnapshotIsDefensiveCopy(t *testing.T) {
	b := New(3)
	b.Add(reading("m1", 1))
	b.Add(reading("m1", 2))

	snap := b.Snapshot()
	b.Add(reading("m1", 3))
	b.Add(reading("m1", 4)) // evicts 1

	if len(snap) != 2 || snap[0].Values["pressure"] != 1 || snap[1].Values["pressure"] != 2 {
		t.Fatalf("snapshot mutated by later adds: %v", snap)
	}
}

func TestBuffer_ZeroCapacityClamped(t *testing.T) {
	b := New(0)
	b.Add(reading("m1", 1))
	if b.Len() != 1 || !b.Ready() {
		t.Fatalf("expected single-slot buffer, len=%d ready=%v", b.Len(), b.Ready())
	}
}

func ExampleBuffer() {
	b := New(2)
	b.Add(models.Reading{EntityID: "pump-1", Values: map[string]float64{"pressure": 10}})
	b.Add(models.Reading{EntityID: "pump-1", Values: map[string]float64{"pressure": 20}})
	fmt.Println(b.Ready(), b.Len())
	// Output: true 2
}
