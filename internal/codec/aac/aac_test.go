package aac

import (
	"testing"
)

func TestLATMAccumulatorWaitsForMark(t *testing.T) {
	acc := NewLATMAccumulator(672)

	unit, ready := acc.Feed([]byte{1, 2, 3}, false)
	if ready {
		t.Fatal("accumulator reported ready before mark bit")
	}
	if unit != nil {
		t.Fatal("accumulator returned a unit before ready")
	}

	unit, ready = acc.Feed([]byte{4, 5, 6}, true)
	if !ready {
		t.Fatal("accumulator did not report ready on mark bit")
	}
	want := []byte{1, 2, 3, 4, 5, 6}
	if len(unit) != len(want) {
		t.Fatalf("unit len = %d, want %d", len(unit), len(want))
	}
	for i := range want {
		if unit[i] != want[i] {
			t.Fatalf("unit[%d] = %d, want %d", i, unit[i], want[i])
		}
	}
}

func TestLATMAccumulatorResetsAfterReady(t *testing.T) {
	acc := NewLATMAccumulator(672)
	acc.Feed([]byte{1}, true)

	_, ready := acc.Feed([]byte{2}, false)
	if ready {
		t.Fatal("accumulator reported ready without a fresh mark bit")
	}
}

func TestLATMAccumulatorNoMarkBitQuirk(t *testing.T) {
	acc := NewLATMAccumulator(672)

	// Sender never sets mark for quirkWindow packets: quirk engages,
	// and every packet from then on is treated as a complete unit.
	for i := 0; i < quirkWindow; i++ {
		_, ready := acc.Feed([]byte{byte(i)}, false)
		if ready && i < quirkWindow-1 {
			t.Fatalf("packet %d reported ready before quirk window elapsed", i)
		}
	}

	_, ready := acc.Feed([]byte{0xAA}, false)
	if !ready {
		t.Fatal("quirk did not engage after quirkWindow mark-less packets")
	}
}

func TestLATMAccumulatorMarkBeforeQuirkWindowNeverEngagesQuirk(t *testing.T) {
	acc := NewLATMAccumulator(672)
	acc.Feed([]byte{1}, true) // mark on first packet

	_, ready := acc.Feed([]byte{2}, false)
	if ready {
		t.Fatal("quirk engaged despite an early mark bit")
	}
}
