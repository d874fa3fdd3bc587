package leader

import "testing"

func TestEstimatedCurrentSlotUsesMaxWhenWithinSkipDistance(t *testing.T) {
	r := recentSlots{}
	for _, s := range []uint64{100, 150, 120, 145, 148, 151} {
		r.record(s)
	}
	got := r.estimatedCurrentSlot()
	if got != 151 {
		t.Fatalf("expected max 151, got %d", got)
	}
}

func TestEstimatedCurrentSlotFallsBackOnLargeSkip(t *testing.T) {
	r := recentSlots{}
	for _, s := range []uint64{100, 101, 102, 103, 500} {
		r.record(s)
	}
	// sorted median index 2 -> 102, max index 4 -> expected 102+(4-2)=104,
	// ceiling 104+48=152, greatest observed <= 152 is 103.
	got := r.estimatedCurrentSlot()
	if got != 103 {
		t.Fatalf("expected 103, got %d", got)
	}
}

func TestEstimatedCurrentSlotScenarioFour(t *testing.T) {
	r := recentSlots{}
	for _, s := range []uint64{100, 120, 125, 128, 130, 132, 135, 138, 140, 145, 150, 200000} {
		r.record(s)
	}
	// sorted median index 5 -> 132, max index 11 -> expected 132+(11-5)=138,
	// ceiling 138+48=186, greatest observed <= 186 is 150.
	got := r.estimatedCurrentSlot()
	if got != 150 {
		t.Fatalf("expected 150, got %d", got)
	}
}

func TestRecentSlotsCapsAtTwelveEntries(t *testing.T) {
	r := recentSlots{}
	for i := uint64(0); i < 20; i++ {
		r.record(i)
	}
	if len(r.slots) != maxRecentSlots {
		t.Fatalf("expected %d entries, got %d", maxRecentSlots, len(r.slots))
	}
	if r.slots[0] != 8 {
		t.Fatalf("expected oldest retained slot 8, got %d", r.slots[0])
	}
}

func TestEstimatedCurrentSlotPanicsWhenEmpty(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on empty recentSlots")
		}
	}()
	r := recentSlots{}
	r.estimatedCurrentSlot()
}
