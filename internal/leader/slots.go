package leader

import "sort"

// maxRecentSlots bounds the ring buffer recentSlots keeps, mirroring the
// upstream cluster's own recent-slot window.
const maxRecentSlots = 12

// maxSlotSkipDistance is the slack added above the projected median: an
// observed slot further ahead than this is ignored, and the estimator
// returns the greatest observation that stays within the slack.
const maxSlotSkipDistance = 4 * 12

// recentSlots is a bounded, ascending-insertion-order ring of the most
// recently observed slot numbers, used to estimate the cluster's current
// slot between leader-schedule refreshes.
type recentSlots struct {
	slots []uint64
}

func (r *recentSlots) record(slot uint64) {
	r.slots = append(r.slots, slot)
	if len(r.slots) > maxRecentSlots {
		r.slots = r.slots[1:]
	}
}

// estimatedCurrentSlot returns the best estimate of the slot the cluster is
// currently processing. It projects the median observation forward by the
// gap between the median and the maximum index (expected), adds
// maxSlotSkipDistance as slack (ceiling), then returns the greatest observed
// slot at or below that ceiling — trusting the newest observation unless it
// has skipped further ahead than the slack allows. Panics if no slots have
// been recorded yet, since that is a misuse of the cache by its caller
// rather than a condition any caller should need to handle.
func (r *recentSlots) estimatedCurrentSlot() uint64 {
	if len(r.slots) == 0 {
		panic("leader: estimatedCurrentSlot called on empty recentSlots")
	}

	sorted := append([]uint64(nil), r.slots...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	medianIndex := (len(sorted) - 1) / 2
	maxIndex := len(sorted) - 1

	expected := sorted[medianIndex] + uint64(maxIndex-medianIndex)
	ceiling := expected + maxSlotSkipDistance

	for i := maxIndex; i >= 0; i-- {
		if sorted[i] <= ceiling {
			return sorted[i]
		}
	}
	panic("leader: no observed slot at or below ceiling")
}
