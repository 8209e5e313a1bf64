package windowsync

import "github.com/ava-labs/stateroot-syncer/pkg/stateroot"

// InitialRange returns the window for finalized height fb: [fb-w+1, fb], with
// the lower bound clamped at 0.
func InitialRange(fb, w uint64) stateroot.Range {
	return stateroot.NewRange(windowLower(fb, w), fb)
}

// Plan returns the block numbers to publish and to purge when the finalized
// height moves from last to fb.
//
// add is [max(last, fb-w)+1, fb]. evict is [last-w+1, min(last, fb-w)]. Every
// subtraction saturates at 0, and evict is empty while fb < w. Both are empty
// when fb <= last.
func Plan(last, fb, w uint64) (add, evict stateroot.Range) {
	if fb <= last || w == 0 {
		return stateroot.EmptyRange, stateroot.EmptyRange
	}

	var floor uint64 // fb-w, saturating
	if fb > w {
		floor = fb - w
	}
	add = stateroot.NewRange(max(last, floor)+1, fb)

	if fb < w {
		return add, stateroot.EmptyRange
	}
	evict = stateroot.NewRange(windowLower(last, w), min(last, floor))
	return add, evict
}

// windowLower is the lowest block of the window ending at upper.
func windowLower(upper, w uint64) uint64 {
	if w > 0 && upper >= w-1 {
		return upper - (w - 1)
	}
	return 0
}
