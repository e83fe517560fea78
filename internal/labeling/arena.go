package labeling

import "sync/atomic"

// outcome is the result of one label refresh. A non-nil outcome always
// restarts the TTL clock of its button.
type outcome struct {
	text string
	role string
}

// sealed marks a slot that no longer accepts results.
var sealed = &outcome{}

// arena has one slot per button index of a pass. Writers never share a slot,
// so the only contention is the compare-and-swap between a late completion
// and the worker sealing it.
type arena struct {
	slots []atomic.Pointer[outcome]
}

func newArena(n int) *arena {
	return &arena{slots: make([]atomic.Pointer[outcome], n)}
}

// publish stores o unless the slot is already filled or sealed.
func (a *arena) publish(i int, o *outcome) bool {
	return a.slots[i].CompareAndSwap(nil, o)
}

// seal closes slot i and returns what was published, or nil.
func (a *arena) seal(i int) *outcome {
	o := a.slots[i].Swap(sealed)
	if o == sealed {
		return nil
	}
	return o
}
