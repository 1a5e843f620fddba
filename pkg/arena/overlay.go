package arena

import (
	"sort"
	"sync"
)

// OverlayState is a copy of the optimistic flags taken for one derivation pass.
type OverlayState struct {
	LocallySettled bool     `json:"locallySettled"`
	InFlight       []Action `json:"inFlight,omitempty"`
}

// Pending reports whether a is currently marked in flight.
func (s OverlayState) Pending(a Action) bool {
	slot := slotOf(a)
	for _, f := range s.InFlight {
		if f == slot {
			return true
		}
	}
	return false
}

// Overlay holds the optimistic state of one (arena, caller) session.
//
// locallySettled is write-once: it is set when our settle transaction is accepted and never
// cleared, since a terminal authoritative status makes it redundant. In-flight markers live
// only for the duration of an action. Reward amounts are never overlaid.
type Overlay struct {
	mu        sync.Mutex
	settled   bool
	confirmed bool
	inFlight  map[Action]bool
}

// NewOverlay returns an empty overlay.
func NewOverlay() *Overlay {
	return &Overlay{inFlight: make(map[Action]bool)}
}

// MarkSettled records that a settlement was durably accepted.
func (o *Overlay) MarkSettled() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.settled = true
}

// Observe folds an authoritative status into the overlay. A terminal status also marks the
// session as settled, so a later non-terminal read from a lagging replica cannot bring the
// settle action back.
func (o *Overlay) Observe(status Status) {
	if !status.Terminal() {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.settled = true
	o.confirmed = true
}

// Confirmed reports whether an authoritative read has shown a terminal status.
func (o *Overlay) Confirmed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.confirmed
}

// Busy reports whether any action is in flight.
func (o *Overlay) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.inFlight) > 0
}

// Settled reports the locallySettled flag.
func (o *Overlay) Settled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.settled
}

// Begin marks a in flight. It returns false if an action sharing the same slot is already
// running; the three claims share one slot.
func (o *Overlay) Begin(a Action) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	slot := slotOf(a)
	if o.inFlight[slot] {
		return false
	}
	o.inFlight[slot] = true
	return true
}

// End clears the in-flight marker of a.
func (o *Overlay) End(a Action) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, slotOf(a))
}

// State copies the overlay.
func (o *Overlay) State() OverlayState {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := OverlayState{LocallySettled: o.settled}
	for a := range o.inFlight {
		st.InFlight = append(st.InFlight, a)
	}
	sort.Slice(st.InFlight, func(i, j int) bool { return st.InFlight[i] < st.InFlight[j] })
	return st
}

const claimSlot Action = "claim"

func slotOf(a Action) Action {
	switch a {
	case ActionClaimEntrant, ActionClaimVoter, ActionClaimRefund:
		return claimSlot
	}
	return a
}
