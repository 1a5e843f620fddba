package arena

// DerivePhase maps the authoritative status and the deadlines to the effective phase.
//
// Terminal statuses are returned as-is. Otherwise the open deadline, shifted onto the local
// clock, separates OPEN from VOTING. Elapsed time alone never yields SETTLED or CANCELLED;
// those need the ledger to record a settlement. voteUntil does not take part in the result.
func DerivePhase(status Status, openUntil, voteUntil int64, offset Offset, now int64) Status {
	if status.Terminal() {
		return status
	}
	if now < offset.RealDeadline(openUntil) {
		return StatusOpen
	}
	return StatusVoting
}

// PhaseOf derives the phase of a snapshot for a clock sample.
func PhaseOf(s *Snapshot, sample Sample) Status {
	return DerivePhase(s.Status, s.OpenUntil, s.VoteUntil, sample.Offset, sample.Now)
}

// SecondsRemaining is the countdown shown for a phase: time left until the real open deadline
// while OPEN and until the real vote deadline while VOTING, clamped at zero. Terminal phases
// have no countdown.
func SecondsRemaining(phase Status, s *Snapshot, sample Sample) int64 {
	var target int64
	switch phase {
	case StatusOpen:
		target = sample.Offset.RealDeadline(s.OpenUntil)
	case StatusVoting:
		target = sample.Offset.RealDeadline(s.VoteUntil)
	default:
		return 0
	}
	if left := target - sample.Now; left > 0 {
		return left
	}
	return 0
}
