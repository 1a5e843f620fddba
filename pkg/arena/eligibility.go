package arena

// Action names a state-changing operation a caller can trigger.
type Action string

const (
	ActionCreate        Action = "create"
	ActionJoin          Action = "join"
	ActionSubmitContent Action = "submitContent"
	ActionVote          Action = "vote"
	ActionSettle        Action = "settle"
	ActionClaimEntrant  Action = "claimEntrantReward"
	ActionClaimVoter    Action = "claimVoterReward"
	ActionClaimRefund   Action = "claimRefund"
)

// Eligibility is the set of actions the caller may perform right now.
// Vote is the caller-level permission; a specific candidate also needs CanVoteFor.
type Eligibility struct {
	Join               bool `json:"join"`
	SubmitContent      bool `json:"submitContent"`
	Vote               bool `json:"vote"`
	Settle             bool `json:"settle"`
	ClaimEntrantReward bool `json:"claimEntrantReward"`
	ClaimVoterReward   bool `json:"claimVoterReward"`
	ClaimRefund        bool `json:"claimRefund"`
}

// Allows reports whether a is in the set.
func (e Eligibility) Allows(a Action) bool {
	switch a {
	case ActionJoin:
		return e.Join
	case ActionSubmitContent:
		return e.SubmitContent
	case ActionVote:
		return e.Vote
	case ActionSettle:
		return e.Settle
	case ActionClaimEntrant:
		return e.ClaimEntrantReward
	case ActionClaimVoter:
		return e.ClaimVoterReward
	case ActionClaimRefund:
		return e.ClaimRefund
	}
	return false
}

// Actions lists the permitted actions in a stable order.
func (e Eligibility) Actions() []Action {
	out := make([]Action, 0, 7)
	for _, a := range []Action{ActionJoin, ActionSubmitContent, ActionVote, ActionSettle, ActionClaimEntrant, ActionClaimVoter, ActionClaimRefund} {
		if e.Allows(a) {
			out = append(out, a)
		}
	}
	return out
}

// EligibilityInput carries everything one derivation pass needs. Flags is nil when no caller
// is known, in which case nothing is permitted.
type EligibilityInput struct {
	Phase      Status
	Snapshot   *Snapshot
	Flags      *UserFlags
	Overlay    OverlayState
	Sample     Sample
	HasContent bool
}

// DeriveEligibility applies the action rules to one consistent set of inputs.
func DeriveEligibility(in EligibilityInput) Eligibility {
	var e Eligibility
	if in.Flags == nil || in.Snapshot == nil {
		return e
	}
	f := in.Flags
	status := in.Snapshot.Status
	participated := f.Joined || f.Voted

	e.Join = in.Phase == StatusOpen && !f.Joined
	e.SubmitContent = f.Joined && in.Phase == StatusOpen && !in.HasContent
	e.Vote = in.Phase == StatusVoting && !f.Voted

	// Only participants may settle; the optimistic flag hides settle as soon as our own
	// settlement was accepted, before the ledger read reflects it.
	e.Settle = !in.Overlay.LocallySettled &&
		in.Sample.Now >= in.Sample.Offset.RealDeadline(in.Snapshot.VoteUntil) &&
		!status.Terminal() &&
		participated

	e.ClaimEntrantReward = status == StatusSettled && f.Winner && !f.ClaimedEntrant
	e.ClaimVoterReward = status == StatusSettled && f.Voted && f.VotedForWinner && !f.ClaimedVoter
	e.ClaimRefund = status == StatusCancelled && participated
	return e
}

// CanVoteFor reports whether caller may vote for candidate. Self-votes are never allowed.
func CanVoteFor(e Eligibility, caller, candidate string) bool {
	if !e.Vote || candidate == "" {
		return false
	}
	return !SameAddress(caller, candidate)
}
