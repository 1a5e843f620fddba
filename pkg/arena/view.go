package arena

import (
	"math"
	"time"
)

// Participant is one entrant card of the merged view.
type Participant struct {
	Address    string `json:"address"`
	Votes      uint64 `json:"votes"`
	Percent    int    `json:"percent"`
	Winner     bool   `json:"winner"`
	IsCaller   bool   `json:"isCaller"`
	CanVote    bool   `json:"canVote"`
	Content    string `json:"content,omitempty"`
	HasContent bool   `json:"hasContent"`
}

// View is the merged, per-caller state published after every successful pass.
type View struct {
	ArenaID          uint64        `json:"arenaId"`
	Caller           string        `json:"caller,omitempty"`
	Snapshot         Snapshot      `json:"snapshot"`
	Phase            Status        `json:"phase"`
	OpenUntilReal    int64         `json:"openUntilReal"`
	VoteUntilReal    int64         `json:"voteUntilReal"`
	SecondsRemaining int64         `json:"secondsRemaining"`
	ClockOffset      Offset        `json:"clockOffset"`
	Eligibility      Eligibility   `json:"eligibility"`
	Actions          []Action      `json:"actions"`
	Overlay          OverlayState  `json:"overlay"`
	Flags            *UserFlags    `json:"flags,omitempty"`
	Rewards          Rewards       `json:"rewards"`
	Participants     []Participant `json:"participants"`
	Winners          []string      `json:"winners"`
	Tie              bool          `json:"tie"`
	Challenge        *Challenge    `json:"challenge,omitempty"`
	CallerContent    *Entry        `json:"callerContent,omitempty"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}

// ViewInput bundles one pass worth of inputs. Now is sampled once by the caller.
type ViewInput struct {
	Round     *Round
	Content   []Entry
	Challenge *Challenge
	Overlay   OverlayState
	Now       time.Time
}

// BuildView derives phase, eligibility, rewards and participant cards from a single round and
// a single clock sample.
func BuildView(in ViewInput) View {
	r := in.Round
	snap := r.Snapshot
	sample := NewSample(in.Now, r.Offset)
	phase := PhaseOf(&snap, sample)

	byAuthor := make(map[string]Entry, len(in.Content))
	for _, c := range in.Content {
		byAuthor[AddressKey(c.Author)] = c
	}

	var callerContent *Entry
	if r.Caller != "" {
		if c, ok := byAuthor[AddressKey(r.Caller)]; ok {
			callerContent = &c
		}
	}

	elig := DeriveEligibility(EligibilityInput{
		Phase:      phase,
		Snapshot:   &snap,
		Flags:      r.Flags,
		Overlay:    in.Overlay,
		Sample:     sample,
		HasContent: callerContent != nil,
	})

	maxVotes := uint64(1)
	for _, p := range r.Participants {
		if v := r.VotesFor(p); v > maxVotes {
			maxVotes = v
		}
	}

	cards := make([]Participant, 0, len(r.Participants))
	for _, p := range r.Participants {
		votes := r.VotesFor(p)
		c, has := byAuthor[AddressKey(p)]
		cards = append(cards, Participant{
			Address:    p,
			Votes:      votes,
			Percent:    int(math.Round(float64(votes) / float64(maxVotes) * 100)),
			Winner:     r.IsWinner(p),
			IsCaller:   SameAddress(p, r.Caller),
			CanVote:    CanVoteFor(elig, r.Caller, p),
			Content:    c.Text,
			HasContent: has,
		})
	}

	winners := r.Winners
	if winners == nil {
		winners = []string{}
	}

	return View{
		ArenaID:          snap.ID,
		Caller:           r.Caller,
		Snapshot:         snap,
		Phase:            phase,
		OpenUntilReal:    r.Offset.RealDeadline(snap.OpenUntil),
		VoteUntilReal:    r.Offset.RealDeadline(snap.VoteUntil),
		SecondsRemaining: SecondsRemaining(phase, &snap, sample),
		ClockOffset:      r.Offset,
		Eligibility:      elig,
		Actions:          elig.Actions(),
		Overlay:          in.Overlay,
		Flags:            r.Flags,
		Rewards:          RewardsOf(&snap),
		Participants:     cards,
		Winners:          winners,
		Tie:              len(r.Winners) > 1,
		Challenge:        in.Challenge,
		CallerContent:    callerContent,
		UpdatedAt:        in.Now,
	}
}
