package arena

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Status is the arena state as recorded on the ledger. The same values are used for the
// client-derived effective phase.
type Status uint8

const (
	StatusOpen Status = iota
	StatusVoting
	StatusSettled
	StatusCancelled
)

var statusLabels = map[Status]string{
	StatusOpen:      "OPEN",
	StatusVoting:    "VOTING",
	StatusSettled:   "SETTLED",
	StatusCancelled: "CANCELLED",
}

func (s Status) String() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(s))
}

// Terminal reports whether s can only have been reached through an on-ledger settlement.
func (s Status) Terminal() bool {
	return s == StatusSettled || s == StatusCancelled
}

// Valid reports whether s is one of the known codes.
func (s Status) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// ParseStatus accepts a label ("VOTING", case-insensitive) as stored by the content service.
func ParseStatus(label string) (Status, error) {
	l := strings.ToUpper(strings.TrimSpace(label))
	for s, name := range statusLabels {
		if name == l {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown arena status %q", label)
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(b []byte) error {
	var code uint8
	if err := json.Unmarshal(b, &code); err == nil {
		if !Status(code).Valid() {
			return fmt.Errorf("unknown arena status code %d", code)
		}
		*s = Status(code)
		return nil
	}
	var label string
	if err := json.Unmarshal(b, &label); err != nil {
		return err
	}
	parsed, err := ParseStatus(label)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Snapshot is one authoritative read of an arena record. Timestamps are ledger seconds and
// amounts are wei.
type Snapshot struct {
	ID               uint64   `json:"id"`
	Creator          string   `json:"creator"`
	OpenUntil        int64    `json:"openUntil"`
	VoteUntil        int64    `json:"voteUntil"`
	EntrantStake     *big.Int `json:"entrantStake"`
	VoterStake       *big.Int `json:"voterStake"`
	Status           Status   `json:"status"`
	ParticipantCount uint64   `json:"participantCount"`
	TotalVotes       uint64   `json:"totalVotes"`
	EntrantPool      *big.Int `json:"entrantPool"`
	VoterPool        *big.Int `json:"voterPool"`
	HighestVotes     uint64   `json:"highestVotes"`
	NumWinners       uint64   `json:"numWinners"`
	WinnerVoterCount uint64   `json:"winnerVoterCount"`
}

// Validate checks the record invariants a well-formed ledger read always satisfies.
func (s *Snapshot) Validate() error {
	if s.OpenUntil >= s.VoteUntil {
		return fmt.Errorf("%w: openUntil=%d voteUntil=%d", ErrInvalidRecord, s.OpenUntil, s.VoteUntil)
	}
	if !s.Status.Valid() {
		return fmt.Errorf("%w: status=%d", ErrInvalidRecord, uint8(s.Status))
	}
	return nil
}

// UserFlags are the per-caller reads. Any of them may have defaulted to false after a failed read.
type UserFlags struct {
	Joined         bool   `json:"joined"`
	Voted          bool   `json:"voted"`
	Winner         bool   `json:"winner"`
	ClaimedEntrant bool   `json:"claimedEntrant"`
	ClaimedVoter   bool   `json:"claimedVoter"`
	VotedFor       string `json:"votedFor,omitempty"`
	VotedForWinner bool   `json:"votedForWinner"`
}

// Round is everything a single fetch pass read from the ledger for one arena.
type Round struct {
	Snapshot     Snapshot          `json:"snapshot"`
	Participants []string          `json:"participants"`
	Winners      []string          `json:"winners"`
	VoteCounts   map[string]uint64 `json:"voteCounts"`
	Offset       Offset            `json:"clockOffset"`
	Caller       string            `json:"caller,omitempty"`
	Flags        *UserFlags        `json:"flags,omitempty"`
	FetchedAt    time.Time         `json:"fetchedAt"`
}

// VotesFor returns the vote count of a participant, matching addresses case-insensitively.
func (r *Round) VotesFor(addr string) uint64 {
	if r == nil || r.VoteCounts == nil {
		return 0
	}
	return r.VoteCounts[AddressKey(addr)]
}

// IsWinner reports whether addr is among the declared winners.
func (r *Round) IsWinner(addr string) bool {
	if r == nil {
		return false
	}
	for _, w := range r.Winners {
		if SameAddress(w, addr) {
			return true
		}
	}
	return false
}

// Entry is a participant's free text kept in the off-chain store.
type Entry struct {
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// Challenge describes what an arena is about. MediaURL may be relative to the content service.
type Challenge struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	MediaURL    string `json:"mediaUrl,omitempty"`
}

// Profile is the off-chain profile attached to an address.
type Profile struct {
	Address  string `json:"address"`
	Username string `json:"username"`
	Bio      string `json:"bio"`
}

// Summary is a row of the recent arenas list served by the content service.
type Summary struct {
	ID        uint64 `json:"id"`
	Creator   string `json:"creator"`
	OpenUntil int64  `json:"openUntil"`
	VoteUntil int64  `json:"voteUntil"`
	Status    Status `json:"status"`
	Title     string `json:"title,omitempty"`
}
