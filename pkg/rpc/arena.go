package rpc

import (
	"context"
	"fmt"
	"math/big"
	"net/http"

	"github.com/canopy-network/arenax/pkg/arena"
)

// RecordResponse is the raw arena record as served by /v1/arena/record.
// Amounts are decimal wei strings so they survive JSON number precision limits.
type RecordResponse struct {
	ID               uint64 `json:"id"`
	Creator          string `json:"creator"`
	OpenUntil        int64  `json:"openUntil"`
	VoteUntil        int64  `json:"voteUntil"`
	RoastStake       string `json:"roastStake"`
	VoteStake        string `json:"voteStake"`
	State            uint8  `json:"state"`
	ParticipantCount uint64 `json:"participantCount"`
	TotalVotes       uint64 `json:"totalVotes"`
	RoasterPool      string `json:"roasterPool"`
	VoterPool        string `json:"voterPool"`
	HighestVotes     uint64 `json:"highestVotes"`
	NumWinners       uint64 `json:"numWinners"`
	WinnerVoterCount uint64 `json:"winnerVoterCount"`
}

// ToSnapshot converts the wire record to the domain snapshot and checks its invariants.
func (r *RecordResponse) ToSnapshot() (*arena.Snapshot, error) {
	amounts := make([]*big.Int, 4)
	for i, raw := range []string{r.RoastStake, r.VoteStake, r.RoasterPool, r.VoterPool} {
		v, err := ParseWei(raw)
		if err != nil {
			return nil, err
		}
		amounts[i] = v
	}
	s := &arena.Snapshot{
		ID:               r.ID,
		Creator:          r.Creator,
		OpenUntil:        r.OpenUntil,
		VoteUntil:        r.VoteUntil,
		EntrantStake:     amounts[0],
		VoterStake:       amounts[1],
		Status:           arena.Status(r.State),
		ParticipantCount: r.ParticipantCount,
		TotalVotes:       r.TotalVotes,
		EntrantPool:      amounts[2],
		VoterPool:        amounts[3],
		HighestVotes:     r.HighestVotes,
		NumWinners:       r.NumWinners,
		WinnerVoterCount: r.WinnerVoterCount,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// ParseWei parses a base-10 wei amount. Empty strings are zero.
func ParseWei(raw string) (*big.Int, error) {
	if raw == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid wei amount %q", raw)
	}
	return v, nil
}

type arenaQuery struct {
	Contract   string   `json:"contract"`
	ArenaID    uint64   `json:"arenaId"`
	Address    string   `json:"address,omitempty"`
	Candidates []string `json:"candidates,omitempty"`
}

type addressList struct {
	Results []string `json:"results"`
}

type countList struct {
	Results []uint64 `json:"results"`
}

type boolValue struct {
	Value bool `json:"value"`
}

type addressValue struct {
	Address string `json:"address"`
}

func (c *HTTPClient) query(id uint64, who string) arenaQuery {
	return arenaQuery{Contract: c.contract, ArenaID: id, Address: who}
}

// Record returns the authoritative arena record.
func (c *HTTPClient) Record(ctx context.Context, id uint64) (*arena.Snapshot, error) {
	var out RecordResponse
	if err := c.doJSON(ctx, http.MethodPost, recordPath, c.query(id, ""), &out); err != nil {
		return nil, err
	}
	return out.ToSnapshot()
}

// Participants returns the entrants in join order.
func (c *HTTPClient) Participants(ctx context.Context, id uint64) ([]string, error) {
	var out addressList
	if err := c.doJSON(ctx, http.MethodPost, participantsPath, c.query(id, ""), &out); err != nil {
		return nil, err
	}
	return nonNil(out.Results), nil
}

// Winners returns the declared winners. Empty until settlement.
func (c *HTTPClient) Winners(ctx context.Context, id uint64) ([]string, error) {
	var out addressList
	if err := c.doJSON(ctx, http.MethodPost, winnersPath, c.query(id, ""), &out); err != nil {
		return nil, err
	}
	return nonNil(out.Results), nil
}

// VoteCounts returns one count per candidate, in the same order.
func (c *HTTPClient) VoteCounts(ctx context.Context, id uint64, candidates []string) ([]uint64, error) {
	q := c.query(id, "")
	q.Candidates = candidates
	var out countList
	if err := c.doJSON(ctx, http.MethodPost, voteCountsPath, q, &out); err != nil {
		return nil, err
	}
	if len(out.Results) != len(candidates) {
		return nil, fmt.Errorf("vote counts: got %d results for %d candidates", len(out.Results), len(candidates))
	}
	return out.Results, nil
}

func (c *HTTPClient) boolQuery(ctx context.Context, path string, id uint64, who string) (bool, error) {
	var out boolValue
	if err := c.doJSON(ctx, http.MethodPost, path, c.query(id, who), &out); err != nil {
		return false, err
	}
	return out.Value, nil
}

func (c *HTTPClient) HasJoined(ctx context.Context, id uint64, who string) (bool, error) {
	return c.boolQuery(ctx, hasJoinedPath, id, who)
}

func (c *HTTPClient) HasVoted(ctx context.Context, id uint64, who string) (bool, error) {
	return c.boolQuery(ctx, hasVotedPath, id, who)
}

// IsWinner works for any address, including the candidate a voter backed.
func (c *HTTPClient) IsWinner(ctx context.Context, id uint64, who string) (bool, error) {
	return c.boolQuery(ctx, isWinnerPath, id, who)
}

func (c *HTTPClient) HasClaimedEntrant(ctx context.Context, id uint64, who string) (bool, error) {
	return c.boolQuery(ctx, hasClaimedEntrantPath, id, who)
}

func (c *HTTPClient) HasClaimedVoter(ctx context.Context, id uint64, who string) (bool, error) {
	return c.boolQuery(ctx, hasClaimedVoterPath, id, who)
}

// VotedFor returns the candidate who received who's vote, or "" if none.
func (c *HTTPClient) VotedFor(ctx context.Context, id uint64, who string) (string, error) {
	var out addressValue
	if err := c.doJSON(ctx, http.MethodPost, votedForPath, c.query(id, who), &out); err != nil {
		return "", err
	}
	return out.Address, nil
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
